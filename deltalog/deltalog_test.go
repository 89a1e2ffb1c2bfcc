package deltalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lsjoeberg/deltactl/objstore"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	store, err := objstore.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(store, nil)
}

func testMetadata() *Metadata {
	return &Metadata{
		ID:           uuid.NewString(),
		Format:       Format{Provider: "parquet"},
		SchemaString: `{"type":"struct","fields":[{"name":"id","type":"long","nullable":true,"metadata":{}},{"name":"day","type":"string","nullable":true,"metadata":{}}]}`,
		PartitionColumns: []string{
			"day",
		},
		Configuration: map[string]string{},
		CreatedTime:   time.Now().UnixMilli(),
	}
}

func addAction(path string, size int64) Action {
	return Action{Add: &Add{
		Path:             path,
		PartitionValues:  map[string]string{"day": "1"},
		Size:             size,
		ModificationTime: time.Now().UnixMilli(),
		DataChange:       true,
	}}
}

func removeAction(path string) Action {
	return Action{Remove: &Remove{
		Path:              path,
		DeletionTimestamp: time.Now().UnixMilli(),
		DataChange:        false,
	}}
}

func TestCommitAndSnapshot(t *testing.T) {
	ctx := context.Background()
	l := testLog(t)

	err := l.Commit(ctx, 0, []Action{
		{Protocol: &Protocol{MinReaderVersion: 1, MinWriterVersion: 2}},
		{Metadata: testMetadata()},
		addAction("day=1/a.parquet", 100),
		addAction("day=1/b.parquet", 200),
	})
	if err != nil {
		t.Fatal(err)
	}
	err = l.Commit(ctx, 1, []Action{
		removeAction("day=1/a.parquet"),
		addAction("day=1/c.parquet", 300),
		{Txn: &Txn{AppID: "app-1", Version: 7}},
	})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := l.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 1 {
		t.Fatalf("expected version 1, got %d", snap.Version)
	}
	if len(snap.Files) != 2 {
		t.Fatalf("expected 2 active files, got %d", len(snap.Files))
	}
	if _, ok := snap.Files["day=1/a.parquet"]; ok {
		t.Fatal("removed file still active")
	}
	if _, ok := snap.Tombstones["day=1/a.parquet"]; !ok {
		t.Fatal("missing tombstone for removed file")
	}
	if snap.AppTxns["app-1"] != 7 {
		t.Fatalf("expected app txn version 7, got %d", snap.AppTxns["app-1"])
	}
	if snap.Metadata == nil || snap.Metadata.PartitionColumns[0] != "day" {
		t.Fatalf("unexpected metadata: %+v", snap.Metadata)
	}

	schema, err := snap.Metadata.ParseSchema()
	if err != nil {
		t.Fatal(err)
	}
	if len(schema.Fields) != 2 || schema.Fields[1].Name != "day" {
		t.Fatalf("unexpected schema: %+v", schema)
	}

	v, err := l.LatestVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Fatalf("expected latest version 1, got %d", v)
	}
}

func TestCommitConflict(t *testing.T) {
	ctx := context.Background()
	l := testLog(t)

	if err := l.Commit(ctx, 0, []Action{{Metadata: testMetadata()}}); err != nil {
		t.Fatal(err)
	}
	err := l.Commit(ctx, 0, []Action{addAction("x.parquet", 1)})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestSnapshotMissingTable(t *testing.T) {
	l := testLog(t)
	_, err := l.Snapshot(context.Background())
	if !errors.Is(err, ErrNotATable) {
		t.Fatalf("expected ErrNotATable, got %v", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := testLog(t)

	err := l.Commit(ctx, 0, []Action{
		{Protocol: &Protocol{MinReaderVersion: 1, MinWriterVersion: 2}},
		{Metadata: testMetadata()},
		addAction("day=1/a.parquet", 100),
	})
	if err != nil {
		t.Fatal(err)
	}
	err = l.Commit(ctx, 1, []Action{
		removeAction("day=1/a.parquet"),
		addAction("day=1/b.parquet", 200),
	})
	if err != nil {
		t.Fatal(err)
	}

	lc, err := l.WriteCheckpoint(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if lc.Version != 1 {
		t.Fatalf("expected checkpoint version 1, got %d", lc.Version)
	}
	// protocol + metadata + add + tombstone
	if lc.Size != 4 {
		t.Fatalf("expected 4 checkpoint actions, got %d", lc.Size)
	}

	ptr, err := l.LastCheckpointPointer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ptr.Version != 1 {
		t.Fatalf("expected pointer version 1, got %d", ptr.Version)
	}

	// The snapshot must replay from the checkpoint alone once the old
	// commit files are gone
	if err := l.store.Delete(ctx, CommitPath(0)); err != nil {
		t.Fatal(err)
	}
	if err := l.store.Delete(ctx, CommitPath(1)); err != nil {
		t.Fatal(err)
	}
	err = l.Commit(ctx, 2, []Action{addAction("day=2/c.parquet", 300)})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := l.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 2 {
		t.Fatalf("expected version 2, got %d", snap.Version)
	}
	if len(snap.Files) != 2 {
		t.Fatalf("expected 2 active files, got %d", len(snap.Files))
	}
	if _, ok := snap.Files["day=1/b.parquet"]; !ok {
		t.Fatal("file from checkpoint missing")
	}
	if _, ok := snap.Tombstones["day=1/a.parquet"]; !ok {
		t.Fatal("tombstone from checkpoint missing")
	}
	if snap.Metadata == nil {
		t.Fatal("metadata from checkpoint missing")
	}
}

func TestExpireLogs(t *testing.T) {
	ctx := context.Background()
	l := testLog(t)

	for v := int64(0); v < 3; v++ {
		actions := []Action{addAction(uuid.NewString()+".parquet", v)}
		if v == 0 {
			actions = append([]Action{{Metadata: testMetadata()}}, actions...)
		}
		if err := l.Commit(ctx, v, actions); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := l.WriteCheckpoint(ctx); err != nil {
		t.Fatal(err)
	}

	// A future "now" puts every file past the retention cutoff, only the
	// version floor should protect files
	metrics, err := l.ExpireLogs(ctx, time.Hour, time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if metrics.MinRetainedVersion != 2 {
		t.Fatalf("expected min retained version 2, got %d", metrics.MinRetainedVersion)
	}
	if metrics.CommitsDeleted != 2 {
		t.Fatalf("expected 2 commits deleted, got %d", metrics.CommitsDeleted)
	}
	if metrics.CheckpointsDeleted != 0 {
		t.Fatalf("expected 0 checkpoints deleted, got %d", metrics.CheckpointsDeleted)
	}

	snap, err := l.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 2 {
		t.Fatalf("expected version 2 after expiry, got %d", snap.Version)
	}

	// Nothing is expired when the cutoff has not passed
	metrics, err = l.ExpireLogs(ctx, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if metrics.CommitsDeleted != 0 {
		t.Fatalf("expected 0 commits deleted, got %d", metrics.CommitsDeleted)
	}
}

func TestCommitRoundTrip(t *testing.T) {
	actions := []Action{
		{CommitInfo: CommitInfo{"operation": "WRITE"}},
		addAction("day=1/a.parquet", 10),
	}
	data, err := MarshalCommit(actions)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := UnmarshalCommit(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(parsed))
	}
	if parsed[0].CommitInfo["operation"] != "WRITE" {
		t.Fatalf("unexpected commit info: %+v", parsed[0].CommitInfo)
	}
	if parsed[1].Add == nil || parsed[1].Add.Path != "day=1/a.parquet" {
		t.Fatalf("unexpected add: %+v", parsed[1].Add)
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "interval 30 days", want: 720 * time.Hour},
		{in: "interval 1 week", want: 168 * time.Hour},
		{in: "INTERVAL 5 MINUTES", want: 5 * time.Minute},
		{in: "interval 90 seconds", want: 90 * time.Second},
		{in: "36h", want: 36 * time.Hour},
		{in: "interval x days", wantErr: true},
		{in: "interval 1 fortnight", wantErr: true},
		{in: "tomorrow", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseInterval(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.in, tc.want, got)
		}
	}
}
