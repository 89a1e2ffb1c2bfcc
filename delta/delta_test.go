package delta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lsjoeberg/deltactl/deltalog"
	"github.com/lsjoeberg/deltactl/objstore"
	"github.com/lsjoeberg/deltactl/parquet_accumulator"
	"github.com/xitongsys/parquet-go/writer"
)

const testSchemaString = `{"type":"struct","fields":[` +
	`{"name":"id","type":"long","nullable":true,"metadata":{}},` +
	`{"name":"score","type":"double","nullable":true,"metadata":{}},` +
	`{"name":"day","type":"string","nullable":true,"metadata":{}}]}`

func writeParquet(t *testing.T, rows []map[string]any) []byte {
	t.Helper()
	accumulator := parquet_accumulator.NewParquetAccumulator()
	for _, row := range rows {
		accumulator.WriteRow(row)
	}
	parquetSchema, err := accumulator.GetSchemaString()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	pw, err := writer.NewJSONWriterFromWriter(parquetSchema, &buf, 4)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		rowBytes, err := json.Marshal(row)
		if err != nil {
			t.Fatal(err)
		}
		if err := pw.Write(rowBytes); err != nil {
			t.Fatal(err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testRows(ids ...int64) []map[string]any {
	var rows []map[string]any
	for _, id := range ids {
		rows = append(rows, map[string]any{
			"id":    id,
			"score": float64(id) / 2,
		})
	}
	return rows
}

// seedTable creates a table partitioned on day with two small files in
// day=1 and one in day=2, committed at version 0.
func seedTable(t *testing.T) *Table {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	store, err := objstore.NewDiskStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	log := deltalog.New(store, nil)

	actions := []deltalog.Action{
		{Protocol: &deltalog.Protocol{MinReaderVersion: 1, MinWriterVersion: 2}},
		{Metadata: &deltalog.Metadata{
			ID:               uuid.NewString(),
			Format:           deltalog.Format{Provider: "parquet"},
			SchemaString:     testSchemaString,
			PartitionColumns: []string{"day"},
			Configuration:    map[string]string{},
			CreatedTime:      time.Now().UnixMilli(),
		}},
	}
	seed := []struct {
		day string
		ids []int64
	}{
		{day: "1", ids: []int64{5, 3, 1}},
		{day: "1", ids: []int64{6, 4, 2}},
		{day: "2", ids: []int64{10, 9}},
	}
	for _, s := range seed {
		data := writeParquet(t, testRows(s.ids...))
		path := fmt.Sprintf("day=%s/%s.parquet", s.day, uuid.NewString())
		if err := store.Put(ctx, path, data); err != nil {
			t.Fatal(err)
		}
		actions = append(actions, deltalog.Action{Add: &deltalog.Add{
			Path:             path,
			PartitionValues:  map[string]string{"day": s.day},
			Size:             int64(len(data)),
			ModificationTime: time.Now().UnixMilli(),
			DataChange:       true,
		}})
	}
	if err := log.Commit(ctx, 0, actions); err != nil {
		t.Fatal(err)
	}

	tbl, err := Open(ctx, dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestOpenMissingTable(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), nil, nil)
	if err == nil {
		t.Fatal("expected error opening empty dir")
	}
}

func TestSchema(t *testing.T) {
	tbl := seedTable(t)
	schema, err := tbl.Schema(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(schema.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(schema.Fields))
	}
	if schema.Fields[0].Name != "id" || schema.Fields[0].Type != "long" {
		t.Fatalf("unexpected first field: %+v", schema.Fields[0])
	}
}

func TestDetails(t *testing.T) {
	tbl := seedTable(t)
	details, err := tbl.Details(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if details.Version != 0 {
		t.Fatalf("expected version 0, got %d", details.Version)
	}
	if details.NumFiles != 3 {
		t.Fatalf("expected 3 files, got %d", details.NumFiles)
	}
	if details.SizeBytes <= 0 {
		t.Fatalf("expected positive size, got %d", details.SizeBytes)
	}
	if len(details.PartitionColumns) != 1 || details.PartitionColumns[0] != "day" {
		t.Fatalf("unexpected partition columns: %v", details.PartitionColumns)
	}
}

func TestSetProperties(t *testing.T) {
	ctx := context.Background()
	tbl := seedTable(t)

	version, err := tbl.SetProperties(ctx, map[string]string{
		"delta.logRetentionDuration": "interval 7 days",
		"custom.owner":               "analytics",
	})
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}

	details, err := tbl.Details(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if details.Configuration["custom.owner"] != "analytics" {
		t.Fatalf("unexpected configuration: %v", details.Configuration)
	}

	_, err = tbl.SetProperties(ctx, map[string]string{
		"delta.logRetentionDuration": "sometime",
	})
	if err == nil {
		t.Fatal("expected error for invalid duration property")
	}
}

func TestCreateCheckpointAndExpire(t *testing.T) {
	ctx := context.Background()
	tbl := seedTable(t)

	if _, err := tbl.SetProperties(ctx, map[string]string{"custom.a": "1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.SetProperties(ctx, map[string]string{"custom.b": "2"}); err != nil {
		t.Fatal(err)
	}

	lc, err := tbl.CreateCheckpoint(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if lc.Version != 2 {
		t.Fatalf("expected checkpoint at version 2, got %d", lc.Version)
	}

	time.Sleep(20 * time.Millisecond)
	metrics, err := tbl.ExpireLogs(ctx, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if metrics.CommitsDeleted != 2 {
		t.Fatalf("expected 2 commits deleted, got %d", metrics.CommitsDeleted)
	}

	snap, err := tbl.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 2 {
		t.Fatalf("expected version 2 after expiry, got %d", snap.Version)
	}
	if snap.Metadata.Configuration["custom.b"] != "2" {
		t.Fatalf("unexpected configuration after expiry: %v", snap.Metadata.Configuration)
	}
}
