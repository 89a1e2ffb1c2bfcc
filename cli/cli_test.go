package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lsjoeberg/deltactl/deltalog"
	"github.com/lsjoeberg/deltactl/objstore"
)

func seedTableDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store, err := objstore.NewDiskStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	log := deltalog.New(store, nil)
	err = log.Commit(context.Background(), 0, []deltalog.Action{
		{Protocol: &deltalog.Protocol{MinReaderVersion: 1, MinWriterVersion: 2}},
		{Metadata: &deltalog.Metadata{
			ID:           uuid.NewString(),
			Format:       deltalog.Format{Provider: "parquet"},
			SchemaString: `{"type":"struct","fields":[{"name":"id","type":"long","nullable":true,"metadata":{}}]}`,
			Configuration: map[string]string{
				"custom.team": "data",
			},
			PartitionColumns: []string{},
			CreatedTime:      time.Now().UnixMilli(),
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out.String()
}

func TestParseKeyValues(t *testing.T) {
	kv, err := parseKeyValues([]string{"region=eu-north-1", "endpoint=http://localhost:9000"})
	if err != nil {
		t.Fatal(err)
	}
	if kv["region"] != "eu-north-1" {
		t.Fatalf("unexpected region: %q", kv["region"])
	}
	if kv["endpoint"] != "http://localhost:9000" {
		t.Fatalf("unexpected endpoint: %q", kv["endpoint"])
	}

	if _, err := parseKeyValues([]string{"noequals"}); err == nil {
		t.Fatal("expected error for pair without equals")
	}
	if _, err := parseKeyValues([]string{"=value"}); err == nil {
		t.Fatal("expected error for empty key")
	}

	kv, err = parseKeyValues(nil)
	if err != nil || kv != nil {
		t.Fatalf("expected nil map for no pairs, got %v, %v", kv, err)
	}
}

func TestSchemaCommand(t *testing.T) {
	dir := seedTableDir(t)
	out := runCommand(t, "schema", dir)
	if !strings.Contains(out, `"name": "id"`) {
		t.Fatalf("schema output missing field: %s", out)
	}
}

func TestDetailsCommand(t *testing.T) {
	dir := seedTableDir(t)
	out := runCommand(t, "details", dir)
	if !strings.Contains(out, `"numFiles": 0`) {
		t.Fatalf("details output missing file count: %s", out)
	}
	if !strings.Contains(out, `"custom.team": "data"`) {
		t.Fatalf("details output missing configuration: %s", out)
	}

	out = runCommand(t, "details", dir, "--flat")
	if !strings.Contains(out, `"version"`) {
		t.Fatalf("flat details output missing version: %s", out)
	}
}

func TestConfigureCommand(t *testing.T) {
	dir := seedTableDir(t)
	out := runCommand(t, "configure", dir, "--set", "custom.owner=analytics")
	if !strings.Contains(out, `"version": 1`) {
		t.Fatalf("unexpected configure output: %s", out)
	}

	out = runCommand(t, "details", dir)
	if !strings.Contains(out, `"custom.owner": "analytics"`) {
		t.Fatalf("property not applied: %s", out)
	}
}

func TestCheckpointCommand(t *testing.T) {
	dir := seedTableDir(t)
	out := runCommand(t, "checkpoint", dir)
	if !strings.Contains(out, `"version": 0`) {
		t.Fatalf("unexpected checkpoint output: %s", out)
	}
}

func TestExpireCommand(t *testing.T) {
	dir := seedTableDir(t)
	runCommand(t, "checkpoint", dir)
	out := runCommand(t, "expire", dir)
	// nothing is old enough to expire, but the floor is reported
	if !strings.Contains(out, `"MinRetainedVersion": 0`) {
		t.Fatalf("unexpected expire output: %s", out)
	}
}

func TestVacuumCommandOmitsFileList(t *testing.T) {
	dir := seedTableDir(t)
	out := runCommand(t, "vacuum", dir, "--dry-run")
	if strings.Contains(out, "filesDeleted") {
		t.Fatalf("file list printed without --print-files: %s", out)
	}
}

func TestCompactCommandRejectsBadFilter(t *testing.T) {
	dir := seedTableDir(t)
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"compact", dir, "-p", "1col > 5"})
	err := root.Execute()
	if err == nil {
		t.Fatal("expected error for invalid partition filter")
	}
	if !strings.Contains(err.Error(), "invalid partition filter: 1col > 5") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenTableMissing(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"details", t.TempDir()})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for missing table")
	}
}
