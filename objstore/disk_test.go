package objstore

import (
	"context"
	"errors"
	"testing"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := ds.Put(ctx, "_delta_log/00000000000000000000.json", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(ctx, "part-1.parquet", []byte("data")); err != nil {
		t.Fatal(err)
	}

	b, err := ds.Get(ctx, "part-1.parquet")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "data" {
		t.Fatalf("got %q", b)
	}

	objects, err := ds.List(ctx, "_delta_log/")
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 1 || objects[0].Key != "_delta_log/00000000000000000000.json" {
		t.Fatalf("got %+v", objects)
	}
	if objects[0].Size != 1 {
		t.Fatalf("got size %d", objects[0].Size)
	}
}

func TestDiskStorePutIfAbsent(t *testing.T) {
	ctx := context.Background()
	ds, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := ds.PutIfAbsent(ctx, "_delta_log/00000000000000000001.json", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	err = ds.PutIfAbsent(ctx, "_delta_log/00000000000000000001.json", []byte("v2"))
	if !errors.Is(err, ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}

	// original content untouched
	b, err := ds.Get(ctx, "_delta_log/00000000000000000001.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "v1" {
		t.Fatalf("got %q", b)
	}
}

func TestDiskStoreMissing(t *testing.T) {
	ctx := context.Background()
	ds, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	_, err = ds.Get(ctx, "nope")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if err := ds.Delete(ctx, "nope"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}

	// listing a store that has no objects yet is not an error
	objects, err := ds.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 0 {
		t.Fatalf("got %+v", objects)
	}
}

func TestOpenScheme(t *testing.T) {
	if _, err := Open("gs://bucket/table", nil); !errors.Is(err, ErrInvalidURI) {
		t.Fatalf("expected ErrInvalidURI, got %v", err)
	}
	if _, err := Open("s3://", nil); !errors.Is(err, ErrInvalidURI) {
		t.Fatalf("expected ErrInvalidURI, got %v", err)
	}

	st, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*DiskStore); !ok {
		t.Fatalf("got %T", st)
	}

	st, err = Open("s3://bucket/prefix/table", map[string]string{"region": "eu-north-1"})
	if err != nil {
		t.Fatal(err)
	}
	s3st, ok := st.(*S3Store)
	if !ok {
		t.Fatalf("got %T", st)
	}
	if s3st.bucket != "bucket" || s3st.prefix != "prefix/table" {
		t.Fatalf("got bucket %q prefix %q", s3st.bucket, s3st.prefix)
	}
}
