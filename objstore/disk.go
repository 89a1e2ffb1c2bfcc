package objstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type (
	DiskStore struct {
		rootPath string
	}
)

func NewDiskStore(rootPath string) (*DiskStore, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("error in filepath.Abs: %w", err)
	}
	ds := &DiskStore{
		rootPath: abs,
	}

	return ds, nil
}

func (ds *DiskStore) URI() string {
	return "file://" + filepath.ToSlash(ds.rootPath)
}

func (ds *DiskStore) path(key string) string {
	return filepath.Join(ds.rootPath, filepath.FromSlash(key))
}

func (ds *DiskStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := filepath.WalkDir(ds.rootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(ds.rootPath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error in filepath.WalkDir: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})
	return objects, nil
}

func (ds *DiskStore) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(ds.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("error in os.ReadFile: %w", err)
	}
	return b, nil
}

func (ds *DiskStore) Put(_ context.Context, key string, data []byte) error {
	p := ds.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("error in os.WriteFile: %w", err)
	}
	return nil
}

// PutIfAbsent relies on O_EXCL, which is atomic on local filesystems. This is
// what makes disk table commits safe without an external lock.
func (ds *DiskStore) PutIfAbsent(_ context.Context, key string, data []byte) error {
	p := ds.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return fmt.Errorf("%w: %s", ErrObjectExists, key)
	}
	if err != nil {
		return fmt.Errorf("error in os.OpenFile: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", key, err)
	}
	return f.Close()
}

func (ds *DiskStore) Delete(_ context.Context, key string) error {
	err := os.Remove(ds.path(key))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("error in os.Remove: %w", err)
	}
	return nil
}
