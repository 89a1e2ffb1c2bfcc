// Package objstore provides the object storage layer a table lives on. A
// Store is scoped to a single table root; keys are slash-separated paths
// relative to that root (e.g. `_delta_log/00000000000000000000.json`).
package objstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lsjoeberg/deltactl/gologger"
	"github.com/lsjoeberg/deltactl/utils"
)

var (
	logger = gologger.NewLogger()

	ErrObjectExists   = utils.PermError("object already exists")
	ErrObjectNotFound = utils.PermError("object not found")
	ErrInvalidURI     = utils.PermError("invalid table URI")
)

type (
	ObjectInfo struct {
		Key     string
		Size    int64
		ModTime time.Time
	}

	Store interface {
		// List returns all objects under prefix, lexicographically sorted by key
		List(ctx context.Context, prefix string) ([]ObjectInfo, error)
		Get(ctx context.Context, key string) ([]byte, error)
		Put(ctx context.Context, key string, data []byte) error
		// PutIfAbsent writes key only when it does not exist yet, returning
		// ErrObjectExists otherwise
		PutIfAbsent(ctx context.Context, key string, data []byte) error
		Delete(ctx context.Context, key string) error

		// URI returns the table root this store is scoped to
		URI() string
	}
)

// Open creates a store for a table URI. Bare paths and file:// URIs map to
// the local disk store, s3://bucket/prefix to the S3 store. Storage options
// (endpoint, region, access_key_id, secret_access_key, path_style) override
// the AWS environment.
func Open(uri string, storageOptions map[string]string) (Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURI, uri)
	}

	switch u.Scheme {
	case "", "file":
		path := u.Path
		if u.Scheme == "" {
			path = uri
		}
		if path == "" {
			return nil, fmt.Errorf("%w: empty path in %s", ErrInvalidURI, uri)
		}
		return NewDiskStore(path)
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: missing bucket in %s", ErrInvalidURI, uri)
		}
		return NewS3Store(u.Host, strings.TrimPrefix(u.Path, "/"), storageOptions)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
	}
}
