// Package objstore defines the object-store abstraction the engine is
// rooted at, plus concrete backends: local filesystem, S3, GCS, Azure
// blob, HDFS, and a plain-HTTP dev backend. All backends sit behind one
// narrow Store interface; the engine never knows which one it talks to.
package objstore

import (
	"context"
	"io"
)

// ObjectInfo is the subset of object metadata the engine needs.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Store is the object-store handle the engine writer/scanner/compactor
// use. A Store is safe for concurrent use and rooted at a fixed prefix
// chosen by the caller.
type Store interface {
	// Put uploads r's contents to key, streaming rather than buffering the
	// whole object in memory.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get returns a reader for key's contents; the caller must Close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns size metadata for key without downloading it.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// List returns every key with the given prefix, in unspecified order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes key; deleting a missing key is not an error (the
	// manifest, not the store, is the source of truth).
	Delete(ctx context.Context, key string) error
}
