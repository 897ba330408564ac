// Package snapshot persists committed DOM trees.
//
// An Exporter captures a manager's tree with dom.Manager.Snapshot, encodes it
// as JSON and writes it to a Store. Stores are available for memory, the
// local filesystem and S3-compatible object storage.
package snapshot

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("snapshot: not found")

// ErrInvalidKey is returned for empty keys or keys escaping the store root.
var ErrInvalidKey = errors.New("snapshot: invalid key")

// Store is a flat key/value blob store. Keys use "/" as separator.
type Store interface {
	// Put writes data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
