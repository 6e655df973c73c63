// Package store provides the chunk store collaborator: durable key/value
// persistence for chunk records, reassembled blobs and resource records.
//
// Store methods block until the backend confirms the operation. Callers
// that need asynchronous writes issue them on their own goroutines.
package store

import (
	"context"
	"io"
)

// Store is a durable key/value store.
type Store interface {
	// Get returns the value stored under key.
	// Returns an error matching ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	// Returns only after the backend has durably accepted the write.
	Set(ctx context.Context, key string, value []byte) error
	// Destroy removes key. Removing an absent key is not an error.
	Destroy(ctx context.Context, key string) error
	// List returns all keys beginning with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	io.Closer
}
