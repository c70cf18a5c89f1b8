package persistence

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by KVStore.Get when the key has never been written
var ErrKeyNotFound = errors.New("key not found")

// KVStore is the key-value surface the store registry persists through.
// The registry keeps its whole store list as one serialized document under a
// fixed key, so the interface is deliberately small: no scans, no TTLs, no
// partial updates.
type KVStore interface {
	// Get returns the value stored at key, or ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes the value at key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping checks that the backing store is reachable
	Ping(ctx context.Context) error

	// Close releases the underlying connection, if any
	Close() error
}
