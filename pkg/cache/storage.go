package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Storage implementations when no entry is
// stored under the requested key.
var ErrNotFound = errors.New("cache entry not found")

// Storage is the key/value contract the engine requires from a backend.
// Implementations supply their own concurrency guarantees; each operation
// may block and may fail independently of request processing. The engine
// treats any failure other than ErrNotFound as cache-unavailable for that
// operation and degrades to forwarding the request, never failing it.
//
// Concurrent requests for the same key may race to store competing
// entries; last write wins. Correctness does not depend on single-writer
// exclusivity, only on each entry being internally consistent, which the
// build-then-put construction guarantees.
type Storage interface {
	// Get returns the entry stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores entry under key, replacing any previous value.
	Put(ctx context.Context, key string, entry *Entry) error

	// Remove deletes the entry stored under key. Removing an absent key is
	// not an error.
	Remove(ctx context.Context, key string) error
}
