// Package store defines the byte-transparent key-value abstraction backing
// querykit's persisted-state adapter.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte previously passed to Set for a key. No prepended metadata,
// no re-encoding, no mutation.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with TTLs. Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// IO/remote errors are returned as (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means no expiry, or
	// the store's global window if it has no per-entry TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key (best-effort).
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}
