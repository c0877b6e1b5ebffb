// Package store defines the byte-store abstraction used by bytepool.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte previously passed to Set for a key (no added metadata, no
// re-encoding). Any internal transform (compression, ...) must be fully
// reversed before returning.
//
// Keys under "entry:<ns>:" are owned by the pool; foreign writes there may
// fail strict frame validation and be deleted as corrupt.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with TTLs. Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// IO/remote errors return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (ttl <= 0 means no expiry).
	// Implementations may ignore cost. Returns ok=false when the write was
	// rejected under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
