// Package genstore tracks a generation counter per storage key. The byte
// tier stamps every stored entry with the generation observed at load time;
// invalidation bumps the counter, which retires all previously written
// frames for that key at once. This replaces the identity guard that live
// values get in the in-process pool.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live. Local (in-process) is the
// default; the Redis implementation shares generations across replicas and
// survives restarts.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
