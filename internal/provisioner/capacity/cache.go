// Package capacity caches per-server counts of active configurations. The
// cache is derived state: the configuration table is authoritative, and every
// reader must tolerate a miss and fall back to recomputing from it.
package capacity

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL matches the reconciler's refresh cadence with headroom.
const DefaultTTL = 5 * time.Minute

// Key renders the cache key for one server's active configuration count.
func Key(serverID int64) string {
	return fmt.Sprintf("server:%d:active_config_count", serverID)
}

// Cache is a TTL key-value counter store. Absence of a key is a valid,
// expected state, never an error.
type Cache interface {
	// Get returns the cached count and whether the key was present.
	Get(ctx context.Context, serverID int64) (int, bool, error)

	// Set stores the count with a time-to-live.
	Set(ctx context.Context, serverID int64, count int, ttl time.Duration) error

	// Increment adjusts an existing count by delta and returns the new value.
	// When the key is absent it reports ok=false and changes nothing: seeding
	// an entry from a delta alone would cache an untrustworthy value.
	Increment(ctx context.Context, serverID int64, delta int) (int, bool, error)
}

// ComputeFunc produces the authoritative count for a server, typically a
// COUNT(*) against the configuration table.
type ComputeFunc func(ctx context.Context) (int, error)

// GetOrCompute returns the cached count, computing and caching it on a miss.
// Concurrent misses for the same key may compute redundantly; the compute is
// idempotent and cheap, so no cross-process lock serializes it.
func GetOrCompute(ctx context.Context, cache Cache, serverID int64, ttl time.Duration, compute ComputeFunc) (int, error) {
	count, ok, err := cache.Get(ctx, serverID)
	if err != nil {
		return 0, fmt.Errorf("capacity cache get: %w", err)
	}
	if ok {
		return count, nil
	}

	count, err = compute(ctx)
	if err != nil {
		return 0, err
	}

	if err := cache.Set(ctx, serverID, count, ttl); err != nil {
		return 0, fmt.Errorf("capacity cache set: %w", err)
	}
	return count, nil
}
