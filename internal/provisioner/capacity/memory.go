package capacity

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryCache is a process-local Cache for single-node deployments and tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[int64]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, serverID int64) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[serverID]
	if !ok {
		return 0, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, serverID)
		return 0, false, nil
	}
	return entry.count, true, nil
}

func (c *MemoryCache) Set(_ context.Context, serverID int64, count int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[serverID] = memoryEntry{count: count, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Increment(_ context.Context, serverID int64, delta int) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[serverID]
	if !ok || c.now().After(entry.expiresAt) {
		delete(c.entries, serverID)
		return 0, false, nil
	}
	entry.count += delta
	c.entries[serverID] = entry
	return entry.count, true, nil
}
