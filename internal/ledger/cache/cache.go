// Package cache provides short-lived caching for ledger read paths, so the
// query endpoints do not hammer the external store on every request.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key is absent or its entry has expired.
var ErrNotFound = errors.New("cache: not found")

// Cache stores opaque snapshots of ledger reads keyed by query.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type entry struct {
	value    []byte
	storedAt time.Time
}

// InMemory is a TTL cache suitable for a single instance.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

// NewInMemory creates an in-memory cache with the specified TTL.
func NewInMemory(ttl time.Duration) *InMemory {
	return &InMemory{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

func (c *InMemory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.entries[key]; ok {
		if time.Since(cached.storedAt) < c.ttl {
			return cached.value, nil
		}
	}
	return nil, ErrNotFound
}

func (c *InMemory) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: time.Now()}
	return nil
}
