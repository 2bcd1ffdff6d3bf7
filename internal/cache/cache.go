// Package cache provides a small generic in-memory TTL cache used to avoid
// re-fetching slow-changing venue data (position snapshots, fee schedules)
// on every call.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a generic, lock-protected TTL cache. Entries expire lazily: a Get
// past its TTL is treated as a miss and removed.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[K]entry[V]
}

// New creates a Cache whose entries expire ttl after being Set.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		entries: make(map[K]entry[V]),
	}
}

// Get returns the cached value for key, or ok=false if absent or expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.Delete(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's configured TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// Delete removes key, if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries currently stored, including any not yet
// lazily reaped past their TTL.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
