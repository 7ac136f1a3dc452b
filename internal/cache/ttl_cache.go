// Package cache provides a thread-safe result cache with per-entry expiry
// and generation-based invalidation.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTLCache caches values per key for a fixed time to live. Invalidate drops
// every entry and bumps the generation; values computed against an older
// generation are refused by SetIfCurrent, so a slow reader cannot put a
// result back that an invalidation has already superseded.
//
// A TTL of zero or less disables the cache: Get always misses.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	gen     uint64
	now     func() time.Time
}

// New creates an empty cache.
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Enabled reports whether the cache stores anything at all.
func (c *TTLCache[K, V]) Enabled() bool {
	return c.ttl > 0
}

// Get returns the cached value for key if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Generation returns the current generation. Read it before computing a
// value that will be handed to SetIfCurrent.
func (c *TTLCache[K, V]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Set stores value under key unconditionally.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// SetIfCurrent stores value only if no invalidation happened since gen was
// read. It reports whether the value was stored.
func (c *TTLCache[K, V]) SetIfCurrent(key K, value V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.ttl <= 0 {
		return false
	}
	c.setLocked(key, value)
	return true
}

func (c *TTLCache[K, V]) setLocked(key K, value V) {
	if c.ttl <= 0 {
		return
	}
	c.entries[key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
}

// Invalidate drops every entry and starts a new generation.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
	c.gen++
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
