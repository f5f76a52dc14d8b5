// Package cache provides a keyed cache whose entries expire individually.
// The font resolver uses it to avoid rescanning font folders on every load.
package cache

import (
	"sync"
	"time"
)

// clock is replaced in tests.
var clock = time.Now

type ttlEntry[V any] struct {
	value  V
	stored time.Time
}

// TTLCache is a thread-safe cache where each key expires ttl after it was set.
type TTLCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]ttlEntry[V]
	ttl  time.Duration
}

// New creates a new TTLCache. A ttl of zero means entries never expire.
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]ttlEntry[V]),
		ttl:  ttl,
	}
}

// Get returns the value for key if present and fresh.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || c.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key and restarts its expiry.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = ttlEntry[V]{value: value, stored: clock()}
}

// GetOrLoad returns the fresh value for key, calling load on a miss.
// A failed load is not cached.
func (c *TTLCache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Invalidate drops key; InvalidateAll drops everything.
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// InvalidateAll removes every entry.
func (c *TTLCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]ttlEntry[V])
}

// Purge removes expired entries and returns how many were dropped.
func (c *TTLCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.data {
		if c.expired(e) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *TTLCache[K, V]) expired(e ttlEntry[V]) bool {
	return c.ttl > 0 && clock().Sub(e.stored) >= c.ttl
}
