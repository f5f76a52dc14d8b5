// Package cache provides generic LRU caches used to memoise derived
// document data such as subtree hashes and wrapped paragraph lines.
package cache

import (
	"sync"
	"time"
)

// Cache is a generic LRU cache interface.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache.
	Get(key K) (V, bool)

	// Put stores a value in the cache.
	Put(key K, value V)

	// Remove removes a value from the cache.
	Remove(key K)

	// Clear removes all entries from the cache.
	Clear()

	// Len returns the number of entries in the cache.
	Len() int

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	Size       int
	MaxSize    int
	TotalBytes int64
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration

	// OnEvict is called when an entry is evicted.
	OnEvict func(key, value interface{})
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{MaxSize: 1024}
}

// now is replaced in tests.
var now = time.Now

// slot is one node of the intrusive recency list.
type slot[K comparable, V any] struct {
	key        K
	value      V
	expiresAt  time.Time
	prev, next *slot[K, V]
}

// lruCache is a thread-safe LRU cache. head is the most recently used slot.
type lruCache[K comparable, V any] struct {
	mu     sync.Mutex
	config Config
	index  map[K]*slot[K, V]
	head   *slot[K, V]
	tail   *slot[K, V]
	stats  Stats
}

// NewLRUCache creates a new LRU cache with the given configuration.
func NewLRUCache[K comparable, V any](config Config) Cache[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}
	return &lruCache[K, V]{
		config: config,
		index:  make(map[K]*slot[K, V]),
	}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	if !s.expiresAt.IsZero() && now().After(s.expiresAt) {
		c.unlink(s)
		delete(c.index, key)
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.moveToFront(s)
	c.stats.Hits++
	return s.value, true
}

func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.config.TTL > 0 {
		expires = now().Add(c.config.TTL)
	}

	if s, ok := c.index[key]; ok {
		s.value = value
		s.expiresAt = expires
		c.moveToFront(s)
		return
	}

	s := &slot[K, V]{key: key, value: value, expiresAt: expires}
	c.index[key] = s
	c.pushFront(s)

	for c.config.MaxSize > 0 && len(c.index) > c.config.MaxSize {
		c.evict(c.tail)
	}
}

func (c *lruCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.index[key]; ok {
		c.unlink(s)
		delete(c.index, key)
	}
}

func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[K]*slot[K, V])
	c.head, c.tail = nil, nil
}

func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *lruCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stats
	st.Size = len(c.index)
	st.MaxSize = c.config.MaxSize
	return st
}

func (c *lruCache[K, V]) evict(s *slot[K, V]) {
	if s == nil {
		return
	}
	c.unlink(s)
	delete(c.index, s.key)
	c.stats.Evictions++
	if c.config.OnEvict != nil {
		c.config.OnEvict(s.key, s.value)
	}
}

func (c *lruCache[K, V]) pushFront(s *slot[K, V]) {
	s.prev = nil
	s.next = c.head
	if c.head != nil {
		c.head.prev = s
	}
	c.head = s
	if c.tail == nil {
		c.tail = s
	}
}

func (c *lruCache[K, V]) unlink(s *slot[K, V]) {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		c.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else {
		c.tail = s.prev
	}
	s.prev, s.next = nil, nil
}

func (c *lruCache[K, V]) moveToFront(s *slot[K, V]) {
	if c.head == s {
		return
	}
	c.unlink(s)
	c.pushFront(s)
}

// GetOrCompute returns the cached value for key, computing and storing it
// with fn on a miss. Errors from fn are returned and nothing is cached.
func GetOrCompute[K comparable, V any](c Cache[K, V], key K, fn func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	c.Put(key, v)
	return v, nil
}

// BoundedCache is an LRU cache that also limits the summed size of its values.
type BoundedCache[K comparable, V any] struct {
	mu       sync.Mutex
	cache    Cache[K, V]
	maxBytes int64
	sizes    map[K]int64
	total    int64
	sizeFunc func(V) int64
	order    []K
}

// NewBoundedCache creates a new cache with both entry count and byte size limits.
func NewBoundedCache[K comparable, V any](config Config, maxBytes int64, sizeFunc func(V) int64) *BoundedCache[K, V] {
	b := &BoundedCache[K, V]{
		maxBytes: maxBytes,
		sizes:    make(map[K]int64),
		sizeFunc: sizeFunc,
	}
	userEvict := config.OnEvict
	config.OnEvict = func(key, value interface{}) {
		if k, ok := key.(K); ok {
			b.forget(k)
		}
		if userEvict != nil {
			userEvict(key, value)
		}
	}
	b.cache = NewLRUCache[K, V](config)
	return b
}

// Get retrieves a value from the cache.
func (b *BoundedCache[K, V]) Get(key K) (V, bool) {
	return b.cache.Get(key)
}

// Put stores a value unless it alone exceeds the byte limit. Older entries
// are dropped first-in first-out until the new value fits.
func (b *BoundedCache[K, V]) Put(key K, value V) {
	size := b.sizeFunc(value)
	if b.maxBytes > 0 && size > b.maxBytes {
		return
	}

	b.mu.Lock()
	var victims []K
	if old, ok := b.sizes[key]; ok {
		b.total -= old
		delete(b.sizes, key)
		b.dropOrder(key)
	}
	for b.maxBytes > 0 && b.total+size > b.maxBytes && len(b.order) > 0 {
		victim := b.order[0]
		b.order = b.order[1:]
		b.total -= b.sizes[victim]
		delete(b.sizes, victim)
		victims = append(victims, victim)
	}
	b.sizes[key] = size
	b.total += size
	b.order = append(b.order, key)
	b.mu.Unlock()

	for _, v := range victims {
		b.cache.Remove(v)
	}
	b.cache.Put(key, value)
}

// Remove removes a value from the cache.
func (b *BoundedCache[K, V]) Remove(key K) {
	b.forget(key)
	b.cache.Remove(key)
}

// Clear removes all entries from the cache.
func (b *BoundedCache[K, V]) Clear() {
	b.mu.Lock()
	b.sizes = make(map[K]int64)
	b.order = nil
	b.total = 0
	b.mu.Unlock()
	b.cache.Clear()
}

// Len returns the number of entries in the cache.
func (b *BoundedCache[K, V]) Len() int {
	return b.cache.Len()
}

// Stats returns cache statistics including byte size information.
func (b *BoundedCache[K, V]) Stats() Stats {
	st := b.cache.Stats()
	b.mu.Lock()
	st.TotalBytes = b.total
	b.mu.Unlock()
	return st
}

func (b *BoundedCache[K, V]) forget(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if size, ok := b.sizes[key]; ok {
		b.total -= size
		delete(b.sizes, key)
		b.dropOrder(key)
	}
}

func (b *BoundedCache[K, V]) dropOrder(key K) {
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
