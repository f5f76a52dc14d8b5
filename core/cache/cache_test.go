package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUCache_BasicOperations(t *testing.T) {
	c := NewLRUCache[string, int](DefaultConfig())

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v, want 1, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	var evicted []string
	c := NewLRUCache[string, int](Config{
		MaxSize: 2,
		OnEvict: func(key, value interface{}) { evicted = append(evicted, key.(string)) },
	})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // a is now most recent
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestLRUCache_UpdateAndRemove(t *testing.T) {
	c := NewLRUCache[string, int](DefaultConfig())
	c.Put("k", 1)
	c.Put("k", 2)
	if v, _ := c.Get("k"); v != 2 {
		t.Errorf("Get(k) = %d, want 2", v)
	}
	c.Remove("k")
	c.Remove("never-there")
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	c.Put("x", 1)
	c.Clear()
	if _, ok := c.Get("x"); ok {
		t.Error("Clear() left entries behind")
	}
}

func TestLRUCache_TTL(t *testing.T) {
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oldNow := now
	now = func() time.Time { return current }
	defer func() { now = oldNow }()

	c := NewLRUCache[string, string](Config{TTL: time.Minute})
	c.Put("k", "v")

	current = current.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired early")
	}
	current = current.Add(31 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expiry, want 0", c.Len())
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache[int, int](Config{MaxSize: 10})
	c.Put(1, 1)
	c.Get(1)
	c.Get(1)
	c.Get(2)

	st := c.Stats()
	if st.Hits != 2 || st.Misses != 1 {
		t.Errorf("Hits, Misses = %d, %d, want 2, 1", st.Hits, st.Misses)
	}
	if st.Size != 1 || st.MaxSize != 10 {
		t.Errorf("Size, MaxSize = %d, %d, want 1, 10", st.Size, st.MaxSize)
	}
	if got := st.HitRate(); got < 0.66 || got > 0.67 {
		t.Errorf("HitRate() = %f, want ~0.667", got)
	}
	if (Stats{}).HitRate() != 0 {
		t.Error("HitRate() of empty stats should be 0")
	}
}

func TestLRUCache_NegativeMaxSizeIsUnlimited(t *testing.T) {
	c := NewLRUCache[int, int](Config{MaxSize: -5})
	for i := 0; i < 500; i++ {
		c.Put(i, i)
	}
	if c.Len() != 500 {
		t.Errorf("Len() = %d, want 500", c.Len())
	}
}

func TestLRUCache_Concurrency(t *testing.T) {
	c := NewLRUCache[string, int](Config{MaxSize: 50})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", g, i%60)
				c.Put(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 50 {
		t.Errorf("Len() = %d, exceeds MaxSize 50", c.Len())
	}
}

func TestGetOrCompute(t *testing.T) {
	c := NewLRUCache[string, int](DefaultConfig())
	calls := 0
	fn := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := GetOrCompute(c, "answer", fn)
		if err != nil || v != 42 {
			t.Fatalf("GetOrCompute() = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := GetOrCompute(c, "bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("GetOrCompute() error = %v, want boom", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed computation was cached")
	}
}

func TestBoundedCache_ByteLimit(t *testing.T) {
	size := func(s string) int64 { return int64(len(s)) }
	b := NewBoundedCache[string, string](DefaultConfig(), 10, size)

	b.Put("a", "12345")
	b.Put("b", "12345")
	if got := b.Stats().TotalBytes; got != 10 {
		t.Errorf("TotalBytes = %d, want 10", got)
	}

	b.Put("c", "123")
	if _, ok := b.Get("a"); ok {
		t.Error("a should have been dropped to make room")
	}
	if got := b.Stats().TotalBytes; got != 8 {
		t.Errorf("TotalBytes = %d, want 8", got)
	}

	b.Put("huge", "this value is far too large")
	if _, ok := b.Get("huge"); ok {
		t.Error("oversized value should not be cached")
	}
}

func TestBoundedCache_RemoveClearLen(t *testing.T) {
	size := func(v []byte) int64 { return int64(len(v)) }
	b := NewBoundedCache[int, []byte](Config{MaxSize: 2}, 0, size)

	b.Put(1, make([]byte, 4))
	b.Put(2, make([]byte, 4))
	b.Put(3, make([]byte, 4)) // count limit evicts 1
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
	if got := b.Stats().TotalBytes; got != 8 {
		t.Errorf("TotalBytes after eviction = %d, want 8", got)
	}

	b.Remove(2)
	b.Remove(99)
	if got := b.Stats().TotalBytes; got != 4 {
		t.Errorf("TotalBytes after Remove = %d, want 4", got)
	}

	b.Clear()
	if b.Len() != 0 || b.Stats().TotalBytes != 0 {
		t.Errorf("Clear() left Len=%d TotalBytes=%d", b.Len(), b.Stats().TotalBytes)
	}
}
