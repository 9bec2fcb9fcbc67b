// Package cache provides a size-bounded LRU cache whose eviction weighs
// how often an entry is used against how much memory it holds.
package cache

import (
	"container/list"
	"sync"
)

// DefaultMaxSize is the budget used when NewLRU is given none (64 MiB).
const DefaultMaxSize = 64 << 20

// evictionWindow is how many entries at the cold end compete for eviction.
const evictionWindow = 5

// LRU is a concurrency-safe cache bounded by the summed size of its values.
// Eviction picks, among the evictionWindow least recently used entries, the
// one with the fewest uses per KiB, so a large parsed table that is read
// once goes before a small one read often.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	order   *list.List // front is most recent; elements hold *item[K, V]
	index   map[K]*list.Element
	sizeOf  func(V) int64
	budget  int64
	used    int64
	counter Stats
}

type item[K comparable, V any] struct {
	key   K
	value V
	size  int64
	uses  int64
}

func (it *item[K, V]) usesPerKiB() float64 {
	return float64(it.uses) / max(float64(it.size)/1024, 1)
}

// NewLRU creates a cache of maxSize bytes as measured by sizeOf. A
// non-positive maxSize means DefaultMaxSize.
func NewLRU[K comparable, V any](maxSize int64, sizeOf func(V) int64) *LRU[K, V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &LRU[K, V]{
		order:  list.New(),
		index:  make(map[K]*list.Element),
		sizeOf: sizeOf,
		budget: maxSize,
	}
}

// Get returns the value under key and marks it used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.counter.Misses++

		var zero V

		return zero, false
	}

	c.counter.Hits++

	it := el.Value.(*item[K, V]) //nolint:forcetypeassert // only *item values are stored.
	it.uses++
	c.order.MoveToFront(el)

	return it.value, true
}

// Put stores value under key, replacing any previous value. A value larger
// than the whole budget is dropped.
func (c *LRU[K, V]) Put(key K, value V) {
	size := c.sizeOf(value)
	if size > c.budget {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.drop(el)
	}

	for c.used+size > c.budget && c.order.Len() > 0 {
		c.drop(c.victim())
		c.counter.Evictions++
	}

	c.index[key] = c.order.PushFront(&item[K, V]{key: key, value: value, size: size, uses: 1})
	c.used += size
}

// Remove deletes key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if ok {
		c.drop(el)
	}

	return ok
}

// RemoveFunc deletes every key that match accepts and returns how many.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int

	for key, el := range c.index {
		if match(key) {
			c.drop(el)
			n++
		}
	}

	return n
}

// Clear empties the cache. Counters are kept.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	clear(c.index)
	c.used = 0
}

// Stats is a snapshot of cache counters and occupancy.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Entries     int   `json:"entries"`
	CurrentSize int64 `json:"current_size"`
	MaxSize     int64 `json:"max_size"`
}

// HitRate is hits over lookups, 0 before the first lookup.
func (s Stats) HitRate() float64 {
	if lookups := s.Hits + s.Misses; lookups > 0 {
		return float64(s.Hits) / float64(lookups)
	}

	return 0
}

// Stats returns the current counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.counter
	s.Entries = c.order.Len()
	s.CurrentSize = c.used
	s.MaxSize = c.budget

	return s
}

// victim scans the cold end; ties go to the least recent entry.
func (c *LRU[K, V]) victim() *list.Element {
	pick := c.order.Back()
	lowest := pick.Value.(*item[K, V]).usesPerKiB() //nolint:forcetypeassert // only *item values are stored.

	for el, n := pick.Prev(), 1; el != nil && n < evictionWindow; el, n = el.Prev(), n+1 {
		if cost := el.Value.(*item[K, V]).usesPerKiB(); cost < lowest { //nolint:forcetypeassert // as above.
			pick, lowest = el, cost
		}
	}

	return pick
}

func (c *LRU[K, V]) drop(el *list.Element) {
	it := c.order.Remove(el).(*item[K, V]) //nolint:forcetypeassert // only *item values are stored.
	delete(c.index, it.key)
	c.used -= it.size
}
