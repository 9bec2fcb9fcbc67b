package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byteLen(b []byte) int64 { return int64(len(b)) }

func TestLRU_GetPut(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, []byte](1024, byteLen)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("a", []byte("hello"))

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(5), stats.CurrentSize)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-12)
}

func TestLRU_ReplaceUpdatesSize(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, []byte](1024, byteLen)
	c.Put("a", make([]byte, 100))
	c.Put("a", make([]byte, 10))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(10), stats.CurrentSize)
}

func TestLRU_EvictsWhenFull(t *testing.T) {
	t.Parallel()

	c := NewLRU[int, []byte](300, byteLen)

	for i := range 5 {
		c.Put(i, make([]byte, 100))
	}

	stats := c.Stats()
	assert.Equal(t, 3, stats.Entries)
	assert.LessOrEqual(t, stats.CurrentSize, int64(300))
	assert.Equal(t, int64(2), stats.Evictions)

	_, ok := c.Get(4)
	assert.True(t, ok, "most recent entry survives")
}

func TestLRU_PrefersEvictingRarelyUsed(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, []byte](300, byteLen)
	c.Put("hot", make([]byte, 100))

	for range 10 {
		c.Get("hot")
	}

	c.Put("cold1", make([]byte, 100))
	c.Put("cold2", make([]byte, 100))
	c.Put("new", make([]byte, 100))

	_, ok := c.Get("hot")
	assert.True(t, ok)
}

func TestLRU_OversizedValueSkipped(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, []byte](10, byteLen)
	c.Put("big", make([]byte, 11))

	assert.Equal(t, 0, c.Stats().Entries)
}

func TestLRU_RemoveAndClear(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, []byte](0, byteLen)
	assert.Equal(t, int64(DefaultMaxSize), c.Stats().MaxSize)

	c.Put("a/1", []byte("x"))
	c.Put("a/2", []byte("y"))
	c.Put("b/1", []byte("z"))

	assert.True(t, c.Remove("b/1"))
	assert.False(t, c.Remove("b/1"))

	removed := c.RemoveFunc(func(k string) bool { return k[0] == 'a' })
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, c.Stats().Entries)

	c.Put("c", []byte("w"))
	c.Clear()
	assert.Equal(t, int64(0), c.Stats().CurrentSize)
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, []byte](4096, byteLen)

	var wg sync.WaitGroup

	for w := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 100 {
				key := fmt.Sprintf("%d-%d", w, i%10)
				c.Put(key, make([]byte, 16))
				c.Get(key)
			}
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, c.Stats().CurrentSize, int64(4096))
}
