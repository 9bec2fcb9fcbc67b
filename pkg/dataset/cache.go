package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/fillspc/pkg/cache"
)

// Cache memoises loaded tables by path, content hash and schema. Entries for
// a path stay valid until Invalidate or Purge is called; a changed file is
// loaded under a new key because its hash differs.
type Cache struct {
	lru *cache.LRU[string, *Table]
}

// NewCache creates a cache bounded to maxBytes of estimated table memory.
func NewCache(maxBytes int64) *Cache {
	return &Cache{
		lru: cache.NewLRU[string, *Table](maxBytes, (*Table).SizeBytes),
	}
}

// Load returns the table at path, reading it only when no entry exists for
// its current content. The second result reports a cache hit.
func (c *Cache) Load(path string, schema Schema) (*Table, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("resolve dataset path: %w", err)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, false, fmt.Errorf("read dataset: %w", err)
	}

	sum := sha256.Sum256(content)
	key := cacheKey(abs, hex.EncodeToString(sum[:]), schema)

	if table, ok := c.lru.Get(key); ok {
		return table, true, nil
	}

	table, err := ReadCSV(bytes.NewReader(content), schema)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}

	table.Source = path
	c.lru.Put(key, table)

	return table, false, nil
}

// Invalidate drops every entry loaded from path and returns how many were removed.
func (c *Cache) Invalidate(path string) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	prefix := abs + "\x00"

	return c.lru.RemoveFunc(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Clear() }

// Stats returns the underlying cache counters.
func (c *Cache) Stats() cache.Stats { return c.lru.Stats() }

func cacheKey(path, hash string, schema Schema) string {
	return path + "\x00" + hash + "\x00" + schema.Fingerprint()
}
