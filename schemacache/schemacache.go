// Package schemacache caches discovered table schemas across calls with a
// TTL and explicit invalidation (spec §3 "Schema cache entry", §4.2 schema
// discovery, §8 "cache freshness"). It is a process-wide shared structure
// and must be safe for concurrent reads and writes (spec §5).
package schemacache

import (
	"sync"
	"time"

	"github.com/mitayan0/WaveQL/batch"
)

type key struct {
	adapter string
	table   string
}

type entry struct {
	columns batch.Schema
	expiry  time.Time
}

// Cache is a concurrency-safe (adapter, table) -> schema cache with
// per-entry TTL. The zero value is not usable; construct with New.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]entry
	now     func() time.Time
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[key]entry),
		now:     time.Now,
	}
}

// Get returns the cached schema for (adapterName, table) if present and not
// expired. Entries older than their TTL are treated as absent (spec §3
// invariant), so an expired entry is a cache miss, not returned stale.
func (c *Cache) Get(adapterName, table string) (batch.Schema, bool) {
	c.mu.RLock()
	e, ok := c.entries[key{adapterName, table}]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiry) {
		return nil, false
	}
	return e.columns, true
}

// Set stores columns for (adapterName, table) with the given TTL.
func (c *Cache) Set(adapterName, table string, columns batch.Schema, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{adapterName, table}] = entry{
		columns: columns,
		expiry:  c.now().Add(ttl),
	}
}

// Invalidate removes any cached entry for (adapterName, table). A Get
// immediately following Invalidate always misses (spec §8 "cache
// freshness").
func (c *Cache) Invalidate(adapterName, table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key{adapterName, table})
}

// InvalidateAdapter removes every cached entry for adapterName, used when an
// adapter's connection is recycled or its schema is known to have changed.
func (c *Cache) InvalidateAdapter(adapterName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.adapter == adapterName {
			delete(c.entries, k)
		}
	}
}
