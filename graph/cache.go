package graph

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the capacity used when NewCache is given a size <= 0.
const DefaultCacheSize = 256

// Compile-time interface compliance checks
var _ Lookup = (*Registry)(nil)
var _ Lookup = (*Cache)(nil)

// Cache is an advisory name-to-project cache in front of an authoritative
// Lookup. It tolerates staleness: a hit on a project that was removed or
// renamed since it was cached is evicted and the source is consulted.
//
// Cache is safe for concurrent use. Owners call Purge on teardown so stale
// mappings never outlive the session that produced them.
type Cache struct {
	source  Lookup
	entries *lru.Cache[string, *Project]
}

// NewCache wraps source with an LRU of the given capacity.
func NewCache(source Lookup, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, *Project](size)
	if err != nil {
		return nil, fmt.Errorf("create project cache: %w", err)
	}
	return &Cache{source: source, entries: entries}, nil
}

// Project implements Lookup.
func (c *Cache) Project(name string) (*Project, bool) {
	if p, ok := c.entries.Get(name); ok {
		if !p.Removed() && p.Name() == name {
			return p, true
		}
		c.entries.Remove(name)
	}
	p, ok := c.source.Project(name)
	if !ok {
		return nil, false
	}
	c.entries.Add(name, p)
	return p, true
}

// Purge drops every cached entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
