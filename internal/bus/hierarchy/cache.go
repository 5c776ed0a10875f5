package hierarchy

import (
	"reflect"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of message types Cached remembers.
const DefaultCacheSize = 1024

type cacheEntry struct {
	gen   uint64
	types []reflect.Type
}

// Cached memoizes another resolver in an LRU cache. Tracking a new interface
// through Cached invalidates every entry; tracking on the wrapped resolver
// directly does not, so always track through Cached.
type Cached struct {
	inner Resolver
	cache *lru.Cache[reflect.Type, cacheEntry]
	gen   atomic.Uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCached wraps inner with an LRU cache of the given size.
func NewCached(inner Resolver, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[reflect.Type, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Ancestors implements Resolver.
func (c *Cached) Ancestors(t reflect.Type) []reflect.Type {
	gen := c.gen.Load()
	if e, ok := c.cache.Get(t); ok && e.gen == gen {
		c.hits.Add(1)
		return e.types
	}
	c.misses.Add(1)

	types := c.inner.Ancestors(t)
	c.cache.Add(t, cacheEntry{gen: gen, types: types})
	return types
}

// Track forwards to the wrapped resolver and invalidates the cache when the
// type was new.
func (c *Cached) Track(t reflect.Type) bool {
	tr, ok := c.inner.(Tracker)
	if !ok {
		return false
	}
	if !tr.Track(t) {
		return false
	}
	c.gen.Add(1)
	c.cache.Purge()
	return true
}

// Stats returns cache hit and miss counts.
func (c *Cached) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached entries.
func (c *Cached) Len() int {
	return c.cache.Len()
}
