// Package softcache is the reclaimable second-level cache that sits behind
// every envelope's direct block reference.
//
// Entries are keyed by envelope id and bounded by their total byte size.
// A miss is never an error: the caller falls through to the write-back
// buffer, the eviction file or the backing store. [Cache.Reclaim] is the
// memory-pressure hook that drops the least recently used entries.
package softcache

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type entry struct {
	value any
	size  int64
}

// Cache is a byte-bounded LRU. It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[int64, entry]
	maxBytes int64
	curBytes int64

	hits      atomic.Int64
	misses    atomic.Int64
	reclaimed atomic.Int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int
	Bytes     int64
	MaxBytes  int64
	Hits      int64
	Misses    int64
	Reclaimed int64
}

// New creates a cache holding at most maxBytes. A non-positive maxBytes
// disables the bound.
func New(maxBytes int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = math.MaxInt64
	}
	c := &Cache{maxBytes: maxBytes}
	// The entry count is unbounded; size accounting happens in onEvict.
	lru, err := simplelru.NewLRU[int64, entry](math.MaxInt32, c.onEvict)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	c.lru = lru
	return c
}

// onEvict runs under c.mu for every entry leaving the LRU.
func (c *Cache) onEvict(_ int64, e entry) {
	c.curBytes -= e.size
}

// Put stores value for id, replacing any previous entry. A value larger
// than the whole cache is not stored.
func (c *Cache) Put(id int64, value any, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(id)
	if size > c.maxBytes {
		return
	}
	for c.curBytes+size > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
		c.reclaimed.Add(1)
	}
	c.lru.Add(id, entry{value: value, size: size})
	c.curBytes += size
}

// Get returns the value cached for id and marks it recently used.
func (c *Cache) Get(id int64) (any, bool) {
	c.mu.Lock()
	e, ok := c.lru.Get(id)
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Contains reports whether id is cached without touching recency.
func (c *Cache) Contains(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(id)
}

// Remove drops the entry for id.
func (c *Cache) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}

// Reclaim drops least recently used entries until at least bytes have been
// freed or the cache is empty. It returns the number of bytes freed.
func (c *Cache) Reclaim(bytes int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.curBytes
	for start-c.curBytes < bytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
		c.reclaimed.Add(1)
	}
	return start - c.curBytes
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Len()
	c.lru.Purge()
	c.reclaimed.Add(int64(n))
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries, bytes := c.lru.Len(), c.curBytes
	c.mu.Unlock()

	limit := c.maxBytes
	if limit == math.MaxInt64 {
		limit = 0
	}
	return Stats{
		Entries:   entries,
		Bytes:     bytes,
		MaxBytes:  limit,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Reclaimed: c.reclaimed.Load(),
	}
}
