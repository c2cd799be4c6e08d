// Package cache implements the proxy's bounded, in-memory LRU response cache.
package cache

import (
	"container/list"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// entry wraps one cached response with the bookkeeping needed for LRU
// eviction. It is stored as the value of a container/list element so that
// detach/promote are O(1) once the element handle is known.
type entry struct {
	url  string
	body []byte
}

// Stats holds a point-in-time snapshot of cache performance counters.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	EntryCount int
	TotalBytes int64
}

// Cache is a thread-safe, bounded LRU store mapping a canonical URL to the
// bytes of the response last fetched for it. All public methods are safe
// for concurrent use; a single mutex serialises every mutation of index,
// order and currentBytes so the invariants below hold at every lock
// release:
//
//   - currentBytes equals the sum of entry sizes reachable from order
//   - the set of keys in index equals the set of urls in order
//   - currentBytes <= maxBytes
//   - every entry appears exactly once in order
type Cache struct {
	mu    sync.Mutex
	index map[string]*list.Element // url -> element in order
	order *list.List                // MRU at Front, LRU at Back

	currentBytes int64
	maxBytes     int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates an empty Cache with the given aggregate byte budget. The same
// budget doubles as the per-object limit: a single response larger than
// maxBytes is never cached, even by evicting every other entry.
func New(maxBytes int64) *Cache {
	return &Cache{
		index:    make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
	}
}

// MaxBytes returns the aggregate (and per-object) byte budget.
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// Find looks up urlKey and, on a hit, promotes it to the most-recently-used
// position before returning an independent copy of its body. The copy lets
// callers stream the bytes to a client without holding the cache lock.
func (c *Cache) Find(urlKey string) ([]byte, bool) {
	if urlKey == "" {
		return nil, false
	}

	c.mu.Lock()
	elem, ok := c.index[urlKey]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}

	c.order.MoveToFront(elem)
	body := elem.Value.(*entry).body
	out := make([]byte, len(body))
	copy(out, body)
	c.mu.Unlock()

	c.hits.Add(1)
	return out, true
}

// Add inserts or replaces the cached response for urlKey. It silently does
// nothing if urlKey is empty, body is empty, or body exceeds the cache's
// maxBytes: none of these are errors the caller needs to react to, since
// the response has already been streamed to the client regardless.
func (c *Cache) Add(urlKey string, body []byte) {
	if urlKey == "" || len(body) == 0 || int64(len(body)) > c.maxBytes {
		return
	}

	// Copy so later mutation of the caller's buffer can't corrupt the
	// cached entry.
	stored := make([]byte, len(body))
	copy(stored, body)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[urlKey]; ok {
		c.detachLocked(elem)
	}

	need := int64(len(stored))
	for c.currentBytes+need > c.maxBytes {
		if !c.evictOneLocked() {
			break
		}
	}

	elem := c.order.PushFront(&entry{url: urlKey, body: stored})
	c.index[urlKey] = elem
	c.currentBytes += need
}

// detachLocked removes elem from order and index and subtracts its size
// from currentBytes. Callers must hold c.mu.
func (c *Cache) detachLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.index, e.url)
	c.currentBytes -= int64(len(e.body))
}

// evictOneLocked removes the least-recently-used entry, if any. Callers
// must hold c.mu. Returns false if the cache was already empty.
func (c *Cache) evictOneLocked() bool {
	back := c.order.Back()
	if back == nil {
		return false
	}
	c.detachLocked(back)
	c.evictions.Add(1)
	return true
}

// PurgeAll removes every entry and returns how many were removed. Hit/miss
// counters are left untouched; only live entries are cleared.
func (c *Cache) PurgeAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := len(c.index)
	c.index = make(map[string]*list.Element)
	c.order = list.New()
	c.currentBytes = 0
	return count
}

// PurgeURL removes a single entry by its exact key, reporting whether it
// was present.
func (c *Cache) PurgeURL(urlKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[urlKey]
	if !ok {
		return false
	}
	c.detachLocked(elem)
	return true
}

// PurgeDomain removes every entry whose URL host matches (or is a
// subdomain of) domain, returning the count removed. Keys that fail to
// parse as URLs are left untouched rather than treated as a match.
func (c *Cache) PurgeDomain(domain string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, elem := range c.index {
		u, err := url.Parse(key)
		if err != nil {
			continue
		}
		if u.Hostname() == domain || strings.HasSuffix(u.Hostname(), "."+domain) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.detachLocked(elem)
	}
	return len(toRemove)
}

// Stats returns a snapshot of the cache's current size and lifetime
// hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entryCount := len(c.index)
	totalBytes := c.currentBytes
	c.mu.Unlock()

	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		EntryCount: entryCount,
		TotalBytes: totalBytes,
	}
}
