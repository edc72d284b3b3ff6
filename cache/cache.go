package cache

import (
	"sync"
	"sync/atomic"

	"github.com/quaydb/pgxec/rewrite"
)

// Stats tracks cache performance, mirroring the teacher's CacheStats
// (client/statement_cache.go) against CachedQuery entries instead of
// statement names.
type Stats struct {
	Hits        atomic.Int64
	Misses      atomic.Int64
	Evictions   atomic.Int64
	CurrentSize atomic.Int64
}

// BuildFunc rewrites SQL into a *rewrite.Result the first time a Key is
// borrowed.
type BuildFunc func() (*rewrite.Result, error)

// QueryCache is a bounded, per-connection mapping from Key to CachedQuery
// with LRU eviction and a borrow/release discipline (spec.md §4.2).
// Grounded on the teacher's StatementCache (client/statement_cache.go),
// generalized from a name-keyed map of live *Statement values to a
// hash-keyed map of *CachedQuery values that can outlive any one
// statement.
type QueryCache struct {
	mu          sync.Mutex
	entries     map[uint64]*CachedQuery
	accessOrder []uint64
	maxSize     int
	stats       Stats

	onEvictPrepared func(serverName string)
}

// New returns a QueryCache that holds at most maxSize entries with a zero
// borrow count.
func New(maxSize int) *QueryCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &QueryCache{
		entries:     make(map[uint64]*CachedQuery),
		accessOrder: make([]uint64, 0, maxSize),
		maxSize:     maxSize,
	}
}

// SetEvictionHook registers fn to run, with the cache lock held, whenever
// evictLRULocked drops a server-prepared entry — the owning connection
// wires this to its Engine.QueueDeferredClose so the Close(statement) spec.md
// §4.2 requires before the name is reused actually gets sent, instead of
// leaving NeedsDeferredClose set on an entry nothing ever reads again.
func (c *QueryCache) SetEvictionHook(fn func(serverName string)) {
	c.mu.Lock()
	c.onEvictPrepared = fn
	c.mu.Unlock()
}

// Borrow returns the CachedQuery for key, building it via build on a
// cache miss, and increments its borrow count. Callers must call Release
// exactly once per Borrow.
func (c *QueryCache) Borrow(key Key, build BuildFunc) (*CachedQuery, error) {
	h := key.Hash()

	c.mu.Lock()
	if q, ok := c.entries[h]; ok {
		c.stats.Hits.Add(1)
		q.touch()
		q.borrowCount.Add(1)
		c.moveToMostRecentlyUsed(h)
		c.mu.Unlock()
		return q, nil
	}
	c.mu.Unlock()

	c.stats.Misses.Add(1)
	result, err := build()
	if err != nil {
		return nil, err
	}
	q := newCachedQuery(key, result)
	q.borrowCount.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[h]; ok {
		// Lost the race with a concurrent builder; use the winner.
		existing.touch()
		existing.borrowCount.Add(1)
		c.moveToMostRecentlyUsed(h)
		return existing, nil
	}
	if len(c.accessOrder) >= c.maxSize {
		c.evictLRULocked()
	}
	c.entries[h] = q
	c.accessOrder = append(c.accessOrder, h)
	c.stats.CurrentSize.Store(int64(len(c.accessOrder)))
	return q, nil
}

// Release decrements q's borrow count. A CachedQuery with a zero borrow
// count becomes eligible for LRU eviction.
func (c *QueryCache) Release(q *CachedQuery) {
	q.borrowCount.Add(-1)
}

// Lookup returns the entry for key without borrowing it, for read-only
// inspection (e.g. promotion checks).
func (c *QueryCache) Lookup(key Key) (*CachedQuery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.entries[key.Hash()]
	return q, ok
}

// Stats returns a point-in-time copy of the cache's counters.
func (c *QueryCache) Stats() (hits, misses, evictions, size int64) {
	return c.stats.Hits.Load(), c.stats.Misses.Load(), c.stats.Evictions.Load(), c.stats.CurrentSize.Load()
}

// evictLRULocked evicts the least-recently-used entry with a zero borrow
// count. Entries currently borrowed are never evicted (spec.md §4.2).
// Must be called with c.mu held.
func (c *QueryCache) evictLRULocked() {
	for i, h := range c.accessOrder {
		q := c.entries[h]
		if q.BorrowCount() > 0 {
			continue
		}
		if q.IsPrepared() {
			q.RequestDeferredClose()
			if c.onEvictPrepared != nil {
				c.onEvictPrepared(q.ServerName())
			}
		}
		delete(c.entries, h)
		c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
		c.stats.Evictions.Add(1)
		c.stats.CurrentSize.Store(int64(len(c.accessOrder)))
		return
	}
	// Every entry is borrowed; over-fill rather than evict a live query.
}

// moveToMostRecentlyUsed must be called with c.mu held.
func (c *QueryCache) moveToMostRecentlyUsed(h uint64) {
	for i, v := range c.accessOrder {
		if v == h {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
	c.accessOrder = append(c.accessOrder, h)
}
