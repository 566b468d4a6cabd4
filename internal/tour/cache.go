package tour

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"droc/internal/metrics"
)

// Cache memoises an Oracle by matrix content and budget. Identical buckets
// in the same node order are priced once per budget, which also keeps a
// non-deterministic oracle consistent within a run. A tour found under a
// tight budget is never served to a call with more time. Fallback results
// are never stored.
type Cache struct {
	next    Oracle
	limit   int
	entries *xsync.Map[cacheKey, Result]
}

type cacheKey struct {
	matrix uint64
	budget time.Duration
}

// NewCache wraps next. limit bounds the entry count (0 means unbounded);
// the cache is emptied when it fills up.
func NewCache(next Oracle, limit int) *Cache {
	return &Cache{next: next, limit: limit, entries: xsync.NewMap[cacheKey, Result]()}
}

// Solve implements Oracle.
func (c *Cache) Solve(m Matrix, budget time.Duration) Result {
	key := cacheKey{matrix: m.Hash(), budget: budget}
	if r, ok := c.entries.Load(key); ok {
		metrics.OracleCache.WithLabelValues("hit").Inc()
		return r.clone()
	}
	metrics.OracleCache.WithLabelValues("miss").Inc()
	r := c.next.Solve(m, budget)
	if r.Fallback {
		return r
	}
	if c.limit > 0 && c.entries.Size() >= c.limit {
		c.entries.Range(func(k cacheKey, _ Result) bool {
			c.entries.Delete(k)
			return true
		})
	}
	c.entries.Store(key, r.clone())
	return r
}

// Len reports the number of memoised tours.
func (c *Cache) Len() int { return c.entries.Size() }
