package cache

import (
	"fmt"
	"time"

	"harvester/internal/core"
)

// VersionSource exposes the mutation counter of the record store.
type VersionSource interface {
	Version() uint64
}

// SummaryCache memoizes dashboard summaries per store version and filter, so
// any mutation makes older entries unreachable.
type SummaryCache struct {
	lru    *LRU[string, core.Summary]
	source VersionSource
}

func NewSummaryCache(source VersionSource, maxSize int, ttl time.Duration) *SummaryCache {
	return &SummaryCache{lru: NewLRU[string, core.Summary](maxSize, ttl), source: source}
}

// Get returns the cached summary for f or computes and stores it.
func (c *SummaryCache) Get(f core.Filter, compute func(core.Filter) core.Summary) (core.Summary, bool) {
	key := fmt.Sprintf("%d|%s", c.source.Version(), f.Key())
	if s, ok := c.lru.Get(key); ok {
		return s, true
	}
	s := compute(f)
	c.lru.Set(key, s)
	return s, false
}

func (c *SummaryCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

func (c *SummaryCache) Len() int {
	return c.lru.Len()
}
