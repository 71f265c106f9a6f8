package chain

import (
	"context"
	"sync"
	"time"
)

// HeadCache caches LatestBlock so that refreshes triggered close together
// share one head lookup. It never reports a head lower than one observed
// through Observe, so a window pinned right after a confirmation still
// covers the confirming block.
type HeadCache struct {
	source HeadReader
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
}

var _ HeadReader = (*HeadCache)(nil)

// NewHeadCache creates a new head cache with the given TTL.
func NewHeadCache(source HeadReader, ttl time.Duration) *HeadCache {
	return &HeadCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// LatestBlock returns the cached head if within TTL, otherwise fetches fresh.
func (c *HeadCache) LatestBlock(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if c.now().Sub(c.cachedAt) < c.ttl && c.cached > 0 {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	head, err := c.source.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if head < c.cached {
		// A lagging provider behind the last observed block.
		head = c.cached
	}
	c.cached = head
	c.cachedAt = c.now()
	return head, nil
}

// Observe raises the cached head to block, e.g. from a receipt.
func (c *HeadCache) Observe(block uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if block > c.cached {
		c.cached = block
	}
}
