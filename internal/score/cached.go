package score

import (
	"context"
	"sync"
	"time"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// defaultCacheCapacity bounds the number of cached subjects.
const defaultCacheCapacity = 10_000

type cachedScore struct {
	score     int
	expiresAt time.Time
}

// CachedSource wraps another source with a bounded TTL cache. Only successful
// resolutions are cached; a stale entry is never served past its freshness
// window, and a failure of the inner source is passed through uncached.
type CachedSource struct {
	inner    domain.ScoreSource
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]cachedScore
}

// NewCachedSource wraps inner with a cache holding entries for ttl.
func NewCachedSource(inner domain.ScoreSource, ttl time.Duration, capacity int) *CachedSource {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &CachedSource{
		inner:    inner,
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]cachedScore),
	}
}

// Resolve serves from cache when fresh, otherwise consults the inner source.
func (c *CachedSource) Resolve(ctx context.Context, subject string) (int, error) {
	now := time.Now()

	c.mu.Lock()
	if cached, ok := c.entries[subject]; ok {
		if now.Before(cached.expiresAt) {
			c.mu.Unlock()
			return cached.score, nil
		}
		delete(c.entries, subject)
	}
	c.mu.Unlock()

	score, err := c.inner.Resolve(ctx, subject)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.capacity {
		// Evict expired entries first; if none are expired the cache is
		// genuinely full and the new entry just is not cached.
		for k, v := range c.entries {
			if !now.Before(v.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	if len(c.entries) < c.capacity {
		c.entries[subject] = cachedScore{score: score, expiresAt: now.Add(c.ttl)}
	}
	c.mu.Unlock()

	return score, nil
}
