package advisory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CachedSource keeps the last feed for ttl. When a refresh fails and a feed
// was loaded before, the stale feed is served.
type CachedSource struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	feed      *Feed
	fetchedAt time.Time
}

// NewCachedSource wraps source with a ttl cache
func NewCachedSource(source Source, ttl time.Duration) *CachedSource {
	return &CachedSource{source: source, ttl: ttl, now: time.Now}
}

// Fetch returns the cached feed or refreshes it
func (c *CachedSource) Fetch(ctx context.Context) (*Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.feed != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.feed, nil
	}

	feed, err := c.source.Fetch(ctx)
	if err != nil {
		if c.feed != nil {
			slog.Warn("Advisory feed refresh failed, serving cached feed",
				"age", c.now().Sub(c.fetchedAt).String(),
				"error", err,
			)
			return c.feed, nil
		}
		return nil, err
	}

	c.feed = feed
	c.fetchedAt = c.now()
	return feed, nil
}
