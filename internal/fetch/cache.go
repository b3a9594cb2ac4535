package fetch

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// DefaultCacheTTL keeps repeated hits on the same result page within one
// scheduling burst from reaching the provider twice.
const DefaultCacheTTL = 30 * time.Second

// Cache memoizes successful fetches by logical URL for a short TTL. Errors
// are never cached, so a failed fetch is retried on the next request.
type Cache struct {
	inner tracker.Fetcher
	ttl   time.Duration
	store *gocache.Cache
}

// NewCache wraps inner with a TTL cache. A non-positive ttl disables caching
// and turns the wrapper into a passthrough.
func NewCache(inner tracker.Fetcher, ttl time.Duration) *Cache {
	c := &Cache{inner: inner, ttl: ttl}
	if ttl > 0 {
		c.store = gocache.New(ttl, 2*ttl)
	}
	return c
}

// Fetch returns the cached content for url when fresh, fetching through
// otherwise.
func (c *Cache) Fetch(ctx context.Context, url string) (string, error) {
	if c.store == nil {
		return c.inner.Fetch(ctx, url)
	}
	if cached, ok := c.store.Get(url); ok {
		return cached.(string), nil
	}
	content, err := c.inner.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	c.store.Set(url, content, gocache.DefaultExpiration)
	return content, nil
}
