package fetcher

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/amishk599/jobalert/internal/model"
)

// CachedFetcher serves recently fetched pages from memory so a manual check
// right after a scheduled cycle does not hit the listing source again.
// Only successful fetches are cached.
type CachedFetcher struct {
	inner model.PageFetcher
	pages *cache.Cache
}

// NewCachedFetcher wraps inner with a TTL page cache.
func NewCachedFetcher(inner model.PageFetcher, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{
		inner: inner,
		pages: cache.New(ttl, 2*ttl),
	}
}

func cacheKey(q model.SearchQuery) string {
	return q.Term + "\x00" + q.Location
}

// Fetch returns the cached page for q if still fresh, otherwise delegates.
func (f *CachedFetcher) Fetch(ctx context.Context, q model.SearchQuery) (model.RawPage, error) {
	if v, ok := f.pages.Get(cacheKey(q)); ok {
		return v.(model.RawPage), nil
	}
	page, err := f.inner.Fetch(ctx, q)
	if err != nil {
		return model.RawPage{}, err
	}
	f.pages.SetDefault(cacheKey(q), page)
	return page, nil
}
