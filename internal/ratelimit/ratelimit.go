package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/jobalert/internal/model"
)

// Pacer enforces a minimum gap between consecutive calls sharing the same key
// (an upstream host, or the messaging API).
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delay    time.Duration
}

// NewPacer creates a pacer that lets one call per key through every delay.
// A non-positive delay disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

// Wait blocks until the next call for key is allowed.
// Returns an error if the context is cancelled while waiting.
func (p *Pacer) Wait(ctx context.Context, key string) error {
	if p == nil || p.delay <= 0 {
		return nil
	}
	if err := p.limiter(key).Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait for %s: %w", key, err)
	}
	return nil
}

func (p *Pacer) limiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		// Burst of one: the first call is free, later ones are spaced by delay.
		l = rate.NewLimiter(rate.Every(p.delay), 1)
		p.limiters[key] = l
	}
	return l
}

// RateLimitedFetcher is a decorator that paces requests before delegating to
// the wrapped PageFetcher.
type RateLimitedFetcher struct {
	inner model.PageFetcher
	pacer *Pacer
	key   string // upstream this fetcher targets
}

// NewRateLimitedFetcher wraps a PageFetcher with pacing.
// All fetchers targeting the same upstream should share the same pacer and key.
func NewRateLimitedFetcher(inner model.PageFetcher, pacer *Pacer, key string) *RateLimitedFetcher {
	return &RateLimitedFetcher{
		inner: inner,
		pacer: pacer,
		key:   key,
	}
}

// Fetch waits for the pacer to allow a request, then delegates to the wrapped fetcher.
func (f *RateLimitedFetcher) Fetch(ctx context.Context, q model.SearchQuery) (model.RawPage, error) {
	if err := f.pacer.Wait(ctx, f.key); err != nil {
		return model.RawPage{}, &model.FetchError{Query: q, Err: err}
	}
	return f.inner.Fetch(ctx, q)
}
