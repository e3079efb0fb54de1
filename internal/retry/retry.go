package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

// MaxRetryAfter is the longest upstream Retry-After a query will wait out.
// A longer one means the source is throttling the whole search; the query is
// given up so the cycle can move on.
const MaxRetryAfter = 30 * time.Second

// RetryFetcher is a decorator that retries transient failures with exponential
// backoff and jitter before delegating to the wrapped PageFetcher.
type RetryFetcher struct {
	inner      model.PageFetcher
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewRetryFetcher wraps a PageFetcher with retry logic.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each subsequent retry.
func NewRetryFetcher(inner model.PageFetcher, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetryFetcher {
	return &RetryFetcher{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Fetch attempts to fetch the page for q, retrying on transient errors.
func (f *RetryFetcher) Fetch(ctx context.Context, q model.SearchQuery) (model.RawPage, error) {
	page, err := f.inner.Fetch(ctx, q)
	if err == nil {
		return page, nil
	}

	if !isRetryable(err) {
		return model.RawPage{}, err
	}

	lastErr := err
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		delay, ok := f.backoffDelay(attempt, lastErr)
		if !ok {
			f.logger.Warn("upstream asked for a long back-off, giving up on query",
				"term", q.Term,
				"location", q.Location,
				"retry_after", retryAfter(lastErr),
				"max_retry_after", MaxRetryAfter,
			)
			return model.RawPage{}, lastErr
		}

		f.logger.Warn("retrying after transient error",
			"term", q.Term,
			"location", q.Location,
			"attempt", attempt,
			"max_retries", f.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return model.RawPage{}, &model.FetchError{Query: q, Err: fmt.Errorf("retry cancelled: %w", ctx.Err())}
		case <-time.After(delay):
		}

		page, err = f.inner.Fetch(ctx, q)
		if err == nil {
			return page, nil
		}

		if !isRetryable(err) {
			return model.RawPage{}, err
		}
		lastErr = err
	}

	return model.RawPage{}, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// An upstream Retry-After takes precedence; ok is false when it exceeds
// MaxRetryAfter.
func (f *RetryFetcher) backoffDelay(attempt int, err error) (delay time.Duration, ok bool) {
	if ra := retryAfter(err); ra > 0 {
		return ra, ra <= MaxRetryAfter
	}

	delay = f.baseDelay << (attempt - 1)

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter), true
}

func retryAfter(err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}
	return 0
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation: never retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// The same query would be rejected again.
	if errors.Is(err, model.ErrInvalidQuery) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	// Network, DNS, truncated body.
	return true
}
