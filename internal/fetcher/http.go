package fetcher

import (
	"net/http"
	"strconv"
	"time"
)

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports both the seconds form ("120") and the HTTP-date form.
// Returns zero if absent, unparseable, or already in the past.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
