package filter

import (
	"regexp"
	"strconv"
	"strings"
)

var digitsRe = regexp.MustCompile(`\d+`)

// WithinDay reports whether a relative recency label falls inside the last
// day: "1 hour ago" through "24 hours ago", or "1 day ago". Everything else,
// including a missing or unparseable label, is rejected.
func WithinDay(label string) bool {
	l := fold(label)
	if l == "" {
		return false
	}

	n, err := strconv.Atoi(digitsRe.FindString(l))
	if err != nil {
		return false
	}

	switch {
	case strings.Contains(l, "hour"):
		return n >= 1 && n <= 24
	case strings.Contains(l, "day"):
		return n == 1
	default:
		return false
	}
}
