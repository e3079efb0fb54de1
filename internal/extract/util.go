package extract

import (
	"fmt"
	"net/url"
	"strings"
)

// cleanText collapses runs of whitespace (including the newlines and
// indentation the listing markup wraps around every field) into single spaces.
func cleanText(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// CanonicalLink strips the query string and fragment from link.
// Tracking parameters differ between searches for the same posting.
func CanonicalLink(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	return link
}

// resolveLink makes href absolute against base and canonicalises it.
func resolveLink(base *url.URL, href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("link %q is not http(s)", href)
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
