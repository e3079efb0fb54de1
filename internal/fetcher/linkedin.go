package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

// DefaultUserAgent is a generic desktop browser identification. The guest
// search page serves an empty shell to unknown clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// maxBodyBytes bounds how much of a listing page is read.
const maxBodyBytes = 4 << 20

// Params are the fixed query parameters sent with every search.
type Params struct {
	RecencyWindow    string   // f_TPR, e.g. "r86400" for the last 24 hours
	SortBy           string   // "DD" sorts latest first
	ExperienceLevels []string // f_E, e.g. ["1", "2"] for internship and entry level
}

// LinkedInFetcher fetches the public job search page for one query.
type LinkedInFetcher struct {
	baseURL   string
	params    Params
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewLinkedInFetcher creates a fetcher for the search page at baseURL.
// timeout bounds each request independently of the client's own timeout.
func NewLinkedInFetcher(baseURL string, params Params, client *http.Client, timeout time.Duration) *LinkedInFetcher {
	return &LinkedInFetcher{
		baseURL:   baseURL,
		params:    params,
		client:    client,
		timeout:   timeout,
		userAgent: DefaultUserAgent,
	}
}

// SearchURL builds the listing URL for q.
func (f *LinkedInFetcher) SearchURL(q model.SearchQuery) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", f.baseURL, err)
	}
	v := u.Query()
	v.Set("keywords", q.Term)
	v.Set("location", q.Location)
	if f.params.RecencyWindow != "" {
		v.Set("f_TPR", f.params.RecencyWindow)
	}
	if f.params.SortBy != "" {
		v.Set("sortBy", f.params.SortBy)
	}
	if len(f.params.ExperienceLevels) > 0 {
		v.Set("f_E", strings.Join(f.params.ExperienceLevels, ","))
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}

// Fetch issues one GET for q. Any failure is returned as *model.FetchError;
// non-2xx responses additionally carry a *model.HTTPError.
func (f *LinkedInFetcher) Fetch(ctx context.Context, q model.SearchQuery) (model.RawPage, error) {
	if q.Term == "" || q.Location == "" {
		return model.RawPage{}, &model.FetchError{Query: q, Err: fmt.Errorf("%w: term and location are required", model.ErrInvalidQuery)}
	}

	searchURL, err := f.SearchURL(q)
	if err != nil {
		return model.RawPage{}, &model.FetchError{Query: q, Err: fmt.Errorf("%w: %w", model.ErrInvalidQuery, err)}
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return model.RawPage{}, &model.FetchError{Query: q, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return model.RawPage{}, &model.FetchError{Query: q, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return model.RawPage{}, &model.FetchError{Query: q, Err: &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.RawPage{}, &model.FetchError{Query: q, Err: fmt.Errorf("read body: %w", err)}
	}

	return model.RawPage{
		Query:     q,
		URL:       searchURL,
		Body:      body,
		FetchedAt: time.Now(),
	}, nil
}
