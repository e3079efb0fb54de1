package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidQuery marks a query that cannot produce a request at all. No
// retry can fix it.
var ErrInvalidQuery = errors.New("invalid search query")

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// FetchError means a query produced no page. Callers treat it as zero postings.
type FetchError struct {
	Query SearchQuery
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q in %q: %v", e.Query.Term, e.Query.Location, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ExtractionError describes a listing fragment that could not be turned into a candidate.
type ExtractionError struct {
	Index  int // position of the fragment in the page
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("fragment %d: %s", e.Index, e.Reason)
}

// DispatchError is a failed delivery to a single recipient.
type DispatchError struct {
	Recipient RecipientID
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("send to %d: %v", e.Recipient, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// PersistenceError is a failed registry read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
