package model

import (
	"context"
	"iter"
	"time"
)

// SearchQuery is one cell of the search matrix: a search term paired with a location.
type SearchQuery struct {
	Term     string
	Location string
}

func (q SearchQuery) String() string {
	return q.Term + " @ " + q.Location
}

// RawPage is the unparsed markup returned for a single SearchQuery.
type RawPage struct {
	Query     SearchQuery
	URL       string // fully built request URL, used to resolve relative links
	Body      []byte
	FetchedAt time.Time
}

// Candidate is a posting as extracted from the listing page, before matching.
type Candidate struct {
	Title    string
	Link     string // canonical link (no query string)
	Company  string
	Location string
	Recency  string // relative label, e.g. "3 hours ago"; empty if absent
}

// Posting is a Candidate that passed the matcher and survived dedup.
type Posting struct {
	Candidate
	Category string // search term that produced it
}

// Evaluation records the matcher's verdict on a candidate.
type Evaluation struct {
	Candidate Candidate
	Query     SearchQuery
	Accepted  bool
	Reason    string // rejection reason; empty when accepted
	Duplicate bool
}

// Digest is the rendered message for one cycle, split into ordered chunks.
type Digest struct {
	Chunks      []string
	Count       int
	GeneratedAt time.Time
}

// Empty reports whether the digest carries the no-results notice.
func (d Digest) Empty() bool { return d.Count == 0 }

// RecipientID identifies a chat on the messaging API.
type RecipientID int64

// Subscriber is one entry of the subscriber registry.
type Subscriber struct {
	ID           RecipientID
	Name         string
	Active       bool
	SubscribedAt time.Time
}

// TriggerKind distinguishes scheduled cycles from on-demand ones.
type TriggerKind int

const (
	TriggerScheduled TriggerKind = iota
	TriggerManual
)

func (k TriggerKind) String() string {
	if k == TriggerManual {
		return "manual"
	}
	return "scheduled"
}

// Trigger describes what started a cycle. Requester is zero for scheduled
// cycles and for manual triggers that did not come from a chat.
type Trigger struct {
	Kind      TriggerKind
	Requester RecipientID
}

// CycleReport summarises one completed discovery cycle.
type CycleReport struct {
	ID          string
	Trigger     Trigger
	StartedAt   time.Time
	Duration    time.Duration
	Queries     int
	FetchErrors int
	Candidates  int
	Postings    int
	Delivered   int
	Failed      int
	Suppressed  bool // empty notice withheld by policy
}

// PageFetcher fetches the raw listing page for a query.
type PageFetcher interface {
	Fetch(ctx context.Context, q SearchQuery) (RawPage, error)
}

// Extractor turns a raw page into candidates in document order. A non-nil
// error in the sequence describes a malformed fragment and never ends it.
type Extractor interface {
	Extract(page RawPage) iter.Seq2[Candidate, error]
}

// Matcher decides whether a candidate is accepted.
type Matcher interface {
	Accept(c Candidate) bool
}

// Sender delivers a single message to a single recipient.
type Sender interface {
	Send(ctx context.Context, to RecipientID, text string) error
}

// Registry supplies the recipients a digest is dispatched to.
type Registry interface {
	ActiveRecipients(ctx context.Context) ([]RecipientID, error)
}

// SubscriberStore is a Registry with the mutation API used by the command surface.
type SubscriberStore interface {
	Registry
	Subscribe(ctx context.Context, id RecipientID, name string) error
	Unsubscribe(ctx context.Context, id RecipientID) error
	Get(ctx context.Context, id RecipientID) (Subscriber, bool, error)
	List(ctx context.Context) ([]Subscriber, error)
	Close() error
}
