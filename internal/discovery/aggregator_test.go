package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobalert/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves canned candidates per query. It acts as both the
// fetcher and the extractor: pages carry only their query.
type fakeSource struct {
	mu       sync.Mutex
	listings map[model.SearchQuery][]model.Candidate
	failing  map[model.SearchQuery]bool
	fetched  []model.SearchQuery
	onFetch  func(q model.SearchQuery)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		listings: map[model.SearchQuery][]model.Candidate{},
		failing:  map[model.SearchQuery]bool{},
	}
}

func (f *fakeSource) add(term, loc string, cands ...model.Candidate) {
	q := model.SearchQuery{Term: term, Location: loc}
	f.listings[q] = append(f.listings[q], cands...)
}

func (f *fakeSource) Fetch(ctx context.Context, q model.SearchQuery) (model.RawPage, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, q)
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(q)
	}
	if f.failing[q] {
		return model.RawPage{}, &model.FetchError{Query: q, Err: &model.HTTPError{StatusCode: 503}}
	}
	if err := ctx.Err(); err != nil {
		return model.RawPage{}, &model.FetchError{Query: q, Err: err}
	}
	return model.RawPage{Query: q}, nil
}

func (f *fakeSource) Extract(page model.RawPage) iter.Seq2[model.Candidate, error] {
	return func(yield func(model.Candidate, error) bool) {
		for _, c := range f.listings[page.Query] {
			var err error
			if c.Title == "" {
				err = &model.ExtractionError{Reason: "missing title"}
			}
			if !yield(c, err) {
				return
			}
		}
	}
}

func (f *fakeSource) fetchedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

type acceptAll struct{}

func (acceptAll) Accept(model.Candidate) bool { return true }

// titleMatcher accepts titles without "reject" and explains itself.
type titleMatcher struct{}

func (titleMatcher) Accept(c model.Candidate) bool { ok, _ := titleMatcher{}.Evaluate(c); return ok }
func (titleMatcher) Evaluate(c model.Candidate) (bool, string) {
	if strings.Contains(c.Title, "reject") {
		return false, "rejected by title"
	}
	return true, ""
}

func cand(id string) model.Candidate {
	return model.Candidate{
		Title:   "Developer " + id,
		Link:    "https://www.linkedin.com/jobs/view/" + id,
		Recency: "1 hour ago",
	}
}

func links(ps []model.Posting) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Link)
	}
	return out
}

func TestRun_DedupByCanonicalLink(t *testing.T) {
	src := newFakeSource()
	a1 := cand("1")
	a1.Link += "?refId=aaa"
	a2 := cand("1")
	a2.Link += "?refId=bbb&trk=guest"
	src.add("Go", "Remote", a1)
	src.add("Go", "Indore", a2)
	src.add("React", "Remote", cand("1"), cand("2"))

	agg := NewAggregator(src, src, acceptAll{}, 1, discardLogger())
	res, err := agg.Run(context.Background(), Plan{
		Terms:          []string{"Go", "React"},
		Locations:      []string{"Remote", "Indore"},
		PerCategoryCap: 10,
		GlobalCap:      20,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://www.linkedin.com/jobs/view/1",
		"https://www.linkedin.com/jobs/view/2",
	}, links(res.Postings()))
	assert.Equal(t, 2, res.Stats.Duplicates)
	assert.Equal(t, "Go", res.Categories[0].Postings[0].Category)
	assert.Equal(t, "React", res.Categories[1].Postings[0].Category)
}

func TestRun_PerCategoryCap(t *testing.T) {
	src := newFakeSource()
	src.add("Go", "Remote", cand("1"), cand("2"), cand("3"))
	src.add("Go", "Indore", cand("4"), cand("5"))
	src.add("React", "Remote", cand("6"))

	agg := NewAggregator(src, src, acceptAll{}, 1, discardLogger())
	res, err := agg.Run(context.Background(), Plan{
		Terms:          []string{"Go", "React"},
		Locations:      []string{"Remote", "Indore"},
		PerCategoryCap: 2,
		GlobalCap:      20,
	})
	require.NoError(t, err)

	require.Len(t, res.Categories, 2)
	assert.Len(t, res.Categories[0].Postings, 2)
	assert.Equal(t, []string{
		"https://www.linkedin.com/jobs/view/1",
		"https://www.linkedin.com/jobs/view/2",
		"https://www.linkedin.com/jobs/view/6",
	}, links(res.Postings()))

	// Go/Indore is never fetched once the Go category is full.
	assert.NotContains(t, src.fetched, model.SearchQuery{Term: "Go", Location: "Indore"})
}

func TestRun_GlobalCapStopsLaterCategories(t *testing.T) {
	src := newFakeSource()
	terms := []string{"A", "B", "C", "D", "E"}
	for _, term := range terms {
		for i := 0; i < 5; i++ {
			src.add(term, "Remote", cand(fmt.Sprintf("%s%d", term, i)))
		}
	}

	agg := NewAggregator(src, src, acceptAll{}, 1, discardLogger())
	res, err := agg.Run(context.Background(), Plan{
		Terms:          terms,
		Locations:      []string{"Remote"},
		PerCategoryCap: 5,
		GlobalCap:      20,
	})
	require.NoError(t, err)

	assert.Len(t, res.Postings(), 20)
	assert.Len(t, res.Categories, 4)
	assert.Equal(t, 4, src.fetchedCount(), "category E must not be fetched")
}

func TestRun_GlobalCapTruncatesMidCategory(t *testing.T) {
	src := newFakeSource()
	src.add("A", "Remote", cand("a1"), cand("a2"), cand("a3"))
	src.add("B", "Remote", cand("b1"), cand("b2"), cand("b3"))

	agg := NewAggregator(src, src, acceptAll{}, 1, discardLogger())
	res, err := agg.Run(context.Background(), Plan{
		Terms:          []string{"A", "B"},
		Locations:      []string{"Remote"},
		PerCategoryCap: 3,
		GlobalCap:      4,
	})
	require.NoError(t, err)
	assert.Len(t, res.Categories[0].Postings, 3)
	assert.Len(t, res.Categories[1].Postings, 1)
}

func TestRun_FetchErrorsAreNotFatal(t *testing.T) {
	src := newFakeSource()
	src.failing[model.SearchQuery{Term: "Go", Location: "Remote"}] = true
	src.failing[model.SearchQuery{Term: "Go", Location: "Indore"}] = true

	agg := NewAggregator(src, src, acceptAll{}, 1, discardLogger())
	res, err := agg.Run(context.Background(), Plan{
		Terms:          []string{"Go"},
		Locations:      []string{"Remote", "Indore"},
		PerCategoryCap: 5,
		GlobalCap:      20,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Postings())
	assert.Equal(t, 2, res.Stats.FetchErrors)
	assert.Equal(t, 2, res.Stats.Queries)
}

func TestRun_SkipsMalformedAndRejected(t *testing.T) {
	src := newFakeSource()
	rejected := cand("2")
	rejected.Title = "please reject me"
	src.add("Go", "Remote", model.Candidate{Link: "https://x.test/broken"}, cand("1"), rejected, cand("3"))

	agg := NewAggregator(src, src, titleMatcher{}, 1, discardLogger())
	res, err := agg.Run(context.Background(), Plan{
		Terms:          []string{"Go"},
		Locations:      []string{"Remote"},
		PerCategoryCap: 5,
		GlobalCap:      20,
	})
	require.NoError(t, err)
	assert.Len(t, res.Postings(), 2)
	assert.Equal(t, 1, res.Stats.ExtractionErrors)
	assert.Equal(t, 1, res.Stats.Rejected)
	assert.Equal(t, 3, res.Stats.Candidates)
}

func TestRun_CancelledBetweenQueries(t *testing.T) {
	src := newFakeSource()
	src.add("Go", "Remote", cand("1"))
	src.add("Go", "Indore", cand("2"))
	src.add("React", "Remote", cand("3"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src.onFetch = func(model.SearchQuery) { cancel() }

	agg := NewAggregator(src, src, acceptAll{}, 1, discardLogger())
	res, err := agg.Run(ctx, Plan{
		Terms:          []string{"Go", "React"},
		Locations:      []string{"Remote", "Indore"},
		PerCategoryCap: 5,
		GlobalCap:      20,
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.fetchedCount())
	assert.Empty(t, res.Postings())
}

func TestRun_ConcurrentMatchesSequential(t *testing.T) {
	build := func() *fakeSource {
		src := newFakeSource()
		for _, term := range []string{"Go", "React"} {
			for _, loc := range []string{"Remote", "Indore", "Pune", "Delhi"} {
				for i := 0; i < 3; i++ {
					src.add(term, loc, cand(fmt.Sprintf("%s-%s-%d", term, loc, i)))
				}
			}
		}
		// Same posting surfaces under both terms.
		src.add("React", "Remote", cand("Go-Remote-0"))
		return src
	}
	plan := Plan{
		Terms:          []string{"Go", "React"},
		Locations:      []string{"Remote", "Indore", "Pune", "Delhi"},
		PerCategoryCap: 7,
		GlobalCap:      12,
	}

	seq, err := NewAggregator(build(), build(), acceptAll{}, 1, discardLogger()).Run(context.Background(), plan)
	require.NoError(t, err)

	src := build()
	par, err := NewAggregator(src, src, acceptAll{}, 4, discardLogger()).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, links(seq.Postings()), links(par.Postings()))
	assert.Len(t, par.Postings(), 12)
}

func TestRun_ConcurrentPrefetchStopsAtCap(t *testing.T) {
	locs := []string{"Remote", "Indore", "Pune", "Delhi", "Mumbai", "Chennai"}
	src := newFakeSource()
	for _, loc := range locs {
		src.add("Go", loc, cand("go-"+loc))
	}
	src.add("React", "Remote", cand("react"))

	agg := NewAggregator(src, src, acceptAll{}, 2, discardLogger())
	res, err := agg.Run(context.Background(), Plan{
		Terms:          []string{"Go", "React"},
		Locations:      locs,
		PerCategoryCap: 1,
		GlobalCap:      1,
	})
	require.NoError(t, err)

	assert.Len(t, res.Postings(), 1)
	// One window of two pages for Go; nothing after the cap.
	assert.Equal(t, 2, src.fetchedCount())
	assert.NotContains(t, src.fetched, model.SearchQuery{Term: "React", Location: "Remote"})
}

func TestRun_EmptyPlan(t *testing.T) {
	src := newFakeSource()
	res, err := NewAggregator(src, src, acceptAll{}, 1, discardLogger()).Run(context.Background(), Plan{})
	require.NoError(t, err)
	assert.Empty(t, res.Postings())
}

func TestInspect_ReportsReasons(t *testing.T) {
	src := newFakeSource()
	rejected := cand("2")
	rejected.Title = "reject this one"
	src.add("Go", "Remote", cand("1"), rejected)
	src.add("Go", "Indore", cand("1"), cand("3"))

	agg := NewAggregator(src, src, titleMatcher{}, 1, discardLogger())
	evals, err := agg.Inspect(context.Background(), "Go", []string{"Remote", "Indore"})
	require.NoError(t, err)
	require.Len(t, evals, 4)

	assert.True(t, evals[0].Accepted)
	assert.False(t, evals[1].Accepted)
	assert.Equal(t, "rejected by title", evals[1].Reason)
	assert.True(t, evals[2].Duplicate)
	assert.True(t, evals[3].Accepted)
	assert.Equal(t, "Indore", evals[3].Query.Location)
}

func TestInspect_AllFetchesFail(t *testing.T) {
	src := newFakeSource()
	src.failing[model.SearchQuery{Term: "Go", Location: "Remote"}] = true

	agg := NewAggregator(src, src, acceptAll{}, 1, discardLogger())
	_, err := agg.Inspect(context.Background(), "Go", []string{"Remote"})
	var fe *model.FetchError
	require.True(t, errors.As(err, &fe))
}
