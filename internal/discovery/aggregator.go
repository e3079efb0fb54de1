package discovery

import (
	"context"
	"errors"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobalert/internal/extract"
	"github.com/amishk599/jobalert/internal/model"
)

// Evaluator is implemented by matchers that can explain a rejection.
type Evaluator interface {
	Evaluate(c model.Candidate) (bool, string)
}

// Aggregator walks the search matrix: fetch → extract → match → dedup,
// enforcing a per-category cap and a global cap.
type Aggregator struct {
	fetcher     model.PageFetcher
	extractor   model.Extractor
	matcher     model.Matcher
	concurrency int
	logger      *slog.Logger
}

// NewAggregator creates an aggregator. With concurrency > 1 the pages of one
// category are fetched in parallel before being processed in location order,
// so results are identical to a sequential run.
func NewAggregator(fetcher model.PageFetcher, extractor model.Extractor, matcher model.Matcher, concurrency int, logger *slog.Logger) *Aggregator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Aggregator{
		fetcher:     fetcher,
		extractor:   extractor,
		matcher:     matcher,
		concurrency: concurrency,
		logger:      logger,
	}
}

// discoveryRun is the state of one run. It is owned by a single Run call.
type discoveryRun struct {
	plan   Plan
	seen   mapset.Set[string]
	total  int
	result Result
}

func (r *discoveryRun) globalFull() bool {
	return r.plan.GlobalCap > 0 && r.total >= r.plan.GlobalCap
}

func (r *discoveryRun) categoryFull(c *Category) bool {
	return r.plan.PerCategoryCap > 0 && len(c.Postings) >= r.plan.PerCategoryCap
}

// Run executes one discovery pass over plan. Fetch and extraction failures
// are counted and skipped. If ctx is cancelled between queries, Run returns
// what it has gathered so far together with ctx.Err().
func (a *Aggregator) Run(ctx context.Context, plan Plan) (Result, error) {
	r := &discoveryRun{
		plan: plan,
		seen: mapset.NewThreadUnsafeSet[string](),
	}

	for _, queries := range plan.Queries() {
		if len(queries) == 0 {
			continue
		}
		if r.globalFull() {
			break
		}
		if err := ctx.Err(); err != nil {
			return r.result, err
		}

		cat := Category{Term: queries[0].Term}
		err := a.runCategory(ctx, r, &cat, queries)
		r.result.Categories = append(r.result.Categories, cat)
		if err != nil {
			return r.result, err
		}

		a.logger.Debug("category done",
			"term", cat.Term,
			"accepted", len(cat.Postings),
			"total", r.total,
		)
	}

	return r.result, nil
}

func (a *Aggregator) runCategory(ctx context.Context, r *discoveryRun, cat *Category, queries []model.SearchQuery) error {
	pages := a.pages(ctx, queries)

	for i, q := range queries {
		if r.categoryFull(cat) || r.globalFull() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		r.result.Stats.Queries++
		page, err := pages(i)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.result.Stats.FetchErrors++
			a.logger.Warn("fetch failed, treating as no results",
				"term", q.Term,
				"location", q.Location,
				"error", err,
			)
			continue
		}

		for c, err := range a.extractor.Extract(page) {
			if err != nil {
				r.result.Stats.ExtractionErrors++
				a.logger.Debug("skipping malformed listing", "term", q.Term, "location", q.Location, "error", err)
				continue
			}
			r.result.Stats.Candidates++

			key := extract.CanonicalLink(c.Link)
			if r.seen.Contains(key) {
				r.result.Stats.Duplicates++
				continue
			}
			if !a.matcher.Accept(c) {
				r.result.Stats.Rejected++
				continue
			}

			r.seen.Add(key)
			c.Link = key
			cat.Postings = append(cat.Postings, model.Posting{Candidate: c, Category: q.Term})
			r.total++

			if r.categoryFull(cat) || r.globalFull() {
				break
			}
		}
	}
	return nil
}

// pages returns an accessor for the page of queries[i]. Sequential runs
// fetch lazily so nothing is fetched once a cap is reached. Concurrent runs
// fetch a window of up to concurrency pages at a time, starting at the first
// page not yet fetched, so a cap reached mid-category wastes at most one
// window.
func (a *Aggregator) pages(ctx context.Context, queries []model.SearchQuery) func(i int) (model.RawPage, error) {
	if a.concurrency <= 1 || len(queries) < 2 {
		return func(i int) (model.RawPage, error) {
			return a.fetcher.Fetch(ctx, queries[i])
		}
	}

	pages := make([]model.RawPage, len(queries))
	errs := make([]error, len(queries))
	fetched := 0

	return func(i int) (model.RawPage, error) {
		if i >= fetched {
			end := min(i+a.concurrency, len(queries))
			var g errgroup.Group
			for j := i; j < end; j++ {
				g.Go(func() error {
					pages[j], errs[j] = a.fetcher.Fetch(ctx, queries[j])
					return nil
				})
			}
			_ = g.Wait()
			fetched = end
		}
		return pages[i], errs[i]
	}
}

// Inspect evaluates every candidate for one term across locations without
// caps, recording why each was rejected. It backs the audit view.
func (a *Aggregator) Inspect(ctx context.Context, term string, locations []string) ([]model.Evaluation, error) {
	plan := Plan{Terms: []string{term}, Locations: locations}
	seen := mapset.NewThreadUnsafeSet[string]()

	var evals []model.Evaluation
	var fetchErrs []error
	for _, q := range plan.Queries()[0] {
		if err := ctx.Err(); err != nil {
			return evals, err
		}
		page, err := a.fetcher.Fetch(ctx, q)
		if err != nil {
			fetchErrs = append(fetchErrs, err)
			continue
		}
		for c, err := range a.extractor.Extract(page) {
			if err != nil {
				continue
			}
			ev := model.Evaluation{Candidate: c, Query: q}
			key := extract.CanonicalLink(c.Link)
			switch {
			case seen.Contains(key):
				ev.Duplicate = true
				ev.Reason = "duplicate"
			default:
				ev.Accepted, ev.Reason = a.evaluate(c)
				if ev.Accepted {
					seen.Add(key)
				}
			}
			evals = append(evals, ev)
		}
	}

	if len(evals) == 0 && len(fetchErrs) > 0 {
		return nil, errors.Join(fetchErrs...)
	}
	return evals, nil
}

func (a *Aggregator) evaluate(c model.Candidate) (bool, string) {
	if ev, ok := a.matcher.(Evaluator); ok {
		return ev.Evaluate(c)
	}
	if a.matcher.Accept(c) {
		return true, ""
	}
	return false, "rejected"
}
