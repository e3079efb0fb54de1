package discovery

import "github.com/amishk599/jobalert/internal/model"

// Plan is the search matrix for one cycle plus its result caps.
type Plan struct {
	Terms          []string
	Locations      []string
	PerCategoryCap int // <= 0 means unlimited
	GlobalCap      int // <= 0 means unlimited
}

// Queries returns the term × location matrix grouped by term, preserving the
// configured order of both lists.
func (p Plan) Queries() [][]model.SearchQuery {
	groups := make([][]model.SearchQuery, 0, len(p.Terms))
	for _, term := range p.Terms {
		qs := make([]model.SearchQuery, 0, len(p.Locations))
		for _, loc := range p.Locations {
			qs = append(qs, model.SearchQuery{Term: term, Location: loc})
		}
		groups = append(groups, qs)
	}
	return groups
}

// Category holds the accepted postings for one search term.
type Category struct {
	Term     string
	Postings []model.Posting
}

// Stats counts what happened during a run.
type Stats struct {
	Queries          int // queries actually attempted
	FetchErrors      int
	ExtractionErrors int
	Candidates       int
	Duplicates       int
	Rejected         int
}

// Result is the outcome of one discovery run.
type Result struct {
	Categories []Category
	Stats      Stats
}

// Postings concatenates every category's postings in category order.
func (r Result) Postings() []model.Posting {
	var out []model.Posting
	for _, c := range r.Categories {
		out = append(out, c.Postings...)
	}
	return out
}
