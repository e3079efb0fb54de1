package extract

import (
	"bytes"
	"fmt"
	"iter"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobalert/internal/model"
)

// UnknownCompany is used when no company strategy matches.
const UnknownCompany = "Unknown company"

// Ensure HTMLExtractor implements model.Extractor.
var _ model.Extractor = (*HTMLExtractor)(nil)

// HTMLExtractor turns a listing page into candidates using ordered strategies.
type HTMLExtractor struct {
	strategies Strategies
}

// NewHTMLExtractor returns an extractor using the given strategies.
func NewHTMLExtractor(strategies Strategies) *HTMLExtractor {
	return &HTMLExtractor{strategies: strategies}
}

// Extract yields candidates in document order. Malformed fragments yield an
// *model.ExtractionError and extraction continues with the next fragment.
// Fragments with neither a title nor a link are skipped silently.
// Stopping the iteration early stops extraction.
func (e *HTMLExtractor) Extract(page model.RawPage) iter.Seq2[model.Candidate, error] {
	return func(yield func(model.Candidate, error) bool) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			yield(model.Candidate{}, &model.ExtractionError{Index: -1, Reason: fmt.Sprintf("parse page: %v", err)})
			return
		}

		var base *url.URL
		if page.URL != "" {
			base, _ = url.Parse(page.URL)
		}

		containers := e.containers(doc)
		for i := range containers.Nodes {
			s := containers.Eq(i)

			title := first(s, e.strategies.Title)
			href := first(s, e.strategies.Link)
			if title == "" && href == "" {
				continue
			}
			if title == "" {
				if !yield(model.Candidate{}, &model.ExtractionError{Index: i, Reason: "missing title"}) {
					return
				}
				continue
			}
			if href == "" {
				if !yield(model.Candidate{}, &model.ExtractionError{Index: i, Reason: "missing link"}) {
					return
				}
				continue
			}

			link, err := resolveLink(base, href)
			if err != nil {
				if !yield(model.Candidate{}, &model.ExtractionError{Index: i, Reason: err.Error()}) {
					return
				}
				continue
			}

			c := model.Candidate{
				Title:    title,
				Link:     link,
				Company:  first(s, e.strategies.Company),
				Location: first(s, e.strategies.Location),
				Recency:  first(s, e.strategies.Recency),
			}
			if c.Company == "" {
				c.Company = UnknownCompany
			}
			if c.Location == "" {
				c.Location = page.Query.Location
			}

			if !yield(c, nil) {
				return
			}
		}
	}
}

// containers returns the matches of the first container selector that finds anything.
func (e *HTMLExtractor) containers(doc *goquery.Document) *goquery.Selection {
	for _, sel := range e.strategies.Containers {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return doc.Selection.Slice(0, 0)
}
