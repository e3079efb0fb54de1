package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FieldStrategy pulls one field out of a listing fragment. An empty result
// means "no match", and the next strategy is tried.
type FieldStrategy func(s *goquery.Selection) string

// Strategies is the ordered set of selectors the extractor tries. For each
// list the first strategy yielding a non-empty value wins.
type Strategies struct {
	Containers []string
	Title      []FieldStrategy
	Link       []FieldStrategy
	Company    []FieldStrategy
	Location   []FieldStrategy
	Recency    []FieldStrategy
}

// DefaultStrategies covers the guest search page markup and the older
// signed-in card layout.
func DefaultStrategies() Strategies {
	return Strategies{
		Containers: []string{
			"ul.jobs-search__results-list > li",
			"div.base-card",
			"div.base-search-card",
			"div.job-search-card",
			"li.jobs-search-results__list-item",
			"div.job-card-container",
			"a.base-card__full-link",
		},
		Title: []FieldStrategy{
			Text("h3.base-search-card__title"),
			Text(".job-search-card__title"),
			Text(".job-card-list__title"),
			Text("h3"),
			Text("a.base-card__full-link"),
			SelfText(),
		},
		Link: []FieldStrategy{
			Attr("a.base-card__full-link", "href"),
			Attr("a.base-search-card__full-link", "href"),
			Attr("a.job-card-list__title", "href"),
			Attr("a[href*='/jobs/view/']", "href"),
			SelfAttr("href"),
		},
		Company: []FieldStrategy{
			Text("h4.base-search-card__subtitle"),
			Text("a.hidden-nested-link"),
			Text(".job-card-container__company-name"),
			Text(".job-card-container__primary-description"),
			Text("h4"),
		},
		Location: []FieldStrategy{
			Text("span.job-search-card__location"),
			Text(".job-card-container__metadata-item"),
			Text(".job-search-card__location"),
		},
		Recency: []FieldStrategy{
			Text("time.job-search-card__listdate--new"),
			Text("time.job-search-card__listdate"),
			Text(".job-card-container__listed-time"),
			Text("time"),
		},
	}
}

// Text returns the cleaned text of the first descendant matching selector.
func Text(selector string) FieldStrategy {
	return func(s *goquery.Selection) string {
		return cleanText(s.Find(selector).First().Text())
	}
}

// Attr returns attribute name of the first descendant matching selector.
func Attr(selector, name string) FieldStrategy {
	return func(s *goquery.Selection) string {
		v, _ := s.Find(selector).First().Attr(name)
		return strings.TrimSpace(v)
	}
}

// SelfText returns the fragment's own text when the fragment is itself a link.
func SelfText() FieldStrategy {
	return func(s *goquery.Selection) string {
		if goquery.NodeName(s) != "a" {
			return ""
		}
		return cleanText(s.Text())
	}
}

// SelfAttr returns an attribute of the fragment itself.
func SelfAttr(name string) FieldStrategy {
	return func(s *goquery.Selection) string {
		v, _ := s.Attr(name)
		return strings.TrimSpace(v)
	}
}

func first(s *goquery.Selection, strategies []FieldStrategy) string {
	for _, fn := range strategies {
		if v := fn(s); v != "" {
			return v
		}
	}
	return ""
}
