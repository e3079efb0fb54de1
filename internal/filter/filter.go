package filter

import (
	"fmt"
	"strings"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure ProfileMatcher implements model.Matcher.
var _ model.Matcher = (*ProfileMatcher)(nil)

// Rejection reasons reported by Evaluate.
const (
	ReasonNoRecency = "no recency label"
	ReasonStale     = "older than 24 hours"
	ReasonNoSkill   = "no required skill in title"
)

// ProfileMatcher accepts fresh postings whose title names at least one
// required skill and none of the excluded keywords. Matching is
// case-insensitive substring matching.
type ProfileMatcher struct {
	skills   []string
	excludes []string
}

// NewProfileMatcher returns a matcher for the given keyword sets.
// Blank entries are ignored.
func NewProfileMatcher(requiredSkills, excludeKeywords []string) *ProfileMatcher {
	return &ProfileMatcher{
		skills:   foldAll(requiredSkills),
		excludes: foldAll(excludeKeywords),
	}
}

// Accept returns true if the candidate passes every rule.
func (m *ProfileMatcher) Accept(c model.Candidate) bool {
	ok, _ := m.Evaluate(c)
	return ok
}

// Evaluate applies recency, then required skills, then exclusions, stopping
// at the first failed rule. The reason is empty when the candidate is accepted.
func (m *ProfileMatcher) Evaluate(c model.Candidate) (bool, string) {
	if strings.TrimSpace(c.Recency) == "" {
		return false, ReasonNoRecency
	}
	if !WithinDay(c.Recency) {
		return false, ReasonStale
	}

	title := fold(c.Title)

	if !containsAny(title, m.skills) {
		return false, ReasonNoSkill
	}
	for _, kw := range m.excludes {
		if strings.Contains(title, kw) {
			return false, fmt.Sprintf("excluded keyword %q", kw)
		}
	}

	return true, ""
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
