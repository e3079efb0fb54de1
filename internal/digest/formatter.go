package digest

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

// DefaultMaxLength keeps chunks under the messaging API's 4096 character limit.
const DefaultMaxLength = 4000

const timestampLayout = "2006-01-02 15:04:05"

// Profile describes the active filters, shown when nothing matched.
type Profile struct {
	Terms     []string
	Locations []string
	Skills    []string
	Excludes  []string
}

// Formatter renders accepted postings as HTML rich-text messages.
type Formatter struct {
	title   string
	maxLen  int
	profile Profile
	loc     *time.Location
}

// NewFormatter creates a formatter. maxLen <= 0 selects DefaultMaxLength and
// a nil loc renders timestamps in time.Local.
func NewFormatter(title string, maxLen int, profile Profile, loc *time.Location) *Formatter {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{
		title:   title,
		maxLen:  maxLen,
		profile: profile,
		loc:     loc,
	}
}

// Format renders postings into a digest. An empty list yields the fixed
// no-results notice.
func (f *Formatter) Format(postings []model.Posting, at time.Time) model.Digest {
	d := model.Digest{Count: len(postings), GeneratedAt: at}
	if len(postings) == 0 {
		d.Chunks = Chunk([]string{f.EmptyNotice()}, f.maxLen)
		return d
	}

	pieces := make([]string, 0, len(postings)+1)
	pieces = append(pieces, f.header(len(postings), at))
	for _, p := range postings {
		pieces = append(pieces, Block(p))
	}
	d.Chunks = Chunk(pieces, f.maxLen)
	return d
}

func (f *Formatter) header(n int, at time.Time) string {
	noun := "jobs"
	if n == 1 {
		noun = "job"
	}
	return fmt.Sprintf("🚀 <b>%s</b> (%d %s · %s)",
		html.EscapeString(f.title), n, noun, at.In(f.loc).Format(timestampLayout))
}

// EmptyNotice is the message sent when a cycle accepted nothing. It depends
// only on the filter profile.
func (f *Formatter) EmptyNotice() string {
	var b strings.Builder
	b.WriteString("😴 <b>No new matching jobs</b> in the last 24 hours.\n")
	writeList(&b, "\n🔎 Searched: ", f.profile.Terms)
	writeList(&b, "\n📍 Locations: ", f.profile.Locations)
	writeList(&b, "\n🛠 Skills: ", f.profile.Skills)
	writeList(&b, "\n🚫 Excluding: ", f.profile.Excludes)
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(label)
	b.WriteString(html.EscapeString(strings.Join(items, ", ")))
}

// Block renders one posting: title, company, location, recency and link.
func Block(p model.Posting) string {
	return fmt.Sprintf("💼 <b>%s</b>\n🏢 %s\n📍 %s\n🕒 %s\n🔗 %s",
		html.EscapeString(p.Title),
		html.EscapeString(p.Company),
		html.EscapeString(p.Location),
		html.EscapeString(p.Recency),
		html.EscapeString(p.Link),
	)
}
