package digest

import (
	"fmt"
	"html"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobalert/internal/model"
)

var at = time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC)

func profile() Profile {
	return Profile{
		Terms:     []string{"Full Stack Developer", "React Developer"},
		Locations: []string{"Indore", "Remote"},
		Skills:    []string{"react", "node"},
		Excludes:  []string{"senior", "lead"},
	}
}

func posting(i int) model.Posting {
	return model.Posting{
		Candidate: model.Candidate{
			Title:    fmt.Sprintf("React Developer %d", i),
			Link:     fmt.Sprintf("https://www.linkedin.com/jobs/view/%d", i),
			Company:  "Acme & Sons",
			Location: "Indore, India",
			Recency:  "2 hours ago",
		},
		Category: "React Developer",
	}
}

func TestFormat_EmptyIsFixedNotice(t *testing.T) {
	f := NewFormatter("Latest LinkedIn Openings", 4000, profile(), time.UTC)
	d := f.Format(nil, at)

	want := "😴 <b>No new matching jobs</b> in the last 24 hours.\n" +
		"\n🔎 Searched: Full Stack Developer, React Developer" +
		"\n📍 Locations: Indore, Remote" +
		"\n🛠 Skills: react, node" +
		"\n🚫 Excluding: senior, lead"

	require.Len(t, d.Chunks, 1)
	assert.Equal(t, want, d.Chunks[0])
	assert.Equal(t, want, f.EmptyNotice())
	assert.True(t, d.Empty())

	// Timestamp does not leak into the notice.
	assert.Equal(t, d.Chunks, f.Format(nil, at.Add(time.Hour)).Chunks)
}

func TestFormat_EmptyNoticeOmitsBlankSections(t *testing.T) {
	f := NewFormatter("x", 4000, Profile{Skills: []string{"go"}}, time.UTC)
	assert.Equal(t, "😴 <b>No new matching jobs</b> in the last 24 hours.\n\n🛠 Skills: go", f.EmptyNotice())
}

func TestFormat_HeaderAndBlocks(t *testing.T) {
	f := NewFormatter("Latest <LinkedIn> Openings", 4000, profile(), time.UTC)
	d := f.Format([]model.Posting{posting(1), posting(2)}, at)

	require.Len(t, d.Chunks, 1)
	assert.Equal(t, 2, d.Count)
	assert.Equal(t, at, d.GeneratedAt)

	text := d.Chunks[0]
	assert.True(t, strings.HasPrefix(text,
		"🚀 <b>Latest &lt;LinkedIn&gt; Openings</b> (2 jobs · 2026-03-01 14:30:05)\n\n"), text)

	blocks := strings.Split(text, "\n\n")
	require.Len(t, blocks, 3)
	for i, b := range blocks[1:] {
		p := posting(i + 1)
		assert.Contains(t, b, "<b>"+p.Title+"</b>")
		assert.Contains(t, b, "Acme &amp; Sons")
		assert.Contains(t, b, p.Location)
		assert.Contains(t, b, p.Recency)
		assert.Contains(t, b, p.Link)
	}
}

func TestFormat_SingularHeader(t *testing.T) {
	f := NewFormatter("Jobs", 4000, profile(), time.UTC)
	d := f.Format([]model.Posting{posting(1)}, at)
	assert.Contains(t, d.Chunks[0], "(1 job · ")
}

func TestFormat_UsesConfiguredTimezone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	f := NewFormatter("Jobs", 4000, profile(), ist)
	d := f.Format([]model.Posting{posting(1)}, at)
	assert.Contains(t, d.Chunks[0], "2026-03-01 20:00:05")
}

func TestFormat_ChunksPreserveBlocks(t *testing.T) {
	var postings []model.Posting
	for i := 0; i < 60; i++ {
		postings = append(postings, posting(i))
	}
	f := NewFormatter("Jobs", 500, profile(), time.UTC)
	d := f.Format(postings, at)

	require.Greater(t, len(d.Chunks), 1)
	for i, c := range d.Chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 500, "chunk %d too long", i)
		assert.False(t, strings.HasPrefix(c, "\n"), "chunk %d starts with a separator", i)
	}

	// Re-joining the chunks gives back the unchunked message.
	whole := NewFormatter("Jobs", 4000*100, profile(), time.UTC).Format(postings, at)
	require.Len(t, whole.Chunks, 1)
	assert.Equal(t, whole.Chunks[0], strings.Join(d.Chunks, "\n\n"))
}

func TestChunk_SplitsOversizedPiece(t *testing.T) {
	long := strings.Repeat("é", 25)
	chunks := Chunk([]string{"head", long, "tail"}, 10)

	assert.Equal(t, []string{"head", "éééééééééé", "éééééééééé", "ééééé", "tail"}, chunks)
}

func TestChunk_OversizedPieceStaysValidHTML(t *testing.T) {
	long := "<b>" + strings.Repeat("R&amp;D &lt;Go&gt; ", 6) + "</b>"
	chunks := Chunk([]string{long}, 12)
	require.NotEmpty(t, chunks)

	var text strings.Builder
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 12, "chunk %d too long", i)
		assert.NotContains(t, c, "<b>", "chunk %d keeps markup", i)
		// A chunk cut inside an entity does not survive unescape → escape.
		assert.Equal(t, html.EscapeString(html.UnescapeString(c)), c, "chunk %d has a broken entity", i)
		text.WriteString(html.UnescapeString(c))
	}
	assert.Equal(t, strings.Repeat("R&D <Go> ", 6), text.String())
}

func TestChunk_Empty(t *testing.T) {
	assert.Nil(t, Chunk(nil, 10))
}
