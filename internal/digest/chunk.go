package digest

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const blockSeparator = "\n\n"

// Chunk joins pieces with blank lines into messages of at most maxLen
// characters. Pieces are never split unless a single piece is longer than
// maxLen on its own. Such a piece loses its markup and is cut between
// characters, never inside an entity, so every chunk stays valid HTML.
func Chunk(pieces []string, maxLen int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0
	sepLen := utf8.RuneCountInString(blockSeparator)

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if n > maxLen {
			flush()
			chunks = append(chunks, splitPlain(p, maxLen)...)
			continue
		}
		if curLen > 0 && curLen+sepLen+n > maxLen {
			flush()
		}
		if curLen > 0 {
			cur.WriteString(blockSeparator)
			curLen += sepLen
		}
		cur.WriteString(p)
		curLen += n
	}
	flush()
	return chunks
}

// splitPlain strips the tags from an HTML piece and splits its text into
// escaped parts of at most maxLen characters.
func splitPlain(s string, maxLen int) []string {
	text := html.UnescapeString(s)
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
		text = doc.Text()
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	for _, r := range text {
		esc := html.EscapeString(string(r))
		n := utf8.RuneCountInString(esc)
		if curLen+n > maxLen && curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		cur.WriteString(esc)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}
