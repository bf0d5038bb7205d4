// Package sanitize turns model output into plain chat text.
package sanitize

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	blockTags     = regexp.MustCompile(`<br\s*/?>|</?p>|</?div>|</?pre>|</?h[1-6]>|</?blockquote>|</?[uo]l>`)
	listItemTag   = regexp.MustCompile(`<li>`)
	extraNewlines = regexp.MustCompile(`\n{3,}`)

	// invisible drops zero-width and directional marks models sometimes emit.
	invisible = strings.NewReplacer(
		"\u200b", "", "\u200c", "", "\u200d", "", "\u2060", "", "\ufeff", "",
		"\u200e", "", "\u200f", "", "\u202a", "", "\u202b", "", "\u202c", "",
		"\u202d", "", "\u202e", "",
	)
)

// Policy strips markdown and HTML. It is safe for concurrent use.
type Policy struct {
	policy   *bluemonday.Policy
	markdown goldmark.Markdown
}

// NewPolicy creates a plain-text policy.
func NewPolicy() *Policy {
	return &Policy{
		policy:   bluemonday.StrictPolicy(),
		markdown: goldmark.New(),
	}
}

// Plaintext renders text as markdown, removes every tag and normalizes
// whitespace. List items become "• " lines and paragraphs stay separated by
// one blank line. If rendering fails the input is only whitespace-normalized.
func (p *Policy) Plaintext(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(text), &buf); err == nil {
		rendered := listItemTag.ReplaceAllString(buf.String(), "• ")
		rendered = blockTags.ReplaceAllString(rendered, "\n")
		text = html.UnescapeString(p.policy.Sanitize(rendered))
	}

	return normalize(text)
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = invisible.Replace(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = collapseSpaces(line)
	}
	s = extraNewlines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}

// collapseSpaces turns each run of whitespace into one space and trims the line.
func collapseSpaces(line string) string {
	var b strings.Builder
	space := false
	for _, r := range line {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteRune(' ')
			}
			space = true
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimSpace(b.String())
}
