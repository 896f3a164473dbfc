// ABOUTME: Reply formatting for chat surfaces
// ABOUTME: Renders provider output as plain text or Markdown-derived HTML

package surface

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// FormatText forwards provider output verbatim; FormatHTML renders it
// as Markdown.
const (
	FormatText = "text"
	FormatHTML = "html"
)

// Formatter converts provider output into the surface's reply format.
type Formatter struct {
	html bool
	md   goldmark.Markdown
}

// NewFormatter returns a Formatter for the given format name. Unknown
// names fall back to plain text.
func NewFormatter(format string) *Formatter {
	f := &Formatter{}
	if format == FormatHTML {
		f.html = true
		f.md = goldmark.New(goldmark.WithExtensions(extension.GFM))
	}
	return f
}

// Render formats one reply. HTML rendering failures fall back to the
// unrendered text so the sender always gets an answer.
func (f *Formatter) Render(text string) string {
	if !f.html {
		return text
	}

	var buf bytes.Buffer
	if err := f.md.Convert([]byte(text), &buf); err != nil {
		return text
	}
	return strings.TrimSpace(buf.String())
}
