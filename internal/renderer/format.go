// Package renderer implements the Streaming Renderer: it segments the
// agent's event stream into live-editable message units with coalescing,
// throttling, overflow splitting, and progress/completion indicators, and
// renders them through the Messaging port.
package renderer

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// allowedTagPolicy restricts rendered HTML to the tag set spec.md §4.2
// names: bold, italic, code, preformatted, link, blockquote.
func allowedTagPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "code", "pre", "blockquote")
	p.AllowAttrs("href").OnElements("a")
	p.AllowElements("a")
	p.RequireNoFollowOnLinks(false)
	return p
}

var chatHTMLPolicy = allowedTagPolicy()

// bulletGlyph is the common glyph spec.md §4.2(d) requires every list
// marker ('-', '*', '+', or an ordered list's digit) to collapse to.
const bulletGlyph = "\n• "

// liTagReplacer rewrites goldmark's <li> markup into bulletGlyph before
// sanitizing. bluemonday's allowed-tag policy has no ul/ol/li entry (chat
// clients don't render list semantics), so left alone it deletes the tags
// outright and list items collapse into bare concatenated text with no
// marker at all; this runs first so the glyph survives sanitization as
// plain text.
var liTagReplacer = strings.NewReplacer("<li>", bulletGlyph, "</li>", "")

// emphasisTagReplacer maps goldmark's <strong>/<em> output onto the <b>/<i>
// tags the allowed-tag policy keeps, so bold and italic survive sanitizing.
var emphasisTagReplacer = strings.NewReplacer("<strong>", "<b>", "</strong>", "</b>", "<em>", "<i>", "</em>", "</i>")

// ToChatHTML converts Markdown to the restricted chat-HTML tag set.
// goldmark HTML-escapes raw input on parse (so HTML-sensitive characters in
// user/agent content never reach the output unescaped), and bluemonday then
// strips anything outside the allowed tag set — together satisfying the
// "escape before transform, only restricted tags survive" invariant without
// a hand-rolled state machine.
func ToChatHTML(markdown string) (string, error) {
	var buf strings.Builder
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	withBullets := liTagReplacer.Replace(emphasisTagReplacer.Replace(buf.String()))
	sanitized := chatHTMLPolicy.Sanitize(withBullets)
	return strings.TrimSpace(sanitized), nil
}
