package utils

import (
	"html"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// strictPolicy removes all markup
	strictPolicy = bluemonday.StrictPolicy()
	// mailPolicy keeps the formatting a mail client renders
	mailPolicy = newMailPolicy()
)

func newMailPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("p", "br", "div", "span", "h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowElements("strong", "em", "u", "s", "code", "pre", "blockquote")
	p.AllowElements("ul", "ol", "li", "a", "img")
	p.AllowElements("table", "thead", "tbody", "tr", "th", "td")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowAttrs("style").OnElements("span", "div", "p")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https", "mailto", "cid")
	return p
}

// SanitizeHTML strips scripts, handlers and unsafe URLs while keeping mail formatting
func SanitizeHTML(s string) string {
	return mailPolicy.Sanitize(s)
}

// StripHTML removes all tags
func StripHTML(s string) string {
	return html.UnescapeString(strictPolicy.Sanitize(s))
}

// HTMLToText renders an HTML body as markdown, which keeps links and lists
// readable for a language model. Falls back to plain tag stripping.
func HTMLToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return strings.TrimSpace(StripHTML(s))
	}
	return strings.TrimSpace(md)
}

// TextToHTML turns plain text paragraphs into escaped HTML paragraphs
func TextToHTML(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	if text == "" {
		return ""
	}

	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i := range lines {
			lines[i] = html.EscapeString(lines[i])
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// ReplySubject prefixes "Re: " unless the subject already carries a reply prefix
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"re:", "aw:", "sv:", "antw:"} {
		if strings.HasPrefix(lower, prefix) {
			return trimmed
		}
	}
	if trimmed == "" {
		return "Re: (no subject)"
	}
	return "Re: " + trimmed
}
