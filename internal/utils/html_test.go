package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHTML(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		contains    []string
		notContains []string
	}{
		{
			name:        "script removed",
			input:       `<p>Hello</p><script>alert(1)</script>`,
			contains:    []string{"<p>Hello</p>"},
			notContains: []string{"script", "alert"},
		},
		{
			name:        "event handler removed",
			input:       `<a href="https://example.com" onclick="steal()">link</a>`,
			contains:    []string{`href="https://example.com"`, "link"},
			notContains: []string{"onclick"},
		},
		{
			name:        "javascript url removed",
			input:       `<a href="javascript:alert(1)">x</a>`,
			notContains: []string{"javascript"},
		},
		{
			name:     "tables kept",
			input:    `<table><tr><td>Total</td></tr></table>`,
			contains: []string{"<table>", "<td>Total</td>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeHTML(tt.input)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, got, s)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello & bye", StripHTML("<b>Hello</b> &amp; <i>bye</i>"))
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "", HTMLToText("  "))

	got := HTMLToText(`<p>Your order <strong>shipped</strong>.</p>`)
	assert.Contains(t, got, "**shipped**")
	assert.NotContains(t, got, "<p>")
}

func TestTextToHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "single line", input: "Hello", want: "<p>Hello</p>"},
		{name: "paragraphs and breaks", input: "Hi,\r\nthanks\n\nBye", want: "<p>Hi,<br>thanks</p><p>Bye</p>"},
		{name: "escaped", input: "a < b", want: "<p>a &lt; b</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextToHTML(tt.input))
		})
	}
}

func TestReplySubject(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Order status", "Re: Order status"},
		{"Re: Order status", "Re: Order status"},
		{"RE: shouting", "RE: shouting"},
		{"AW: Bestellung", "AW: Bestellung"},
		{"  ", "Re: (no subject)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplySubject(tt.input))
		})
	}
}
