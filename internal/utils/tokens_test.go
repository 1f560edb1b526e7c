package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMeaningfulTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "simple words", input: "Invoice 2041 overdue", expected: []string{"invoice", "2041", "overdue"}},
		{name: "with punctuation", input: "Re-send, ASAP!", expected: []string{"re", "send", "asap"}},
		{name: "mail pleasantries removed", input: "Hi team, thanks! Kind regards", expected: []string{"team"}},
		{name: "duplicates removed", input: "refund refund REFUND", expected: []string{"refund"}},
		{name: "single letters dropped, digits kept", input: "a b 7 c", expected: []string{"7"}},
		{name: "empty", input: "  ", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractMeaningfulTokens(tt.input))
		})
	}
}

func TestFirstKeyword(t *testing.T) {
	keywords := KeywordSet("Urgent", " refund ", "lawyer")

	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{name: "match", input: "I want a refund for order 12", want: "refund", found: true},
		{name: "case insensitive", input: "URGENT: server down", want: "urgent", found: true},
		{name: "first of several", input: "my lawyer says refund", want: "lawyer", found: true},
		{name: "no match", input: "What are your opening hours?", found: false},
		{name: "substring does not match", input: "refunding later", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstKeyword(tt.input, keywords)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
