package utils

import (
	"regexp"
	"strings"
)

var (
	tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)
	stopwords    = map[string]struct{}{
		"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "best": {}, "can": {},
		"dear": {}, "for": {}, "from": {}, "have": {}, "hello": {}, "hi": {}, "how": {}, "i": {}, "im": {},
		"in": {}, "is": {}, "it": {}, "kind": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {},
		"our": {}, "please": {}, "regards": {}, "sent": {}, "thank": {}, "thanks": {}, "that": {},
		"the": {}, "this": {}, "to": {}, "was": {}, "we": {}, "what": {}, "when": {}, "which": {},
		"with": {}, "would": {}, "you": {}, "your": {},
	}
)

// ExtractMeaningfulTokens tokenizes text, removes stopwords, and deduplicates tokens while preserving order.
func ExtractMeaningfulTokens(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	rawTokens := tokenize(text)
	filtered := filterTokens(rawTokens)
	return dedupeTokens(filtered)
}

// FirstKeyword returns the first meaningful token of text that is in keywords
func FirstKeyword(text string, keywords map[string]struct{}) (string, bool) {
	for _, token := range ExtractMeaningfulTokens(text) {
		if _, ok := keywords[token]; ok {
			return token, true
		}
	}
	return "", false
}

// KeywordSet builds a lookup set from a word list
func KeywordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return tokenPattern.FindAllString(lower, -1)
}

func filterTokens(tokens []string) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) == 1 && (token[0] < '0' || token[0] > '9') {
			continue
		}
		if _, isStopword := stopwords[token]; isStopword {
			continue
		}
		result = append(result, token)
	}
	return result
}

func dedupeTokens(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}

	seen := make(map[string]struct{}, len(tokens))
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, exists := seen[token]; exists {
			continue
		}
		seen[token] = struct{}{}
		result = append(result, token)
	}
	return result
}
