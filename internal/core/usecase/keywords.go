package usecase

import (
	"strings"
	"unicode"
)

const (
	maxKeywords      = 10
	minKeywordLength = 3
)

// German and English stopwords.
var keywordStopwords = map[string]struct{}{
	"der": {}, "die": {}, "das": {}, "und": {}, "oder": {}, "mit": {}, "für": {},
	"von": {}, "zu": {}, "auf": {}, "in": {}, "an": {}, "bei": {}, "ein": {},
	"eine": {}, "ist": {}, "sind": {}, "welche": {}, "welcher": {}, "gibt": {},
	"the": {}, "and": {}, "or": {}, "with": {}, "for": {}, "of": {}, "to": {},
	"on": {}, "at": {}, "by": {}, "are": {}, "is": {}, "what": {}, "which": {},
	"have": {}, "has": {}, "all": {}, "any": {}, "more": {}, "than": {},
	"show": {}, "find": {}, "me": {}, "products": {}, "product": {},
}

// ExtractKeywords returns up to ten lowercase content tokens of text in
// order. Repeated tokens are kept.
func ExtractKeywords(text string) []string {
	out := make([]string, 0, maxKeywords)
	for _, token := range tokenize(text) {
		if len([]rune(token)) < minKeywordLength {
			continue
		}
		if _, stop := keywordStopwords[token]; stop {
			continue
		}
		out = append(out, token)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func normalizeKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
