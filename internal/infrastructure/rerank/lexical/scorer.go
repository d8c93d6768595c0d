// Package lexical scores candidates by query token overlap. It needs no
// model and is used when no cross-encoder endpoint is configured.
package lexical

import (
	"context"
	"strings"
	"unicode"
)

type Scorer struct {
	minTokenLen int
}

func New() *Scorer {
	return &Scorer{minTokenLen: 2}
}

// Score returns, per candidate, the share of distinct query tokens it
// contains. Numeric tokens count double since they carry SKUs and ratings.
func (s *Scorer) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTokens := s.tokenSet(query)
	scores := make([]float64, len(candidates))
	if len(queryTokens) == 0 {
		return scores, nil
	}

	total := 0.0
	for token := range queryTokens {
		total += weight(token)
	}
	for i, text := range candidates {
		textTokens := s.tokenSet(text)
		matched := 0.0
		for token := range queryTokens {
			if _, ok := textTokens[token]; ok {
				matched += weight(token)
			}
		}
		scores[i] = matched / total
	}
	return scores, nil
}

func weight(token string) float64 {
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return 1
		}
	}
	return 2
}

func (s *Scorer) tokenSet(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, token := range splitAlphaNumLower(text) {
		if len([]rune(token)) >= s.minTokenLen {
			out[token] = struct{}{}
		}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
