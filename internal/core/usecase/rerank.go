package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

// rerankGate reorders candidates with the cross-encoder only when there are
// more of them than the caller asked for.
func (r *SearchRouter) rerankGate(
	ctx context.Context,
	query string,
	candidates []domain.SearchResult,
	topKFinal int,
) ([]domain.SearchResult, bool, string) {
	if topKFinal <= 0 || len(candidates) <= topKFinal {
		return candidates, false, ""
	}
	if r.reranker == nil {
		return candidates[:topKFinal], false, ""
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = rerankText(c)
	}

	scores, err := r.reranker.Score(ctx, query, texts)
	if err == nil && len(scores) != len(candidates) {
		err = fmt.Errorf("reranker returned %d scores for %d candidates", len(scores), len(candidates))
	}
	if err != nil {
		r.logger.Warn("rerank_failed", "error", err, "candidates", len(candidates))
		return candidates[:topKFinal], false, fmt.Sprintf("rerank failed: %v", err)
	}

	out := make([]domain.SearchResult, len(candidates))
	copy(out, candidates)
	for i := range out {
		score := scores[i]
		out[i].RerankScore = &score
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].RerankScore > *out[j].RerankScore
	})
	return out[:topKFinal], true, ""
}

func rerankText(res domain.SearchResult) string {
	if strings.TrimSpace(res.Text) != "" {
		return res.Text
	}
	return strings.TrimSpace(res.ProductName + " " + res.SKU)
}
