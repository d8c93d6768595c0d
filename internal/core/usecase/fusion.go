package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

// fuseHybrid merges semantic and filter candidates into one list keyed by
// product identity. Semantic scores are kept for overlaps; filter-only
// products enter with score 0 and rank after semantic hits of equal score.
func fuseHybrid(semantic, filtered []domain.SearchResult, topK int) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(semantic)+len(filtered))
	index := make(map[string]int, len(semantic)+len(filtered))

	for i, res := range semantic {
		key := fusionKey(res, branchSemantic, i)
		if pos, ok := index[key]; ok {
			if betterChunk(res, out[pos]) {
				res.Origin = domain.OriginSemantic
				res.FilterMatch = false
				out[pos] = res
			}
			continue
		}
		res.Origin = domain.OriginSemantic
		res.FilterMatch = false
		index[key] = len(out)
		out = append(out, res)
	}

	for i, res := range filtered {
		key := fusionKey(res, branchFilter, i)
		if pos, ok := index[key]; ok {
			if out[pos].Origin == domain.OriginSemantic {
				out[pos].Origin = domain.OriginHybrid
			}
			out[pos].FilterMatch = true
			out[pos].Attributes = mergeAttributes(out[pos].Attributes, res.Attributes)
			continue
		}
		res.Score = 0
		res.Origin = domain.OriginFilter
		res.FilterMatch = true
		index[key] = len(out)
		out = append(out, res)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Origin != domain.OriginFilter && out[j].Origin == domain.OriginFilter
	})
	return truncateResults(out, topK)
}

// betterChunk picks the representative chunk for a product: higher score,
// then lower chunk index, so the choice does not depend on input order.
func betterChunk(candidate, current domain.SearchResult) bool {
	if candidate.Score != current.Score {
		return candidate.Score > current.Score
	}
	return candidate.ChunkIndex < current.ChunkIndex
}

// fusionKey is product id, then SKU. Results with neither get a key unique
// to their position and are never merged.
func fusionKey(res domain.SearchResult, branch string, position int) string {
	if res.ProductID > 0 {
		return fmt.Sprintf("product:%d", res.ProductID)
	}
	if sku := strings.ToLower(strings.TrimSpace(res.SKU)); sku != "" {
		return "sku:" + sku
	}
	return fmt.Sprintf("anon:%s:%d", branch, position)
}

func mergeAttributes(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
