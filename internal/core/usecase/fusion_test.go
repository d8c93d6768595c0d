package usecase

import (
	"reflect"
	"testing"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

func TestFuseHybridMergesOverlap(t *testing.T) {
	semantic := []domain.SearchResult{
		{ProductID: 42, SKU: "XBO-1", Score: 0.8, Text: "semantic chunk"},
		{ProductID: 7, SKU: "XBO-2", Score: 0.6},
	}
	filtered := []domain.SearchResult{
		{ProductID: 42, SKU: "XBO-1", Attributes: map[string]any{"power_w": 40.0}},
		{ProductID: 99, SKU: "XBO-9"},
	}

	fused := fuseHybrid(semantic, filtered, 20)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}
	first := fused[0]
	if first.ProductID != 42 || first.Origin != domain.OriginHybrid || !first.FilterMatch {
		t.Fatalf("expected hybrid entry for product 42 first, got %+v", first)
	}
	if first.Score != 0.8 || first.Text != "semantic chunk" {
		t.Fatalf("expected semantic score and text kept, got %+v", first)
	}
	if first.Attributes["power_w"] != 40.0 {
		t.Fatalf("expected filter attributes merged, got %v", first.Attributes)
	}
	last := fused[2]
	if last.ProductID != 99 || last.Origin != domain.OriginFilter || last.Score != 0 || !last.FilterMatch {
		t.Fatalf("expected filter-only entry last with score 0, got %+v", last)
	}
}

func TestFuseHybridFallsBackToSKUKey(t *testing.T) {
	semantic := []domain.SearchResult{{SKU: "ABC-1", Score: 0.5}}
	filtered := []domain.SearchResult{{SKU: "abc-1"}}

	fused := fuseHybrid(semantic, filtered, 20)
	if len(fused) != 1 || fused[0].Origin != domain.OriginHybrid {
		t.Fatalf("expected SKU match to merge case-insensitively, got %+v", fused)
	}
}

func TestFuseHybridNeverMergesAnonymousResults(t *testing.T) {
	semantic := []domain.SearchResult{{Text: "a", Score: 0.5}, {Text: "b", Score: 0.4}}
	filtered := []domain.SearchResult{{Text: "c"}}

	fused := fuseHybrid(semantic, filtered, 20)
	if len(fused) != 3 {
		t.Fatalf("expected anonymous results kept apart, got %d", len(fused))
	}
}

func TestFuseHybridKeepsBestChunkPerProduct(t *testing.T) {
	semantic := []domain.SearchResult{
		{ProductID: 1, Score: 0.4, ChunkIndex: 0},
		{ProductID: 1, Score: 0.9, ChunkIndex: 3},
	}
	fused := fuseHybrid(semantic, nil, 20)
	if len(fused) != 1 || fused[0].ChunkIndex != 3 || fused[0].Score != 0.9 {
		t.Fatalf("expected best chunk kept, got %+v", fused)
	}
}

func TestFuseHybridStableTiesAndTruncation(t *testing.T) {
	filtered := []domain.SearchResult{{ProductID: 3}, {ProductID: 1}, {ProductID: 2}}
	fused := fuseHybrid(nil, filtered, 2)
	if len(fused) != 2 || fused[0].ProductID != 3 || fused[1].ProductID != 1 {
		t.Fatalf("expected insertion order on ties and truncation, got %+v", fused)
	}
}

func TestFuseHybridSemanticBeatsFilterOnlyAtEqualScore(t *testing.T) {
	semantic := []domain.SearchResult{{ProductID: 1, Score: 0}}
	filtered := []domain.SearchResult{{ProductID: 2}, {ProductID: 3}}

	for _, in := range [][]domain.SearchResult{filtered, {filtered[1], filtered[0]}} {
		fused := fuseHybrid(semantic, in, 20)
		if len(fused) != 3 || fused[0].ProductID != 1 || fused[0].Origin != domain.OriginSemantic {
			t.Fatalf("expected semantic result ahead of filter-only ties, got %+v", fused)
		}
	}
}

func TestFuseHybridEqualScoreChunksPickLowerIndex(t *testing.T) {
	a := domain.SearchResult{ProductID: 1, Score: 0.5, ChunkIndex: 4, Text: "late"}
	b := domain.SearchResult{ProductID: 1, Score: 0.5, ChunkIndex: 1, Text: "early"}

	for _, in := range [][]domain.SearchResult{{a, b}, {b, a}} {
		fused := fuseHybrid(in, nil, 20)
		if len(fused) != 1 || fused[0].ChunkIndex != 1 || fused[0].Text != "early" {
			t.Fatalf("expected lower chunk index on equal score, got %+v", fused)
		}
	}
}

func fusedByKey(results []domain.SearchResult) map[string]domain.SearchResult {
	out := make(map[string]domain.SearchResult, len(results))
	for i, res := range results {
		out[fusionKey(res, "", i)] = res
	}
	return out
}

func TestFuseHybridKeyMappingIndependentOfOrder(t *testing.T) {
	semantic := []domain.SearchResult{
		{ProductID: 5, SKU: "S5", Score: 0.7, ChunkIndex: 0, Text: "five"},
		{ProductID: 6, SKU: "S6", Score: 0.3, ChunkIndex: 2, Text: "six"},
		{ProductID: 6, SKU: "S6", Score: 0.3, ChunkIndex: 1, Text: "six early"},
		{SKU: "S8", Score: 0.2, Text: "eight"},
	}
	filtered := []domain.SearchResult{
		{ProductID: 6, SKU: "S6", Attributes: map[string]any{"ip_rating": "IP65"}},
		{ProductID: 7, SKU: "S7"},
		{SKU: "s8"},
	}
	reverse := func(in []domain.SearchResult) []domain.SearchResult {
		out := make([]domain.SearchResult, len(in))
		for i := range in {
			out[len(in)-1-i] = in[i]
		}
		return out
	}

	want := fusedByKey(fuseHybrid(semantic, filtered, 20))
	if len(want) != 4 {
		t.Fatalf("expected 4 fused keys, got %d: %+v", len(want), want)
	}
	perms := [][2][]domain.SearchResult{
		{reverse(semantic), filtered},
		{semantic, reverse(filtered)},
		{reverse(semantic), reverse(filtered)},
	}
	for _, p := range perms {
		got := fusedByKey(fuseHybrid(p[0], p[1], 20))
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("fused mapping depends on input order:\n got %+v\nwant %+v", got, want)
		}
	}
	if h := want["product:6"]; h.Origin != domain.OriginHybrid || h.Text != "six early" || !h.FilterMatch {
		t.Fatalf("unexpected hybrid entry %+v", h)
	}
}
