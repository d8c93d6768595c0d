package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

func newTestRouter(attrs *attributeStoreFake, vectors *vectorStoreFake, reranker *rerankerFake) *SearchRouter {
	r := NewSearchRouter(attrs, vectors, &queryEmbedderFake{}, nil, RouterOptions{BranchTimeout: time.Second})
	if reranker != nil {
		r.reranker = reranker
	}
	return r
}

func descendingScores(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestSearchExactMatchUsesAttributeStore(t *testing.T) {
	attrs := &attributeStoreFake{exact: []domain.SearchResult{{ProductID: 7, SKU: "4062172212311", Score: 1}}}
	vectors := &vectorStoreFake{}
	router := newTestRouter(attrs, vectors, nil)

	resp := router.Search(context.Background(), domain.QueryClassification{
		Query: "4062172212311", Type: domain.QueryExactMatch, Confidence: 0.95,
	}, 20, 5)

	if attrs.exactCalls != 1 || vectors.calls != 0 {
		t.Fatalf("expected only exact search, got exact=%d semantic=%d", attrs.exactCalls, vectors.calls)
	}
	if len(resp.Results) != 1 || resp.Results[0].Origin != domain.OriginExact {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
	if resp.Degraded {
		t.Fatalf("expected non-degraded response")
	}
}

func TestSearchExactMatchUsesBareIdentifier(t *testing.T) {
	attrs := &attributeStoreFake{exact: []domain.SearchResult{{ProductID: 3, SKU: "ABC-123", Score: 1}}}
	router := newTestRouter(attrs, &vectorStoreFake{}, nil)
	classifier := NewQueryClassifier(&modelFake{err: errStoreDown}, ClassifierOptions{})

	cls := classifier.Classify(context.Background(), "SKU: ABC-123")
	resp := router.Search(context.Background(), cls, 20, 5)

	if attrs.lastExact != "ABC-123" {
		t.Fatalf("expected attribute store to receive the bare identifier, got %q", attrs.lastExact)
	}
	if len(resp.Results) != 1 || resp.Results[0].SKU != "ABC-123" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
}

func TestSearchExactMatchWithoutIdentifierUsesQuery(t *testing.T) {
	attrs := &attributeStoreFake{}
	router := newTestRouter(attrs, &vectorStoreFake{}, nil)

	router.Search(context.Background(), domain.QueryClassification{
		Query: "XBO 3000 W/HS", Type: domain.QueryExactMatch,
	}, 20, 5)

	if attrs.lastExact != "XBO 3000 W/HS" {
		t.Fatalf("expected whole query, got %q", attrs.lastExact)
	}
}

func TestSearchAttributeFilterWithoutFiltersReturnsEmpty(t *testing.T) {
	attrs := &attributeStoreFake{filtered: []domain.SearchResult{{ProductID: 1}}}
	router := newTestRouter(attrs, &vectorStoreFake{}, nil)

	for _, filters := range []*domain.AttributeFilter{nil, {}} {
		resp := router.Search(context.Background(), domain.QueryClassification{
			Query: "lamps", Type: domain.QueryAttributeFilter, Confidence: 0.8, Filters: filters,
		}, 20, 5)
		if len(resp.Results) != 0 || resp.Degraded || len(resp.Warnings) != 0 {
			t.Fatalf("expected empty, clean response, got %+v", resp)
		}
	}
	if attrs.filterCalls != 0 {
		t.Fatalf("expected store not to be queried, got %d calls", attrs.filterCalls)
	}
}

func TestSearchAttributeFilterPassesFilter(t *testing.T) {
	attrs := &attributeStoreFake{filtered: []domain.SearchResult{{ProductID: 1, Score: 1}}}
	router := newTestRouter(attrs, &vectorStoreFake{}, nil)
	filter := &domain.AttributeFilter{MinPower: floatPtr(100)}

	resp := router.Search(context.Background(), domain.QueryClassification{
		Query: "lamps over 100 W", Type: domain.QueryAttributeFilter, Confidence: 0.9, Filters: filter,
	}, 20, 5)

	if attrs.filterCalls != 1 || attrs.lastFilter.MinPower == nil || *attrs.lastFilter.MinPower != 100 {
		t.Fatalf("expected filter search with min_power=100, got %+v", attrs.lastFilter)
	}
	if len(resp.Results) != 1 || !resp.Results[0].FilterMatch || resp.Results[0].Origin != domain.OriginFilter {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
}

func TestSearchSemanticFallbackQueriesVectorStore(t *testing.T) {
	vectors := &vectorStoreFake{results: semanticResults(3)}
	router := newTestRouter(&attributeStoreFake{}, vectors, nil)

	resp := router.Search(context.Background(), fallbackClassification("stage lighting", nil), 20, 5)

	if vectors.calls != 1 || vectors.topK != 20 {
		t.Fatalf("expected semantic search with topK=20, got calls=%d topK=%d", vectors.calls, vectors.topK)
	}
	if len(resp.Results) != 3 || resp.Reranked {
		t.Fatalf("expected 3 un-reranked results, got %d reranked=%v", len(resp.Results), resp.Reranked)
	}
}

func TestSearchUnknownTypeBehavesAsSemantic(t *testing.T) {
	vectors := &vectorStoreFake{results: semanticResults(1)}
	router := newTestRouter(&attributeStoreFake{}, vectors, nil)

	resp := router.Search(context.Background(), domain.QueryClassification{Query: "q", Type: "OTHER"}, 20, 5)
	if vectors.calls != 1 || len(resp.Results) != 1 || resp.Results[0].Origin != domain.OriginSemantic {
		t.Fatalf("expected semantic dispatch, got %+v", resp)
	}
}

func TestSearchSingleBranchFailureIsDegraded(t *testing.T) {
	router := newTestRouter(&attributeStoreFake{err: errStoreDown}, &vectorStoreFake{}, nil)

	resp := router.Search(context.Background(), domain.QueryClassification{
		Query: "4062172212311", Type: domain.QueryExactMatch,
	}, 20, 5)

	if !resp.Degraded || len(resp.Results) != 0 {
		t.Fatalf("expected degraded empty response, got %+v", resp)
	}
	if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "exact search failed") {
		t.Fatalf("unexpected warnings %v", resp.Warnings)
	}
}

func TestSearchHybridWithFailingAttributeStore(t *testing.T) {
	recorder := &recorderFake{}
	vectors := &vectorStoreFake{results: semanticResults(5)}
	router := NewSearchRouter(&attributeStoreFake{err: errStoreDown}, vectors, &queryEmbedderFake{}, nil, RouterOptions{Recorder: recorder})

	resp := router.Search(context.Background(), domain.QueryClassification{
		Query:   "compact lamps under 50 W for film",
		Type:    domain.QueryHybrid,
		Filters: &domain.AttributeFilter{MaxPower: floatPtr(50)},
	}, 20, 5)

	if resp.Degraded {
		t.Fatalf("expected partial success, not degraded")
	}
	if len(resp.Results) != 5 {
		t.Fatalf("expected the 5 semantic results, got %d", len(resp.Results))
	}
	for _, res := range resp.Results {
		if res.Origin != domain.OriginSemantic || res.FilterMatch {
			t.Fatalf("expected semantic-only origin, got %+v", res)
		}
	}
	if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "filter search failed") {
		t.Fatalf("expected filter warning, got %v", resp.Warnings)
	}
	if len(recorder.branchFailures) != 1 || recorder.branchFailures[0] != branchFilter {
		t.Fatalf("expected recorded filter failure, got %v", recorder.branchFailures)
	}
}

func TestSearchHybridAllBranchesFail(t *testing.T) {
	router := newTestRouter(&attributeStoreFake{err: errStoreDown}, &vectorStoreFake{err: errStoreDown}, nil)

	resp := router.Search(context.Background(), domain.QueryClassification{
		Query:   "q",
		Type:    domain.QueryHybrid,
		Filters: &domain.AttributeFilter{IPRating: "IP65"},
	}, 20, 5)

	if !resp.Degraded || len(resp.Results) != 0 || len(resp.Warnings) != 2 {
		t.Fatalf("expected degraded response with two warnings, got %+v", resp)
	}
}

func TestSearchHybridWithoutFiltersRunsSemanticOnly(t *testing.T) {
	attrs := &attributeStoreFake{}
	router := newTestRouter(attrs, &vectorStoreFake{results: semanticResults(2)}, nil)

	resp := router.Search(context.Background(), domain.QueryClassification{Query: "q", Type: domain.QueryHybrid}, 20, 5)
	if attrs.filterCalls != 0 || len(resp.Results) != 2 || resp.Degraded {
		t.Fatalf("unexpected hybrid response %+v (filter calls %d)", resp, attrs.filterCalls)
	}
}

func TestSearchBranchTimeoutBecomesWarning(t *testing.T) {
	router := NewSearchRouter(
		&attributeStoreFake{filtered: []domain.SearchResult{{ProductID: 9, SKU: "X"}}},
		&vectorStoreFake{block: true},
		&queryEmbedderFake{},
		nil,
		RouterOptions{BranchTimeout: 20 * time.Millisecond},
	)

	resp := router.Search(context.Background(), domain.QueryClassification{
		Query:   "q",
		Type:    domain.QueryHybrid,
		Filters: &domain.AttributeFilter{ApplicationArea: "stage"},
	}, 20, 5)

	if resp.Degraded || len(resp.Results) != 1 || resp.Results[0].Origin != domain.OriginFilter {
		t.Fatalf("expected filter-only results after semantic timeout, got %+v", resp)
	}
	if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "semantic search failed") {
		t.Fatalf("expected semantic timeout warning, got %v", resp.Warnings)
	}
}

func TestRerankGateSkipsWhenWithinLimit(t *testing.T) {
	reranker := &rerankerFake{scores: descendingScores}
	router := newTestRouter(&attributeStoreFake{}, &vectorStoreFake{results: semanticResults(3)}, reranker)

	resp := router.Search(context.Background(), domain.QueryClassification{Query: "q", Type: domain.QuerySemantic}, 20, 5)

	if reranker.calls != 0 || resp.Reranked {
		t.Fatalf("expected reranker to be skipped")
	}
	for i, res := range resp.Results {
		if res.RerankScore != nil {
			t.Fatalf("expected no rerank score at %d", i)
		}
		if res.ProductID != int64(i+1) {
			t.Fatalf("expected input order preserved, got %+v", resp.Results)
		}
	}
}

func TestRerankGateTriggersAndTruncates(t *testing.T) {
	reranker := &rerankerFake{scores: descendingScores}
	router := newTestRouter(&attributeStoreFake{}, &vectorStoreFake{results: semanticResults(25)}, reranker)

	resp := router.Search(context.Background(), domain.QueryClassification{Query: "q", Type: domain.QuerySemantic}, 25, 5)

	if reranker.calls != 1 || len(reranker.texts) != 25 {
		t.Fatalf("expected one rerank call over 25 candidates, got calls=%d texts=%d", reranker.calls, len(reranker.texts))
	}
	if !resp.Reranked || resp.CandidateCount != 25 {
		t.Fatalf("expected reranked response over 25 candidates, got %+v", resp)
	}
	if len(resp.Results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(resp.Results))
	}
	for i := 1; i < len(resp.Results); i++ {
		if *resp.Results[i-1].RerankScore < *resp.Results[i].RerankScore {
			t.Fatalf("expected descending rerank scores, got %+v", resp.Results)
		}
	}
	if resp.Results[0].ProductID != 25 {
		t.Fatalf("expected highest rerank score first, got product %d", resp.Results[0].ProductID)
	}
}

func TestRerankGateFailureKeepsOrder(t *testing.T) {
	reranker := &rerankerFake{err: errStoreDown}
	router := newTestRouter(&attributeStoreFake{}, &vectorStoreFake{results: semanticResults(8)}, reranker)

	resp := router.Search(context.Background(), domain.QueryClassification{Query: "q", Type: domain.QuerySemantic}, 20, 5)

	if resp.Reranked || resp.Degraded {
		t.Fatalf("expected pass-through without degradation, got %+v", resp)
	}
	if len(resp.Results) != 5 || resp.Results[0].ProductID != 1 {
		t.Fatalf("expected first 5 candidates in order, got %+v", resp.Results)
	}
	if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "rerank failed") {
		t.Fatalf("expected rerank warning, got %v", resp.Warnings)
	}
}

func TestRerankGateKeepsOrderOnEqualScores(t *testing.T) {
	reranker := &rerankerFake{scores: func(n int) []float64 { return make([]float64, n) }}
	router := newTestRouter(&attributeStoreFake{}, &vectorStoreFake{results: semanticResults(8)}, reranker)

	resp := router.Search(context.Background(), domain.QueryClassification{Query: "q", Type: domain.QuerySemantic}, 20, 5)

	if !resp.Reranked || len(resp.Results) != 5 {
		t.Fatalf("expected 5 reranked results, got %+v", resp)
	}
	for i, res := range resp.Results {
		if res.ProductID != int64(i+1) {
			t.Fatalf("expected pre-rerank order on ties, got %+v", resp.Results)
		}
	}
}

func TestRerankGateLengthMismatchIsWarning(t *testing.T) {
	reranker := &rerankerFake{scores: func(int) []float64 { return []float64{1} }}
	router := newTestRouter(&attributeStoreFake{}, &vectorStoreFake{results: semanticResults(8)}, reranker)

	resp := router.Search(context.Background(), domain.QueryClassification{Query: "q", Type: domain.QuerySemantic}, 20, 5)
	if resp.Reranked || len(resp.Results) != 5 || len(resp.Warnings) != 1 {
		t.Fatalf("expected mismatch warning and pass-through, got %+v", resp)
	}
}

func TestSearchTruncatesToCandidateLimit(t *testing.T) {
	router := newTestRouter(&attributeStoreFake{exact: semanticResults(30)}, &vectorStoreFake{}, nil)

	resp := router.Search(context.Background(), domain.QueryClassification{Query: "q", Type: domain.QueryExactMatch}, 20, 0)
	if resp.CandidateCount != 20 || len(resp.Results) != 20 {
		t.Fatalf("expected 20 candidates, got count=%d results=%d", resp.CandidateCount, len(resp.Results))
	}
}
