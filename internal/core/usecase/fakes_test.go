package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

type modelFake struct {
	raw   string
	err   error
	calls int
}

func (f *modelFake) ClassifyQuery(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.raw, nil
}

type attributeStoreFake struct {
	mu          sync.Mutex
	exact       []domain.SearchResult
	filtered    []domain.SearchResult
	err         error
	exactCalls  int
	filterCalls int
	lastExact   string
	lastFilter  domain.AttributeFilter
}

func (f *attributeStoreFake) ExactSearch(_ context.Context, text string) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exactCalls++
	f.lastExact = text
	if f.err != nil {
		return nil, f.err
	}
	return f.exact, nil
}

func (f *attributeStoreFake) FilterSearch(_ context.Context, filter domain.AttributeFilter) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls++
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.filtered, nil
}

type vectorStoreFake struct {
	mu      sync.Mutex
	results []domain.SearchResult
	err     error
	calls   int
	topK    int
	block   bool
}

func (f *vectorStoreFake) IndexProductChunks(context.Context, []domain.ProductChunk, [][]float32) error {
	return nil
}

func (f *vectorStoreFake) SemanticSearch(ctx context.Context, _ []float32, topK int) ([]domain.SearchResult, error) {
	f.mu.Lock()
	f.calls++
	f.topK = topK
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type queryEmbedderFake struct {
	mu    sync.Mutex
	query string
	err   error
}

func (f *queryEmbedderFake) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }
func (f *queryEmbedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.query = text
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type rerankerFake struct {
	scores func(n int) []float64
	err    error
	calls  int
	texts  []string
}

func (f *rerankerFake) Score(_ context.Context, _ string, candidates []string) ([]float64, error) {
	f.calls++
	f.texts = append([]string(nil), candidates...)
	if f.err != nil {
		return nil, f.err
	}
	return f.scores(len(candidates)), nil
}

type recorderFake struct {
	mu             sync.Mutex
	classified     []domain.ClassificationSource
	lowConfidence  int
	searches       int
	branchFailures []string
}

func (f *recorderFake) RecordClassification(_ domain.QueryType, source domain.ClassificationSource, low bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified = append(f.classified, source)
	if low {
		f.lowConfidence++
	}
}

func (f *recorderFake) RecordSearch(domain.QueryType, domain.SearchResponse, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
}

func (f *recorderFake) RecordBranchFailure(branch string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branchFailures = append(f.branchFailures, branch)
}

var errStoreDown = errors.New("store down")

func floatPtr(v float64) *float64 { return &v }

func semanticResults(n int) []domain.SearchResult {
	out := make([]domain.SearchResult, n)
	for i := range out {
		out[i] = domain.SearchResult{
			ProductID: int64(i + 1),
			SKU:       "SKU-" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Text:      "chunk",
			Score:     1 - float64(i)/100,
		}
	}
	return out
}
