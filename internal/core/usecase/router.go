package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/core/ports"
)

const (
	branchExact    = "exact"
	branchFilter   = "filter"
	branchSemantic = "semantic"
)

type RouterOptions struct {
	BranchTimeout time.Duration
	Logger        *slog.Logger
	Recorder      ports.RetrievalRecorder
}

// SearchRouter dispatches a classified query to the matching stores and
// applies fusion and the rerank gate. Store failures never surface as
// errors; they are reported as warnings or a degraded response.
type SearchRouter struct {
	attributes    ports.AttributeStore
	vectors       ports.VectorStore
	embedder      ports.Embedder
	reranker      ports.Reranker
	branchTimeout time.Duration
	logger        *slog.Logger
	recorder      ports.RetrievalRecorder
}

func NewSearchRouter(
	attributes ports.AttributeStore,
	vectors ports.VectorStore,
	embedder ports.Embedder,
	reranker ports.Reranker,
	opts RouterOptions,
) *SearchRouter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchRouter{
		attributes:    attributes,
		vectors:       vectors,
		embedder:      embedder,
		reranker:      reranker,
		branchTimeout: opts.BranchTimeout,
		logger:        logger,
		recorder:      opts.Recorder,
	}
}

type branchOutcome struct {
	results []domain.SearchResult
	err     error
}

func (r *SearchRouter) Search(
	ctx context.Context,
	cls domain.QueryClassification,
	topKCandidates int,
	topKFinal int,
) domain.SearchResponse {
	started := time.Now()
	resp := domain.SearchResponse{Classification: cls}

	candidates, warnings, degraded := r.dispatch(ctx, cls, topKCandidates)
	candidates = truncateResults(candidates, topKCandidates)
	resp.Warnings = append(resp.Warnings, warnings...)
	resp.Degraded = degraded
	resp.CandidateCount = len(candidates)

	results, reranked, warning := r.rerankGate(ctx, cls.Query, candidates, topKFinal)
	if warning != "" {
		resp.Warnings = append(resp.Warnings, warning)
	}
	resp.Results = results
	resp.Reranked = reranked
	if resp.Results == nil {
		resp.Results = []domain.SearchResult{}
	}

	if resp.Degraded {
		r.logger.Warn("search_degraded", "type", cls.Type, "warnings", resp.Warnings)
	}
	if r.recorder != nil {
		r.recorder.RecordSearch(cls.Type, resp, time.Since(started).Seconds())
	}
	return resp
}

func (r *SearchRouter) dispatch(
	ctx context.Context,
	cls domain.QueryClassification,
	topK int,
) ([]domain.SearchResult, []string, bool) {
	switch cls.Type {
	case domain.QueryExactMatch:
		out := r.runBranch(ctx, branchExact, func(ctx context.Context) ([]domain.SearchResult, error) {
			return r.exactSearch(ctx, cls.ExactTerm())
		})
		return singleBranch(out)
	case domain.QueryAttributeFilter:
		if !cls.HasFilters() {
			return []domain.SearchResult{}, nil, false
		}
		out := r.runBranch(ctx, branchFilter, func(ctx context.Context) ([]domain.SearchResult, error) {
			return r.filterSearch(ctx, *cls.Filters)
		})
		return singleBranch(out)
	case domain.QueryHybrid:
		return r.hybrid(ctx, cls, topK)
	default:
		out := r.runBranch(ctx, branchSemantic, func(ctx context.Context) ([]domain.SearchResult, error) {
			return r.semanticSearch(ctx, cls.Query, topK)
		})
		return singleBranch(out)
	}
}

func (r *SearchRouter) hybrid(
	ctx context.Context,
	cls domain.QueryClassification,
	topK int,
) ([]domain.SearchResult, []string, bool) {
	// Branch failures are carried in branchOutcome, not returned to the
	// group, so one failing store never cancels the other branch.
	var (
		g        errgroup.Group
		semantic branchOutcome
		filtered branchOutcome
	)

	g.Go(func() error {
		semantic = r.runBranch(ctx, branchSemantic, func(ctx context.Context) ([]domain.SearchResult, error) {
			return r.semanticSearch(ctx, cls.Query, topK)
		})
		return nil
	})
	filterRan := cls.HasFilters()
	if filterRan {
		g.Go(func() error {
			filtered = r.runBranch(ctx, branchFilter, func(ctx context.Context) ([]domain.SearchResult, error) {
				return r.filterSearch(ctx, *cls.Filters)
			})
			return nil
		})
	}
	_ = g.Wait()

	var warnings []string
	if semantic.err != nil {
		warnings = append(warnings, semantic.err.Error())
	}
	if filtered.err != nil {
		warnings = append(warnings, filtered.err.Error())
	}
	allFailed := semantic.err != nil && (!filterRan || filtered.err != nil)
	if allFailed {
		return []domain.SearchResult{}, warnings, true
	}
	return fuseHybrid(semantic.results, filtered.results, topK), warnings, false
}

func (r *SearchRouter) runBranch(
	ctx context.Context,
	branch string,
	fn func(context.Context) ([]domain.SearchResult, error),
) branchOutcome {
	branchCtx := ctx
	if r.branchTimeout > 0 {
		var cancel context.CancelFunc
		branchCtx, cancel = context.WithTimeout(ctx, r.branchTimeout)
		defer cancel()
	}

	results, err := fn(branchCtx)
	if err == nil && branchCtx.Err() != nil {
		err = branchCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out: %w", err)
		}
		r.logger.Warn("search_branch_failed", "branch", branch, "error", err)
		if r.recorder != nil {
			r.recorder.RecordBranchFailure(branch)
		}
		return branchOutcome{err: fmt.Errorf("%s search failed: %w", branch, err)}
	}
	return branchOutcome{results: results}
}

func singleBranch(out branchOutcome) ([]domain.SearchResult, []string, bool) {
	if out.err != nil {
		return []domain.SearchResult{}, []string{out.err.Error()}, true
	}
	return out.results, nil, false
}

func (r *SearchRouter) exactSearch(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if r.attributes == nil {
		return nil, errors.New("attribute store is not configured")
	}
	results, err := r.attributes.ExactSearch(ctx, query)
	if err != nil {
		return nil, err
	}
	return withOrigin(results, domain.OriginExact, false), nil
}

func (r *SearchRouter) filterSearch(ctx context.Context, filter domain.AttributeFilter) ([]domain.SearchResult, error) {
	if r.attributes == nil {
		return nil, errors.New("attribute store is not configured")
	}
	results, err := r.attributes.FilterSearch(ctx, filter)
	if err != nil {
		return nil, err
	}
	return withOrigin(results, domain.OriginFilter, true), nil
}

func (r *SearchRouter) semanticSearch(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if r.embedder == nil || r.vectors == nil {
		return nil, errors.New("vector search is not configured")
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.vectors.SemanticSearch(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	return withOrigin(results, domain.OriginSemantic, false), nil
}

func withOrigin(results []domain.SearchResult, origin domain.ResultOrigin, filterMatch bool) []domain.SearchResult {
	out := make([]domain.SearchResult, len(results))
	for i, res := range results {
		res.Origin = origin
		res.FilterMatch = filterMatch
		out[i] = res
	}
	return out
}

func truncateResults(results []domain.SearchResult, limit int) []domain.SearchResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
