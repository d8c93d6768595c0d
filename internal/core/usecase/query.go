package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/core/ports"
)

const noInformationAnswer = "No matching product information was found in the indexed datasheets."

type QueryConfig struct {
	TopKCandidates int
	TopKFinal      int
	MaxQueryChars  int
	Timeout        time.Duration
}

func (c QueryConfig) normalize() QueryConfig {
	if c.TopKCandidates <= 0 {
		c.TopKCandidates = 20
	}
	if c.TopKFinal <= 0 {
		c.TopKFinal = 5
	}
	if c.MaxQueryChars <= 0 {
		c.MaxQueryChars = 2000
	}
	return c
}

// QueryUseCase runs validate, translate, classify, search and answer.
type QueryUseCase struct {
	classifier *QueryClassifier
	router     *SearchRouter
	translator ports.Translator
	generator  ports.AnswerGenerator
	cfg        QueryConfig
	logger     *slog.Logger
}

func NewQueryUseCase(
	classifier *QueryClassifier,
	router *SearchRouter,
	translator ports.Translator,
	generator ports.AnswerGenerator,
	cfg QueryConfig,
	logger *slog.Logger,
) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		classifier: classifier,
		router:     router,
		translator: translator,
		generator:  generator,
		cfg:        cfg.normalize(),
		logger:     logger,
	}
}

func (uc *QueryUseCase) Classify(ctx context.Context, query string) (domain.QueryClassification, error) {
	query, err := uc.validate(query)
	if err != nil {
		return domain.QueryClassification{}, err
	}
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	working, _, _ := uc.toWorking(ctx, query)
	return uc.classifier.Classify(ctx, working), nil
}

func (uc *QueryUseCase) Search(ctx context.Context, query string, opts domain.SearchOptions) (domain.SearchResponse, error) {
	query, err := uc.validate(query)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	working, _, warning := uc.toWorking(ctx, query)
	resp := uc.search(ctx, working, opts)
	if warning != "" {
		resp.Warnings = append([]string{warning}, resp.Warnings...)
	}
	return resp, nil
}

func (uc *QueryUseCase) Answer(ctx context.Context, query string, opts domain.SearchOptions) (*domain.Answer, error) {
	query, err := uc.validate(query)
	if err != nil {
		return nil, err
	}
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	working, language, warning := uc.toWorking(ctx, query)
	resp := uc.search(ctx, working, opts)
	warnings := resp.Warnings
	if warning != "" {
		warnings = append([]string{warning}, warnings...)
	}

	text := noInformationAnswer
	if len(resp.Results) > 0 {
		if uc.generator == nil {
			return nil, errors.New("answer generator is not configured")
		}
		text, err = uc.generator.GenerateAnswer(ctx, working, resp.Results)
		if err != nil {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
	}

	if uc.translator != nil && language != "" {
		translated, err := uc.translator.FromWorking(ctx, text, language)
		if err != nil {
			uc.logger.Warn("answer_translation_failed", "language", language, "error", err)
			warnings = append(warnings, fmt.Sprintf("answer translation failed: %v", err))
		} else {
			text = translated
		}
	}

	return &domain.Answer{
		Text:           text,
		Language:       language,
		Sources:        resp.Results,
		Citations:      citationsFor(resp.Results),
		Classification: resp.Classification,
		Warnings:       warnings,
		Degraded:       resp.Degraded,
	}, nil
}

func (uc *QueryUseCase) search(ctx context.Context, query string, opts domain.SearchOptions) domain.SearchResponse {
	topKCandidates := uc.cfg.TopKCandidates
	if opts.TopKCandidates > 0 {
		topKCandidates = opts.TopKCandidates
	}
	topKFinal := uc.cfg.TopKFinal
	if opts.TopKFinal > 0 {
		topKFinal = opts.TopKFinal
	}

	cls := uc.classifier.Classify(ctx, query)
	return uc.router.Search(ctx, cls, topKCandidates, topKFinal)
}

func (uc *QueryUseCase) validate(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate query", errors.New("query is empty"))
	}
	if utf8.RuneCountInString(query) > uc.cfg.MaxQueryChars {
		return "", domain.WrapError(
			domain.ErrInvalidInput,
			"validate query",
			fmt.Errorf("query exceeds %d characters", uc.cfg.MaxQueryChars),
		)
	}
	return query, nil
}

// toWorking translates the query to the working language. A failed
// translation falls back to the original text.
func (uc *QueryUseCase) toWorking(ctx context.Context, query string) (string, string, string) {
	if uc.translator == nil {
		return query, "", ""
	}
	translated, language, err := uc.translator.ToWorking(ctx, query)
	if err != nil {
		uc.logger.Warn("query_translation_failed", "error", err)
		return query, "", fmt.Sprintf("query translation failed: %v", err)
	}
	if strings.TrimSpace(translated) == "" {
		return query, language, ""
	}
	return translated, language, ""
}

func (uc *QueryUseCase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, uc.cfg.Timeout)
}

func citationsFor(results []domain.SearchResult) []domain.Citation {
	out := make([]domain.Citation, 0, len(results))
	seen := make(map[domain.Citation]struct{}, len(results))
	for _, res := range results {
		c := domain.Citation{
			ProductName:    res.ProductName,
			SKU:            res.SKU,
			SourceDocument: res.SourceDocument,
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
