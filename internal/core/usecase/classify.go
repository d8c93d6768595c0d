package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/core/ports"
)

const (
	fallbackConfidence       = 0.5
	identifierRuleConfidence = 0.95
	defaultLowConfidence     = 0.6
)

var (
	identifierMarkerPattern = regexp.MustCompile(`(?i)^(sku|ean|gtin|art\.?\s*-?\s*nr\.?|artikelnummer|item\s+no\.?|product\s+number)\s*[:#]?\s*`)
	digitsIdentifierPattern = regexp.MustCompile(`^\d{8,14}$`)
	codeIdentifierPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-./]{2,}$`)
)

type ClassifierOptions struct {
	Timeout                time.Duration
	LowConfidenceThreshold float64
	Logger                 *slog.Logger
	Recorder               ports.RetrievalRecorder
}

// QueryClassifier decides how a query is routed. It never fails: any
// problem with the model yields a SEMANTIC fallback.
type QueryClassifier struct {
	model         ports.QueryClassificationModel
	timeout       time.Duration
	lowConfidence float64
	logger        *slog.Logger
	recorder      ports.RetrievalRecorder
}

func NewQueryClassifier(model ports.QueryClassificationModel, opts ClassifierOptions) *QueryClassifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := opts.LowConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultLowConfidence
	}
	return &QueryClassifier{
		model:         model,
		timeout:       opts.Timeout,
		lowConfidence: threshold,
		logger:        logger,
		recorder:      opts.Recorder,
	}
}

func (c *QueryClassifier) Classify(ctx context.Context, query string) domain.QueryClassification {
	cls := c.classify(ctx, query)
	low := cls.Confidence < c.lowConfidence
	if low {
		c.logger.Info("query_classification_low_confidence",
			"type", cls.Type,
			"confidence", cls.Confidence,
			"source", cls.Source,
		)
	}
	if c.recorder != nil {
		c.recorder.RecordClassification(cls.Type, cls.Source, low)
	}
	return cls
}

func (c *QueryClassifier) classify(ctx context.Context, query string) domain.QueryClassification {
	if id, ok := identifierFromQuery(query); ok {
		return domain.QueryClassification{
			Query:      query,
			Type:       domain.QueryExactMatch,
			Confidence: identifierRuleConfidence,
			Keywords:   ExtractKeywords(query),
			Identifier: id,
			Source:     domain.SourceIdentifierRule,
		}
	}
	if c.model == nil {
		return fallbackClassification(query, errors.New("classification model is not configured"))
	}

	modelCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		modelCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.model.ClassifyQuery(modelCtx, query)
	if err != nil {
		c.logger.Warn("query_classification_model_failed", "error", err)
		return fallbackClassification(query, fmt.Errorf("model call: %w", err))
	}

	cls, err := parseClassification(raw, query)
	if err != nil {
		c.logger.Warn("query_classification_parse_failed", "error", err)
		return fallbackClassification(query, err)
	}
	if cls.Type == domain.QueryExactMatch {
		cls.Identifier = markedIdentifier(query)
	}
	return cls
}

func fallbackClassification(query string, reason error) domain.QueryClassification {
	cls := domain.QueryClassification{
		Query:      query,
		Type:       domain.QuerySemantic,
		Confidence: fallbackConfidence,
		Keywords:   ExtractKeywords(query),
		Source:     domain.SourceFallback,
	}
	if reason != nil {
		cls.FallbackReason = reason.Error()
	}
	return cls
}

// identifierFromQuery matches a bare EAN-like digit run, or any code
// introduced by an explicit identifier marker such as "SKU:". It returns
// the identifier without the marker.
func identifierFromQuery(query string) (string, bool) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", false
	}
	if digitsIdentifierPattern.MatchString(trimmed) {
		return trimmed, true
	}
	rest, ok := afterMarker(trimmed)
	if !ok || strings.ContainsAny(rest, " \t") {
		return "", false
	}
	if !codeIdentifierPattern.MatchString(rest) || !strings.ContainsAny(rest, "0123456789") {
		return "", false
	}
	return rest, true
}

// markedIdentifier strips a leading identifier marker from a model-routed
// exact query. It returns "" when there is no single marked token.
func markedIdentifier(query string) string {
	rest, ok := afterMarker(strings.TrimSpace(query))
	if !ok || rest == "" || strings.ContainsAny(rest, " \t") {
		return ""
	}
	return rest
}

// afterMarker returns the text following a leading identifier marker. A
// marker glued to further letters or digits ("skull") does not count.
func afterMarker(s string) (string, bool) {
	loc := identifierMarkerPattern.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	if loc[1] < len(s) && isWordByte(s[loc[1]-1]) && isWordByte(s[loc[1]]) {
		return "", false
	}
	return strings.TrimSpace(s[loc[1]:]), true
}

func isWordByte(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

type classificationDTO struct {
	Type       *string          `json:"type"`
	Confidence *float64         `json:"confidence"`
	Filters    *json.RawMessage `json:"filters"`
	Keywords   []string         `json:"keywords"`
}

// parseClassification validates raw model output. It accepts a bare JSON
// object or one wrapped in prose or a fenced block.
func parseClassification(raw, query string) (domain.QueryClassification, error) {
	payload, err := extractJSONObject(raw)
	if err != nil {
		return domain.QueryClassification{}, err
	}

	var dto classificationDTO
	if err := json.Unmarshal([]byte(payload), &dto); err != nil {
		return domain.QueryClassification{}, fmt.Errorf("decode classification: %w", err)
	}
	if dto.Type == nil {
		return domain.QueryClassification{}, errors.New("classification is missing type")
	}
	queryType, ok := domain.ParseQueryType(*dto.Type)
	if !ok {
		return domain.QueryClassification{}, fmt.Errorf("unknown query type %q", *dto.Type)
	}
	if dto.Confidence == nil {
		return domain.QueryClassification{}, errors.New("classification is missing confidence")
	}
	confidence := *dto.Confidence
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 || confidence > 1 {
		return domain.QueryClassification{}, fmt.Errorf("confidence %v out of range", confidence)
	}

	cls := domain.QueryClassification{
		Query:      query,
		Type:       queryType,
		Confidence: confidence,
		Source:     domain.SourceModel,
	}

	if queryType.AcceptsFilters() && dto.Filters != nil && string(*dto.Filters) != "null" {
		filter, err := decodeFilter(*dto.Filters)
		if err != nil {
			return domain.QueryClassification{}, err
		}
		if !filter.IsEmpty() {
			cls.Filters = &filter
		}
	}

	cls.Keywords = normalizeKeywords(dto.Keywords)
	if len(cls.Keywords) == 0 {
		cls.Keywords = ExtractKeywords(query)
	}
	return cls, nil
}

func decodeFilter(raw json.RawMessage) (domain.AttributeFilter, error) {
	var filter domain.AttributeFilter
	if err := json.Unmarshal(raw, &filter); err != nil {
		return domain.AttributeFilter{}, fmt.Errorf("decode filters: %w", err)
	}

	for name, v := range map[string]*float64{
		"min_power":          filter.MinPower,
		"max_power":          filter.MaxPower,
		"min_lifetime_hours": filter.MinLifetimeHours,
		"max_lifetime_hours": filter.MaxLifetimeHours,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return domain.AttributeFilter{}, fmt.Errorf("filter %s has invalid value %v", name, *v)
		}
	}
	if filter.MinPower != nil && filter.MaxPower != nil && *filter.MinPower > *filter.MaxPower {
		return domain.AttributeFilter{}, errors.New("filter min_power exceeds max_power")
	}
	if filter.MinLifetimeHours != nil && filter.MaxLifetimeHours != nil && *filter.MinLifetimeHours > *filter.MaxLifetimeHours {
		return domain.AttributeFilter{}, errors.New("filter min_lifetime_hours exceeds max_lifetime_hours")
	}

	filter.ColorTemperature = strings.TrimSpace(filter.ColorTemperature)
	filter.ApplicationArea = strings.TrimSpace(filter.ApplicationArea)
	filter.IPRating = strings.ToUpper(strings.TrimSpace(filter.IPRating))

	certs := make([]string, 0, len(filter.Certifications))
	seen := make(map[string]struct{}, len(filter.Certifications))
	for _, cert := range filter.Certifications {
		cert = strings.ToUpper(strings.TrimSpace(cert))
		if cert == "" {
			continue
		}
		if _, dup := seen[cert]; dup {
			continue
		}
		seen[cert] = struct{}{}
		certs = append(certs, cert)
	}
	filter.Certifications = nil
	if len(certs) > 0 {
		filter.Certifications = certs
	}
	return filter, nil
}

func extractJSONObject(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("empty classification output")
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errors.New("classification output has no json object")
	}
	return s[start : end+1], nil
}
