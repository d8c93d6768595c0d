package domain

type ResultOrigin string

const (
	OriginExact    ResultOrigin = "exact"
	OriginFilter   ResultOrigin = "filter"
	OriginSemantic ResultOrigin = "semantic"
	OriginHybrid   ResultOrigin = "hybrid"
)

// SearchResult is one retrieved candidate. Only the rerank step sets RerankScore.
type SearchResult struct {
	ProductID      int64          `json:"product_id,omitempty"`
	SKU            string         `json:"sku,omitempty"`
	ProductName    string         `json:"product_name,omitempty"`
	Score          float64        `json:"score"`
	RerankScore    *float64       `json:"rerank_score,omitempty"`
	Text           string         `json:"text"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	SourceDocument string         `json:"source_document,omitempty"`
	ChunkIndex     int            `json:"chunk_index"`
	Origin         ResultOrigin   `json:"origin"`
	FilterMatch    bool           `json:"filter_match"`
}

type SearchResponse struct {
	Classification QueryClassification `json:"classification"`
	Results        []SearchResult      `json:"results"`
	Warnings       []string            `json:"warnings,omitempty"`
	Degraded       bool                `json:"degraded"`
	Reranked       bool                `json:"reranked"`
	CandidateCount int                 `json:"candidate_count"`
}

type Citation struct {
	ProductName    string `json:"product_name,omitempty"`
	SKU            string `json:"sku,omitempty"`
	SourceDocument string `json:"source_document,omitempty"`
}

type Answer struct {
	Text           string              `json:"text"`
	Language       string              `json:"language,omitempty"`
	Sources        []SearchResult      `json:"sources"`
	Citations      []Citation          `json:"citations"`
	Classification QueryClassification `json:"classification"`
	Warnings       []string            `json:"warnings,omitempty"`
	Degraded       bool                `json:"degraded"`
}

// SearchOptions carries per-request overrides; zero values mean defaults.
type SearchOptions struct {
	TopKCandidates int
	TopKFinal      int
}
