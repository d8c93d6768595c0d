// Package crossencoder calls a text-embeddings-inference style /rerank
// endpoint hosting a cross-encoder model.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/datasheet-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	maxTextLen int
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Model      string
	MaxTextLen int
	Timeout    time.Duration
	Executor   *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxTextLen := opts.MaxTextLen
	if maxTextLen <= 0 {
		maxTextLen = 2000
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      opts.Model,
		maxTextLen: maxTextLen,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

type rerankRequest struct {
	Model    string   `json:"model,omitempty"`
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

type rerankItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one relevance score per candidate in input order, in [0,1].
func (c *Client) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	texts := make([]string, len(candidates))
	for i, text := range candidates {
		texts[i] = clip(text, c.maxTextLen)
	}
	payload, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Texts: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	items, err := resilience.Call(ctx, c.executor, "reranker.rerank", func(ctx context.Context) ([]rerankItem, error) {
		return c.post(ctx, payload)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("reranker rerank", err)
	}
	return scoresInOrder(items, len(candidates))
}

func (c *Client) post(ctx context.Context, payload []byte) ([]rerankItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{
			Service:    "reranker",
			Operation:  "rerank",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	var items []rerankItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return items, nil
}

// scoresInOrder maps index-tagged scores back to input order. Raw logits
// are squashed with a sigmoid so every score lands in [0,1].
func scoresInOrder(items []rerankItem, n int) ([]float64, error) {
	if len(items) != n {
		return nil, fmt.Errorf("reranker returned %d scores for %d texts", len(items), n)
	}
	scores := make([]float64, n)
	filled := make([]bool, n)
	needsSigmoid := false
	for _, item := range items {
		if item.Index < 0 || item.Index >= n || filled[item.Index] {
			return nil, fmt.Errorf("reranker returned invalid index %d", item.Index)
		}
		scores[item.Index] = item.Score
		filled[item.Index] = true
		if item.Score < 0 || item.Score > 1 {
			needsSigmoid = true
		}
	}
	if needsSigmoid {
		for i, s := range scores {
			scores[i] = 1 / (1 + math.Exp(-s))
		}
	}
	return scores, nil
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
