package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/resilience"
)

// pointNamespace seeds deterministic point ids so re-ingesting a datasheet
// overwrites the same points.
var pointNamespace = uuid.MustParse("6f1c3a52-8d7e-4c1b-9a0f-2b5d7e9c4a11")

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithResilience routes every request through the executor under
// "qdrant.<operation>" names.
func (c *Client) WithResilience(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

func PointID(sku string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s#%d", strings.ToLower(sku), chunkIndex))).String()
}

func (c *Client) IndexProductChunks(ctx context.Context, chunks []domain.ProductChunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	skus := make([]string, 0)
	seen := map[string]struct{}{}
	for _, ch := range chunks {
		if _, ok := seen[ch.SKU]; ok || ch.SKU == "" {
			continue
		}
		seen[ch.SKU] = struct{}{}
		skus = append(skus, ch.SKU)
	}
	if err := c.deleteBySKU(ctx, skus); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, ch := range chunks {
		points = append(points, point{
			ID:     PointID(ch.SKU, ch.ChunkIndex),
			Vector: vectors[i],
			Payload: map[string]any{
				"product_id":      ch.ProductID,
				"sku":             ch.SKU,
				"product_name":    ch.ProductName,
				"source_document": ch.SourceDocument,
				"chunk_index":     ch.ChunkIndex,
				"text":            ch.Text,
				"attributes":      ch.Attributes,
			},
		})
	}

	path := "/collections/" + c.collection + "/points?wait=true"
	return c.doJSON(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

func (c *Client) deleteBySKU(ctx context.Context, skus []string) error {
	if len(skus) == 0 {
		return nil
	}
	should := make([]map[string]any, 0, len(skus))
	for _, sku := range skus {
		should = append(should, map[string]any{
			"key":   "sku",
			"match": map[string]any{"value": sku},
		})
	}
	reqBody := map[string]any{"filter": map[string]any{"should": should}}

	return c.doJSON(ctx, "delete_stale", http.MethodPost, "/collections/"+c.collection+"/points/delete?wait=true", reqBody, nil)
}

// SemanticSearch returns the topK most similar chunks. Cosine scores are
// clamped to [0,1].
func (c *Client) SemanticSearch(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 20
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.doJSON(ctx, "search", http.MethodPost, "/collections/"+c.collection+"/points/search", reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.SearchResult, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.SearchResult{
			ProductID:      int64(getNumberPayload(r.Payload, "product_id")),
			SKU:            getStringPayload(r.Payload, "sku"),
			ProductName:    getStringPayload(r.Payload, "product_name"),
			Score:          clampScore(r.Score),
			Text:           getStringPayload(r.Payload, "text"),
			Attributes:     getMapPayload(r.Payload, "attributes"),
			SourceDocument: getStringPayload(r.Payload, "source_document"),
			ChunkIndex:     int(getNumberPayload(r.Payload, "chunk_index")),
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	done := c.ensuredCollection && c.ensuredVectorSize == vectorSize
	c.ensureMu.Unlock()
	if done {
		return nil
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.doJSON(ctx, "ensure_collection", http.MethodPut, "/collections/"+c.collection, reqBody, nil)
	var statusErr *resilience.HTTPStatusError
	// 409: the collection already exists.
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal qdrant %s body: %w", operation, err)
	}
	err = c.executor.Execute(ctx, "qdrant."+operation, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create qdrant %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &resilience.HTTPStatusError{
				Service:    "qdrant",
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       strings.TrimSpace(string(msg)),
			}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant %s response: %w", operation, err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("qdrant "+operation, err)
}

func clampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getNumberPayload(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func getMapPayload(payload map[string]any, key string) map[string]any {
	m, _ := payload[key].(map[string]any)
	return m
}
