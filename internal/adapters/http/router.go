package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/datasheet-rag/internal/config"
	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/core/ports"
	"github.com/kirillkom/datasheet-rag/internal/observability/metrics"
)

const defaultMaxUploadBytes = 32 << 20

type Router struct {
	ingest   ports.DatasheetIngestor
	query    ports.QueryService
	docs     ports.DocumentReader
	products ports.ProductReader
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger

	chatModelID      string
	chatAPIKey       string
	streamChunkChars int
	maxUploadBytes   int64
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
}

func NewRouter(
	cfg config.Config,
	ingest ports.DatasheetIngestor,
	query ports.QueryService,
	docs ports.DocumentReader,
	products ports.ProductReader,
) *Router {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	modelID := strings.TrimSpace(cfg.ChatModelID)
	if modelID == "" {
		modelID = "datasheet-rag-v1"
	}
	return &Router{
		ingest:           ingest,
		query:            query,
		docs:             docs,
		products:         products,
		logger:           slog.Default(),
		chatModelID:      modelID,
		chatAPIKey:       strings.TrimSpace(cfg.ChatAPIKey),
		streamChunkChars: cfg.ChatStreamChunkChars,
		maxUploadBytes:   maxUpload,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) WithLogger(logger *slog.Logger) *Router {
	if logger != nil {
		rt.logger = logger
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/datasheets", rt.uploadDatasheet)
	mux.HandleFunc("GET /v1/datasheets/{id}", rt.getDatasheet)
	mux.HandleFunc("GET /v1/products/{id}", rt.getProduct)
	mux.HandleFunc("POST /v1/query/classify", rt.classifyQuery)
	mux.HandleFunc("POST /v1/search", rt.search)
	mux.HandleFunc("POST /v1/answer", rt.answer)
	mux.HandleFunc("GET /v1/models", rt.listModels)
	mux.HandleFunc("POST /v1/chat/completions", rt.chatCompletions)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDatasheet(w http.ResponseWriter, r *http.Request) {
	if rt.ingest == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ingestion is not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "datasheet exceeds upload limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDatasheet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "product id must be a positive integer"})
		return
	}

	product, err := rt.products.GetProductByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

type queryRequest struct {
	Query          string `json:"query"`
	TopKCandidates int    `json:"top_k_candidates"`
	TopKFinal      int    `json:"top_k_final"`
}

func (q queryRequest) options() domain.SearchOptions {
	return domain.SearchOptions{TopKCandidates: q.TopKCandidates, TopKFinal: q.TopKFinal}
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return req, false
	}
	if req.TopKCandidates < 0 || req.TopKFinal < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top_k values must not be negative"})
		return req, false
	}
	return req, true
}

func (rt *Router) classifyQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}
	classification, err := rt.query.Classify(r.Context(), req.Query)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classification)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}
	resp, err := rt.query.Search(r.Context(), req.Query, req.options())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}
	answer, err := rt.query.Answer(r.Context(), req.Query, req.options())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
