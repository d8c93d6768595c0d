package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

const namespace = "dsrag"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	classificationsTotal *prometheus.CounterVec
	lowConfidenceTotal   *prometheus.CounterVec
	searchTotal          *prometheus.CounterVec
	searchDuration       *prometheus.HistogramVec
	searchResults        *prometheus.HistogramVec
	branchFailuresTotal  *prometheus.CounterVec
	degradedTotal        *prometheus.CounterVec
	rerankTotal          *prometheus.CounterVec
	embeddingCacheTotal  *prometheus.CounterVec
	breakerState         *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	classificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "classifications_total",
			Help:      "Query classifications by type and source.",
		},
		[]string{"service", "type", "source"},
	)
	lowConfidenceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "low_confidence_total",
			Help:      "Classifications below the low-confidence threshold.",
		},
		[]string{"service", "type"},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Routed searches by query type.",
		},
		[]string{"service", "type"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Routed search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "type"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of results returned per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "type"},
	)
	branchFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "branch_failures_total",
			Help:      "Failed retrieval branches.",
		},
		[]string{"service", "branch"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "degraded_total",
			Help:      "Searches where every branch failed.",
		},
		[]string{"service", "type"},
	)
	rerankTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "rerank_total",
			Help:      "Searches whose candidates were reranked.",
		},
		[]string{"service", "type"},
	)
	embeddingCacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "embedding",
			Name:        "cache_total",
			Help:        "Embedding cache lookups by result.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"result"},
	)

	breakerState := newBreakerStateGauge(service)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		classificationsTotal,
		lowConfidenceTotal,
		searchTotal,
		searchDuration,
		searchResults,
		branchFailuresTotal,
		degradedTotal,
		rerankTotal,
		embeddingCacheTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		service:              service,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		classificationsTotal: classificationsTotal,
		lowConfidenceTotal:   lowConfidenceTotal,
		searchTotal:          searchTotal,
		searchDuration:       searchDuration,
		searchResults:        searchResults,
		branchFailuresTotal:  branchFailuresTotal,
		degradedTotal:        degradedTotal,
		rerankTotal:          rerankTotal,
		embeddingCacheTotal:  embeddingCacheTotal,
		breakerState:         breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *HTTPServerMetrics) ObserveBreakerState(operation, state string) {
	m.breakerState.WithLabelValues(operation).Set(breakerStateValue(state))
}

// EmbeddingCacheCounter is handed to the embedding cache decorator.
func (m *HTTPServerMetrics) EmbeddingCacheCounter() *prometheus.CounterVec {
	return m.embeddingCacheTotal
}

// Middleware reads the route label from the pattern the ServeMux records on
// the request, so wrappers below it must pass the same *http.Request on.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		m.requestTotal.WithLabelValues(m.service, r.Method, route, strconv.Itoa(rec.statusCode)).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel keeps label cardinality bounded: unmatched paths share one
// value and matched paths use their registered pattern without the method.
func routeLabel(r *http.Request) string {
	pattern := r.Pattern
	if pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

func (m *HTTPServerMetrics) RecordClassification(queryType domain.QueryType, source domain.ClassificationSource, lowConfidence bool) {
	m.classificationsTotal.WithLabelValues(m.service, string(queryType), string(source)).Inc()
	if lowConfidence {
		m.lowConfidenceTotal.WithLabelValues(m.service, string(queryType)).Inc()
	}
}

func (m *HTTPServerMetrics) RecordSearch(queryType domain.QueryType, resp domain.SearchResponse, seconds float64) {
	t := string(queryType)
	if t == "" {
		t = "unknown"
	}
	m.searchTotal.WithLabelValues(m.service, t).Inc()
	m.searchDuration.WithLabelValues(m.service, t).Observe(seconds)
	m.searchResults.WithLabelValues(m.service, t).Observe(float64(len(resp.Results)))
	if resp.Degraded {
		m.degradedTotal.WithLabelValues(m.service, t).Inc()
	}
	if resp.Reranked {
		m.rerankTotal.WithLabelValues(m.service, t).Inc()
	}
}

func (m *HTTPServerMetrics) RecordBranchFailure(branch string) {
	if branch == "" {
		branch = "unknown"
	}
	m.branchFailuresTotal.WithLabelValues(m.service, branch).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
