package crossencoder

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/resilience"
)

func TestScoreMapsIndexesBackToInputOrder(t *testing.T) {
	var got rerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`[{"index":2,"score":0.9},{"index":0,"score":0.5},{"index":1,"score":0.1}]`))
	}))
	defer server.Close()

	scores, err := New(server.URL+"/", Options{Model: "bge-reranker"}).Score(context.Background(), "stage lamp", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scores[0] != 0.5 || scores[1] != 0.1 || scores[2] != 0.9 {
		t.Fatalf("unexpected scores %v", scores)
	}
	if got.Query != "stage lamp" || len(got.Texts) != 3 || got.Model != "bge-reranker" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestScoresInOrderSquashesLogits(t *testing.T) {
	scores, err := scoresInOrder([]rerankItem{{Index: 0, Score: 0}, {Index: 1, Score: 4}}, 2)
	if err != nil {
		t.Fatalf("scoresInOrder() error = %v", err)
	}
	if scores[0] != 0.5 || math.Abs(scores[1]-0.982) > 0.001 {
		t.Fatalf("unexpected sigmoid scores %v", scores)
	}
}

func TestScoresInOrderRejectsBadResponses(t *testing.T) {
	if _, err := scoresInOrder([]rerankItem{{Index: 0, Score: 1}}, 2); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	if _, err := scoresInOrder([]rerankItem{{Index: 0}, {Index: 0}}, 2); err == nil {
		t.Fatalf("expected duplicate index error")
	}
	if _, err := scoresInOrder([]rerankItem{{Index: 0}, {Index: 5}}, 2); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestScoreRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"index":0,"score":0.7}]`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	scores, err := New(server.URL, Options{Executor: exec}).Score(context.Background(), "q", []string{"a"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if calls.Load() != 2 || scores[0] != 0.7 {
		t.Fatalf("expected retry then success, calls=%d scores=%v", calls.Load(), scores)
	}
}

func TestScoreBadRequestIsNotTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := New(server.URL, Options{}).Score(context.Background(), "q", []string{"a"})
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected non-temporary error, got %v", err)
	}
}
