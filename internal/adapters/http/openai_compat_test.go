package httpadapter

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/datasheet-rag/internal/config"
	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

func newChatHandler(cfg config.Config, query *queryFake) http.Handler {
	return NewRouter(cfg, nil, query, docsErrFake{}, productsFake{}).Handler()
}

func TestListModelsReturnsConfiguredModel(t *testing.T) {
	handler := newChatHandler(config.Config{ChatModelID: "lamps-v2"}, &queryFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var resp modelList
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Object != "list" || len(resp.Data) != 1 || resp.Data[0].ID != "lamps-v2" {
		t.Fatalf("unexpected models %+v", resp)
	}
}

func TestChatCompletionsRequiresBearerWhenConfigured(t *testing.T) {
	handler := newChatHandler(config.Config{ChatAPIKey: "secret"}, &queryFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer secret")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", res.Code)
	}
}

func TestChatCompletionsAnswersLatestUserMessage(t *testing.T) {
	query := &queryFake{answer: &domain.Answer{
		Text:           "The XBO 3000 W/HS draws 3000 W.",
		Classification: domain.QueryClassification{Type: domain.QueryExactMatch},
		Citations: []domain.Citation{
			{ProductName: "XBO 3000 W/HS", SKU: "4008321", SourceDocument: "xbo.pdf"},
			{ProductName: "XBO 3000 W/HS", SKU: "4008321", SourceDocument: "xbo.pdf"},
		},
	}}
	handler := newChatHandler(config.Config{}, query)

	res := postJSON(t, handler, "/v1/chat/completions", map[string]any{
		"model": "datasheet-rag-v1",
		"messages": []map[string]any{
			{"role": "user", "content": "old question"},
			{"role": "assistant", "content": "old answer"},
			{"role": "user", "content": []map[string]any{{"type": "text", "text": "power of 4008321?"}}},
		},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if query.lastText != "power of 4008321?" {
		t.Fatalf("expected latest user message, got %q", query.lastText)
	}
	if res.Header().Get("X-Query-Type") != string(domain.QueryExactMatch) {
		t.Fatalf("expected query type header, got %q", res.Header().Get("X-Query-Type"))
	}

	var resp openai.ChatCompletionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected one choice, got %+v", resp)
	}
	content := resp.Choices[0].Message.Content
	if !strings.HasPrefix(content, "The XBO 3000 W/HS draws 3000 W.") {
		t.Fatalf("unexpected content %q", content)
	}
	if strings.Count(content, "4008321") != 1 || !strings.Contains(content, "xbo.pdf") {
		t.Fatalf("expected one deduplicated citation, got %q", content)
	}
	if resp.Choices[0].FinishReason != openai.FinishReasonStop {
		t.Fatalf("unexpected finish reason %q", resp.Choices[0].FinishReason)
	}
}

func TestChatCompletionsRejectsUnknownModel(t *testing.T) {
	handler := newChatHandler(config.Config{}, &queryFake{})

	res := postJSON(t, handler, "/v1/chat/completions", map[string]any{
		"model":    "gpt-4",
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestChatCompletionsRequiresUserMessage(t *testing.T) {
	handler := newChatHandler(config.Config{}, &queryFake{})

	res := postJSON(t, handler, "/v1/chat/completions", map[string]any{
		"messages": []map[string]any{{"role": "system", "content": "be brief"}},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestChatCompletionsStreamsChunks(t *testing.T) {
	query := &queryFake{answer: &domain.Answer{Text: "abcdefghij"}}
	handler := newChatHandler(config.Config{ChatStreamChunkChars: 4}, query)

	res := postJSON(t, handler, "/v1/chat/completions", map[string]any{
		"stream":   true,
		"messages": []map[string]any{{"role": "user", "content": "stage lamps"}},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	var events []string
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	// 3 content chunks, 1 finish chunk, [DONE]
	if len(events) != 5 || events[4] != "[DONE]" {
		t.Fatalf("unexpected events %v", events)
	}

	var text strings.Builder
	for i, raw := range events[:4] {
		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			t.Fatalf("decode chunk %d: %v", i, err)
		}
		if i == 0 && chunk.Choices[0].Delta.Role != openai.ChatMessageRoleAssistant {
			t.Fatalf("expected role on first chunk, got %+v", chunk.Choices[0].Delta)
		}
		text.WriteString(chunk.Choices[0].Delta.Content)
	}
	if text.String() != "abcdefghij" {
		t.Fatalf("expected reassembled text, got %q", text.String())
	}
}

func TestSplitByRunesKeepsMultibyteCharacters(t *testing.T) {
	parts := splitByRunes("Lampe für Bühne", 5)
	if strings.Join(parts, "") != "Lampe für Bühne" {
		t.Fatalf("unexpected split %q", parts)
	}
	for _, p := range parts {
		if len([]rune(p)) > 5 {
			t.Fatalf("part %q exceeds 5 runes", p)
		}
	}
}
