package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

type modelList struct {
	Object string         `json:"object"`
	Data   []openai.Model `json:"data"`
}

func (rt *Router) listModels(w http.ResponseWriter, r *http.Request) {
	if !rt.chatAuthorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, modelList{
		Object: "list",
		Data: []openai.Model{{
			ID:      rt.chatModelID,
			Object:  "model",
			OwnedBy: "datasheet-rag",
		}},
	})
}

func (rt *Router) chatCompletions(w http.ResponseWriter, r *http.Request) {
	if !rt.chatAuthorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Model != "" && req.Model != rt.chatModelID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown model %q", req.Model)})
		return
	}
	question, ok := latestUserMessageContent(req.Messages)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one user message with text content is required"})
		return
	}

	answer, err := rt.query.Answer(r.Context(), question, domain.SearchOptions{})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	completionID := newCompletionID()
	created := time.Now().Unix()
	text := answerWithCitations(answer)
	w.Header().Set("X-Query-Type", string(answer.Classification.Type))

	if req.Stream {
		chunks := buildTextStreamChunks(completionID, created, rt.chatModelID, text, rt.streamChunkChars)
		if err := writeSSE(w, r, chunks); err != nil {
			rt.logger.Warn("chat_stream_write_failed",
				"request_id", requestIDFromContext(r.Context()),
				"error", err,
			)
		}
		return
	}

	writeJSON(w, http.StatusOK, openai.ChatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: created,
		Model:   rt.chatModelID,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: text,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: estimateUsage(question, text),
	})
}

func (rt *Router) chatAuthorized(r *http.Request) bool {
	if rt.chatAPIKey == "" {
		return true
	}
	return isAuthorizedBearerHeader(r.Header.Get("Authorization"), rt.chatAPIKey)
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token == expectedToken
}

func latestUserMessageContent(messages []openai.ChatCompletionMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != openai.ChatMessageRoleUser {
			continue
		}
		if text := extractMessageText(messages[i]); text != "" {
			return text, true
		}
	}
	return "", false
}

func extractMessageText(message openai.ChatCompletionMessage) string {
	if text := strings.TrimSpace(message.Content); text != "" {
		return text
	}
	parts := make([]string, 0, len(message.MultiContent))
	for _, part := range message.MultiContent {
		if part.Type != openai.ChatMessagePartTypeText {
			continue
		}
		if segment := strings.TrimSpace(part.Text); segment != "" {
			parts = append(parts, segment)
		}
	}
	return strings.Join(parts, "\n")
}

// answerWithCitations appends a deduplicated source list so chat clients
// without a citation UI still see where facts came from.
func answerWithCitations(answer *domain.Answer) string {
	text := strings.TrimSpace(answer.Text)
	if len(answer.Citations) == 0 {
		return text
	}

	seen := make(map[string]struct{}, len(answer.Citations))
	lines := make([]string, 0, len(answer.Citations))
	for _, c := range answer.Citations {
		label := strings.TrimSpace(c.ProductName)
		if c.SKU != "" {
			label = strings.TrimSpace(label + " (" + c.SKU + ")")
		}
		if c.SourceDocument != "" {
			label = strings.TrimSpace(label + " - " + c.SourceDocument)
		}
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		lines = append(lines, "- "+label)
	}
	if len(lines) == 0 {
		return text
	}
	return text + "\n\nSources:\n" + strings.Join(lines, "\n")
}

func newCompletionID() string {
	return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
}

func estimateUsage(prompt, completion string) openai.Usage {
	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(completion))
	return openai.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}
