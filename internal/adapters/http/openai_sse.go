package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

// writeSSE streams chunks as server-sent events and terminates the stream
// with the [DONE] sentinel. It stops early when the client goes away.
func writeSSE(w http.ResponseWriter, r *http.Request, chunks []openai.ChatCompletionStreamResponse) error {
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	emit := func(data []byte) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil {
			return fmt.Errorf("flush event stream: %w", err)
		}
		return nil
	}

	for _, chunk := range chunks {
		if err := r.Context().Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if err := emit(payload); err != nil {
			return err
		}
	}
	return emit([]byte("[DONE]"))
}

func buildTextStreamChunks(completionID string, created int64, modelID, text string, chunkChars int) []openai.ChatCompletionStreamResponse {
	if chunkChars <= 0 {
		chunkChars = 120
	}

	parts := splitByRunes(text, chunkChars)
	chunks := make([]openai.ChatCompletionStreamResponse, 0, len(parts)+1)
	for idx, part := range parts {
		delta := openai.ChatCompletionStreamChoiceDelta{Content: part}
		if idx == 0 {
			delta.Role = openai.ChatMessageRoleAssistant
		}
		chunks = append(chunks, streamChunk(completionID, created, modelID, delta, ""))
	}
	return append(chunks, streamChunk(completionID, created, modelID, openai.ChatCompletionStreamChoiceDelta{}, openai.FinishReasonStop))
}

func streamChunk(id string, created int64, modelID string, delta openai.ChatCompletionStreamChoiceDelta, finish openai.FinishReason) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   modelID,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}

func splitByRunes(text string, chunkChars int) []string {
	if strings.TrimSpace(text) == "" {
		return []string{""}
	}
	if chunkChars <= 0 || utf8.RuneCountInString(text) <= chunkChars {
		return []string{text}
	}

	runes := []rune(text)
	parts := make([]string, 0, len(runes)/chunkChars+1)
	for start := 0; start < len(runes); start += chunkChars {
		end := min(start+chunkChars, len(runes))
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
