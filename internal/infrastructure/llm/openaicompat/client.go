// Package openaicompat talks to any OpenAI-compatible chat and embedding
// API (OpenAI, Mistral, vLLM, Nebius).
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/resilience"
)

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
}

func New(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:        openai.NewClientWithConfig(clientCfg),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
	}
}

func (c *Client) WithResilience(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type QueryClassifier struct{ client *Client }

func NewQueryClassifier(client *Client) *QueryClassifier { return &QueryClassifier{client: client} }

func (q *QueryClassifier) ClassifyQuery(ctx context.Context, query string) (string, error) {
	return q.client.chat(ctx, "classify", prompt.QueryClassification(query), true)
}

type Generator struct{ client *Client }

func NewGenerator(client *Client) *Generator { return &Generator{client: client} }

func (g *Generator) GenerateAnswer(ctx context.Context, question string, results []domain.SearchResult) (string, error) {
	return g.client.chat(ctx, "generate", prompt.Answer(question, results), false)
}

type Translator struct {
	client          *Client
	workingLanguage string
}

func NewTranslator(client *Client, workingLanguage string) *Translator {
	if workingLanguage == "" {
		workingLanguage = "en"
	}
	return &Translator{client: client, workingLanguage: strings.ToLower(workingLanguage)}
}

func (t *Translator) ToWorking(ctx context.Context, text string) (string, string, error) {
	raw, err := t.client.chat(ctx, "translate", prompt.DetectAndTranslate(text, t.workingLanguage), true)
	if err != nil {
		return "", "", err
	}
	language, translation, err := prompt.ParseTranslation(raw)
	if err != nil {
		return "", "", err
	}
	if language == t.workingLanguage || translation == "" {
		return text, language, nil
	}
	return translation, language, nil
}

func (t *Translator) FromWorking(ctx context.Context, text, targetLanguage string) (string, error) {
	target := strings.ToLower(strings.TrimSpace(targetLanguage))
	if target == "" || target == t.workingLanguage {
		return text, nil
	}
	return t.client.chat(ctx, "translate", prompt.Translate(text, target), false)
}

type Embedder struct{ client *Client }

func NewEmbedder(client *Client) *Embedder { return &Embedder{client: client} }

func (e *Embedder) ModelName() string { return e.client.embedModel }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := resilience.Call(ctx, e.client.executor, "openai.embed", func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return e.client.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:          texts,
			Model:          openai.EmbeddingModel(e.client.embedModel),
			EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		})
	}, classifyOpenAIError)
	if err != nil {
		return nil, wrapAPIError("openai embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	data := append([]openai.Embedding(nil), resp.Data...)
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) chat(ctx context.Context, operation, userPrompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := resilience.Call(ctx, c.executor, "openai."+operation, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return c.api.CreateChatCompletion(ctx, req)
	}, classifyOpenAIError)
	if err != nil {
		return "", wrapAPIError("openai "+operation, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if code := statusOf(err); code > 0 {
		retry := resilience.IsRetryableHTTPStatus(code)
		return resilience.ErrorClassification{Retryable: retry, RecordFailure: retry}
	}
	return resilience.ClassifyHTTPError(err)
}

func wrapAPIError(operation string, err error) error {
	if code := statusOf(err); code > 0 && resilience.IsRetryableHTTPStatus(code) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return resilience.WrapTemporary(operation, err)
}
