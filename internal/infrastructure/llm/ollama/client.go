package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// WithResilience routes every request through the executor.
func (c *Client) WithResilience(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

// QueryClassifier asks the model for a routing decision and returns the
// raw JSON text; validation happens in the core.
type QueryClassifier struct {
	client *Client
}

func NewQueryClassifier(client *Client) *QueryClassifier {
	return &QueryClassifier{client: client}
}

func (c *QueryClassifier) ClassifyQuery(ctx context.Context, query string) (string, error) {
	return c.client.generateJSON(ctx, "classify", prompt.QueryClassification(query))
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// ModelName identifies the embedding model for cache keys.
func (e *Embedder) ModelName() string {
	return e.client.embedModel
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, results []domain.SearchResult) (string, error) {
	return g.client.generateText(ctx, "generate", prompt.Answer(question, results))
}

// Translator moves queries into the working language and answers back out.
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
	raw, err := t.client.generateJSON(ctx, "translate", prompt.DetectAndTranslate(text, t.workingLanguage))
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
	return t.client.generateText(ctx, "translate", prompt.Translate(text, target))
}

// generateJSON and generateText name the operation so retry budgets and
// breakers are tracked per use rather than per endpoint.
func (c *Client) generateJSON(ctx context.Context, operation, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, operation, reqBody)
}

func (c *Client) generateText(ctx context.Context, operation, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, operation, reqBody)
}

func (c *Client) generate(ctx context.Context, operation string, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, operation); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
