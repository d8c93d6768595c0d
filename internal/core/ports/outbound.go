package ports

import (
	"context"
	"io"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

// DocumentRepository persists and reads datasheet ingestion state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveIngestionStats(ctx context.Context, id string, products, chunks int) error
}

// ObjectStorage stores source datasheets.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDatasheetIngested(ctx context.Context, documentID string) error
	SubscribeDatasheetIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored datasheet.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// DatasheetParser turns extracted text into product records.
type DatasheetParser interface {
	Parse(text, sourceDocument string) []domain.Product
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into retrievable chunks.
type Chunker interface {
	Split(text string) []string
}

// AttributeStore answers exact and structured lookups over products.
type AttributeStore interface {
	ExactSearch(ctx context.Context, text string) ([]domain.SearchResult, error)
	FilterSearch(ctx context.Context, filter domain.AttributeFilter) ([]domain.SearchResult, error)
}

// ProductStore persists product records. Upsert is keyed by SKU.
type ProductStore interface {
	UpsertProduct(ctx context.Context, product *domain.Product) (int64, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
}

// VectorStore indexes product chunks and performs similarity search.
type VectorStore interface {
	IndexProductChunks(ctx context.Context, chunks []domain.ProductChunk, vectors [][]float32) error
	SemanticSearch(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
}

// Reranker scores candidate texts against a query; output order matches input.
type Reranker interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// QueryClassificationModel returns the raw model output for a query;
// parsing and validation happen in the core.
type QueryClassificationModel interface {
	ClassifyQuery(ctx context.Context, query string) (string, error)
}

// Translator normalises queries to the working language and back.
type Translator interface {
	ToWorking(ctx context.Context, text string) (translated string, sourceLanguage string, err error)
	FromWorking(ctx context.Context, text, targetLanguage string) (string, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, results []domain.SearchResult) (string, error)
}

// RetrievalRecorder observes retrieval outcomes.
type RetrievalRecorder interface {
	RecordClassification(queryType domain.QueryType, source domain.ClassificationSource, lowConfidence bool)
	RecordSearch(queryType domain.QueryType, resp domain.SearchResponse, seconds float64)
	RecordBranchFailure(branch string)
}
