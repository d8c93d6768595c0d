package ports

import (
	"context"
	"io"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

// DatasheetIngestor is the inbound contract for datasheet upload orchestration.
type DatasheetIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// QueryService is the inbound contract for classification, retrieval and answering.
type QueryService interface {
	Classify(ctx context.Context, query string) (domain.QueryClassification, error)
	Search(ctx context.Context, query string, opts domain.SearchOptions) (domain.SearchResponse, error)
	Answer(ctx context.Context, query string, opts domain.SearchOptions) (*domain.Answer, error)
}

// DocumentReader is the inbound read model for datasheet state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// ProductReader is the inbound read model for product records.
type ProductReader interface {
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
}

// DatasheetProcessor is the inbound contract for asynchronous ingestion.
type DatasheetProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
