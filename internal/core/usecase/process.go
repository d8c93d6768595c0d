package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/core/ports"
)

// ProcessDatasheetUseCase turns a stored datasheet into product rows and
// indexed product chunks.
type ProcessDatasheetUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	parser    ports.DatasheetParser
	products  ports.ProductStore
	chunker   ports.Chunker
	embedder  ports.Embedder
	vectorDB  ports.VectorStore
	logger    *slog.Logger
}

func NewProcessDatasheetUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	parser ports.DatasheetParser,
	products ports.ProductStore,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	logger *slog.Logger,
) *ProcessDatasheetUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDatasheetUseCase{
		repo:      repo,
		extractor: extractor,
		parser:    parser,
		products:  products,
		chunker:   chunker,
		embedder:  embedder,
		vectorDB:  vectorDB,
		logger:    logger,
	}
}

func (uc *ProcessDatasheetUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	products, chunks, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveIngestionStats(ctx, documentID, products, chunks); err != nil {
		err = fmt.Errorf("save ingestion stats: %w", err)
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	uc.logger.Info("datasheet_processed", "document_id", documentID, "products", products, "chunks", chunks)
	return nil
}

func (uc *ProcessDatasheetUseCase) processPipeline(ctx context.Context, documentID string) (int, int, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch document by id: %w", err)
	}

	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return 0, 0, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, 0, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}

	products := uc.parser.Parse(text, doc.Filename)
	if len(products) == 0 {
		return 0, 0, domain.WrapError(domain.ErrInvalidInput, "parse datasheet", errors.New("no products recognised"))
	}

	chunks := make([]domain.ProductChunk, 0, len(products)*2)
	for i := range products {
		product := &products[i]
		id, err := uc.products.UpsertProduct(ctx, product)
		if err != nil {
			return 0, 0, fmt.Errorf("upsert product %s: %w", product.SKU, err)
		}
		product.ID = id
		chunks = append(chunks, uc.productChunks(*product)...)
	}
	if len(chunks) == 0 {
		return 0, 0, domain.WrapError(domain.ErrInvalidInput, "chunk datasheet", errors.New("chunking produced zero chunks"))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, 0, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	if err := uc.vectorDB.IndexProductChunks(ctx, chunks, vectors); err != nil {
		return 0, 0, fmt.Errorf("index chunks in vector db: %w", err)
	}
	return len(products), len(chunks), nil
}

func (uc *ProcessDatasheetUseCase) productChunks(p domain.Product) []domain.ProductChunk {
	parts := uc.chunker.Split(productText(p))
	attrs := p.Attributes()
	out := make([]domain.ProductChunk, 0, len(parts))
	for i, part := range parts {
		out = append(out, domain.ProductChunk{
			ProductID:      p.ID,
			SKU:            p.SKU,
			ProductName:    p.Name,
			SourceDocument: p.SourceDocument,
			ChunkIndex:     i,
			Text:           part,
			Attributes:     attrs,
		})
	}
	return out
}

// productText is the indexed description: the attribute summary followed
// by the free text found in the datasheet.
func productText(p domain.Product) string {
	text := p.Summary()
	if desc := strings.TrimSpace(p.Description); desc != "" {
		text += " " + desc
	}
	return text
}

func (uc *ProcessDatasheetUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDatasheetUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
