package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/core/ports"
)

// IngestDatasheetUseCase stores an uploaded datasheet and schedules it for
// asynchronous processing.
type IngestDatasheetUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDatasheetUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDatasheetUseCase {
	return &IngestDatasheetUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestDatasheetUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload datasheet", errors.New("filename is required"))
	}
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	counted := &countingReader{r: body}
	if err := uc.storage.Save(ctx, storageKey, counted); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if counted.n == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload datasheet", fmt.Errorf("%s is empty", filename))
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDatasheetIngested(ctx, doc.ID); err != nil {
		// A row left in "uploaded" would never be picked up.
		if statusErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, "enqueue failed: "+err.Error()); statusErr != nil {
			err = errors.Join(err, fmt.Errorf("mark failed status: %w", statusErr))
		}
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return doc, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "datasheet.bin"
	}
	return base
}
