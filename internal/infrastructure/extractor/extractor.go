// Package extractor reads stored datasheets and picks a format decoder by
// file extension, then by MIME type.
package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/core/ports"
)

type Decoder interface {
	Decode(raw []byte, filename string) (string, error)
}

type Format string

const (
	FormatPDF         Format = "pdf"
	FormatSpreadsheet Format = "spreadsheet"
	FormatText        Format = "text"
)

type Extractor struct {
	storage  ports.ObjectStorage
	decoders map[Format]Decoder
	maxBytes int64
}

func New(storage ports.ObjectStorage, decoders map[Format]Decoder, maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	return &Extractor{storage: storage, decoders: decoders, maxBytes: maxBytes}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	format := DetectFormat(doc.Filename, doc.MimeType)
	decoder, ok := e.decoders[format]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("no decoder for %s (%s)", doc.Filename, format))
	}

	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("%s exceeds %d bytes", doc.Filename, e.maxBytes))
	}

	text, err := decoder.Decode(raw, doc.Filename)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func DetectFormat(filename, mimeType string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".xlsx", ".xlsm":
		return FormatSpreadsheet
	case ".txt", ".md", ".csv":
		return FormatText
	}

	mime := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case mime == "application/pdf":
		return FormatPDF
	case strings.Contains(mime, "spreadsheetml"):
		return FormatSpreadsheet
	default:
		return FormatText
	}
}
