// Package pdf reads the text layer of PDF datasheets, one paragraph per
// page. Scanned PDFs without a text layer yield an empty string.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Decoder struct {
	maxBytes int64
}

func NewDecoder(maxBytes int64) *Decoder {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Decoder{maxBytes: maxBytes}
}

func (d *Decoder) Decode(raw []byte, filename string) (text string, err error) {
	if int64(len(raw)) > d.maxBytes {
		return "", fmt.Errorf("pdf %s exceeds %d bytes", filename, d.maxBytes)
	}
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf %s: %v", filename, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", filename, err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf %s page %d: %w", filename, i, err)
		}
		if text := normalizeWhitespace(content); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
