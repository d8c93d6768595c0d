// Package spreadsheet turns XLSX product sheets into "Header: value" text
// blocks, one block per data row, so the datasheet parser can read them the
// same way it reads PDF text.
package spreadsheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type Decoder struct {
	maxRows int
}

func NewDecoder(maxRows int) *Decoder {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &Decoder{maxRows: maxRows}
}

func (d *Decoder) Decode(raw []byte, filename string) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet %s: %w", filename, err)
	}
	defer book.Close()

	var blocks []string
	rowsSeen := 0
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s of %s: %w", sheet, filename, err)
		}
		if len(rows) < 2 {
			continue
		}
		header := rows[0]
		for _, row := range rows[1:] {
			if rowsSeen >= d.maxRows {
				return strings.Join(blocks, "\n\n"), nil
			}
			if block := rowBlock(header, row); block != "" {
				blocks = append(blocks, block)
				rowsSeen++
			}
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

func rowBlock(header, row []string) string {
	lines := make([]string, 0, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			lines = append(lines, cell)
			continue
		}
		lines = append(lines, name+": "+cell)
	}
	return strings.Join(lines, "\n")
}
