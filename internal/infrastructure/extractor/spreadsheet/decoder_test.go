package spreadsheet

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := book.SetCellValue("Sheet1", cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeRendersRowBlocks(t *testing.T) {
	raw := workbook(t, [][]any{
		{"Product name", "SKU", "Power"},
		{"XBO 3000 W/HS", "4008321", "3000 W"},
		{"", "", ""},
		{"XBO 2000 W/HS", "4008322", ""},
	})

	got, err := NewDecoder(0).Decode(raw, "lamps.xlsx")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := "Product name: XBO 3000 W/HS\nSKU: 4008321\nPower: 3000 W\n\nProduct name: XBO 2000 W/HS\nSKU: 4008322"
	if got != want {
		t.Fatalf("unexpected text:\n%s", got)
	}
}

func TestDecodeHonoursRowLimit(t *testing.T) {
	raw := workbook(t, [][]any{
		{"SKU"},
		{"1"},
		{"2"},
	})
	got, err := NewDecoder(1).Decode(raw, "lamps.xlsx")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != "SKU: 1" {
		t.Fatalf("expected one block, got %q", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := NewDecoder(0).Decode([]byte("not a zip"), "x.xlsx"); err == nil {
		t.Fatalf("expected error")
	}
}
