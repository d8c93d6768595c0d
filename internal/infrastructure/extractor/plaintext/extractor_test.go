package plaintext

import "testing"

func TestDecodeTrimsBOMAndSpace(t *testing.T) {
	got, err := NewDecoder().Decode([]byte("\ufeff  SKU: 4008321 \n"), "a.txt")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != "SKU: 4008321" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestDecodeRejectsBinary(t *testing.T) {
	if _, err := NewDecoder().Decode([]byte{0xff, 0xfe, 0x00, 0x81}, "a.bin"); err == nil {
		t.Fatalf("expected error for invalid utf-8")
	}
}
