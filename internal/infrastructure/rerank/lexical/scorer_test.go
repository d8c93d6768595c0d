package lexical

import (
	"context"
	"testing"
)

func TestScoreOverlap(t *testing.T) {
	scores, err := New().Score(context.Background(), "XBO 3000 lamp", []string{
		"XBO 3000 W/HS cinema lamp",
		"XBO 2000 W/HS cinema lamp",
		"halogen spot",
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	// weights: xbo=1, 3000=2, lamp=1
	if scores[0] != 1 || scores[1] != 0.5 || scores[2] != 0 {
		t.Fatalf("unexpected scores %v", scores)
	}
}

func TestScoreKeepsInputOrderAndLength(t *testing.T) {
	scores, err := New().Score(context.Background(), "?", []string{"a", "b"})
	if err != nil || len(scores) != 2 {
		t.Fatalf("expected two zero scores, got %v, %v", scores, err)
	}
}

func TestScoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Score(ctx, "lamp", []string{"lamp"}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestSplitAlphaNumLowerKeepsUmlauts(t *testing.T) {
	got := splitAlphaNumLower("Bühne-Lampe, 575W")
	want := []string{"bühne", "lampe", "575w"}
	if len(got) != len(want) {
		t.Fatalf("unexpected tokens %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected tokens %v", got)
		}
	}
}
