package chunking

import (
	"regexp"
	"strings"
)

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// Splitter packs datasheet paragraphs into chunks of at most ChunkSize
// words. Paragraphs stay whole unless a single one exceeds ChunkSize, in
// which case it is cut into word windows. Consecutive chunks share Overlap
// words.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

func (s *Splitter) Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		out     []string
		current [][]string
		size    int
	)
	flush := func() []string {
		if size == 0 {
			return nil
		}
		lines := make([]string, 0, len(current))
		var words []string
		for _, para := range current {
			lines = append(lines, strings.Join(para, " "))
			words = append(words, para...)
		}
		out = append(out, strings.Join(lines, "\n"))
		current, size = nil, 0
		return words
	}

	for _, raw := range blankLine.Split(text, -1) {
		para := strings.Fields(raw)
		if len(para) == 0 {
			continue
		}
		if len(para) > s.ChunkSize {
			flush()
			out = append(out, s.windows(para)...)
			continue
		}
		if size+len(para) > s.ChunkSize {
			prev := flush()
			if tail := s.tail(prev); len(tail)+len(para) <= s.ChunkSize && len(tail) > 0 {
				current, size = [][]string{tail}, len(tail)
			}
		}
		current = append(current, para)
		size += len(para)
	}
	flush()
	return out
}

// windows cuts one oversized paragraph into overlapping word windows.
func (s *Splitter) windows(words []string) []string {
	step := s.ChunkSize - s.Overlap
	out := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := min(start+s.ChunkSize, len(words))
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

func (s *Splitter) tail(words []string) []string {
	if s.Overlap == 0 || len(words) == 0 {
		return nil
	}
	n := min(s.Overlap, len(words))
	return append([]string(nil), words[len(words)-n:]...)
}
