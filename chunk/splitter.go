package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig marks splitter settings that can never make progress.
var ErrInvalidConfig = errors.New("chunk: invalid configuration")

// boundary separators in priority order: paragraphs, lines, sentence
// enders, then single spaces. A hard cut at the size limit is the last
// resort when no separator lands inside the window.
var (
	softSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; "}
	wordSeparator  = " "
)

// Span is one contiguous slice of the input text. Start and End are rune
// offsets into the original text; Text == input[Start:End] in runes.
type Span struct {
	Text  string
	Start int
	End   int
	Index int
}

// Chunk is a span prepared for embedding, carrying its deterministic
// identity and inherited metadata.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Start      int
	End        int
	Hash       string
	Metadata   map[string]any
}

// Splitter cuts text into overlapping spans no longer than size runes.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter validates sizes up front; an overlap that reaches the chunk
// size would never advance, so construction fails instead.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be greater than zero", ErrInvalidConfig)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative", ErrInvalidConfig)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split covers the whole input with ordered spans. Consecutive spans share
// up to overlap runes; empty input yields no spans.
func (s *Splitter) Split(text string) []Span {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	spans := make([]Span, 0, len(runes)/s.size+1)
	start := 0
	for start < len(runes) {
		end := start + s.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.cut(runes, start, end)
		}
		spans = append(spans, Span{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
			Index: len(spans),
		})
		if end == len(runes) {
			break
		}
		next := end - s.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// Chunks splits the text and attaches identity plus metadata to each span.
// Chunk IDs are a deterministic function of (document, position, content),
// so re-splitting unchanged text reproduces the same IDs.
func (s *Splitter) Chunks(docID, text string, meta map[string]any) []Chunk {
	spans := s.Split(text)
	chunks := make([]Chunk, 0, len(spans))
	for _, span := range spans {
		if strings.TrimSpace(span.Text) == "" {
			continue
		}
		hash := hashText(span.Text)
		metadata := cloneMap(meta)
		metadata["chunk_index"] = span.Index
		metadata["start_char"] = span.Start
		metadata["end_char"] = span.End
		chunks = append(chunks, Chunk{
			ID:         hashText(docID + "::" + fmt.Sprint(span.Index) + "::" + hash),
			DocumentID: docID,
			Index:      span.Index,
			Text:       span.Text,
			Start:      span.Start,
			End:        span.End,
			Hash:       hash,
			Metadata:   metadata,
		})
	}
	return chunks
}

// cut picks the best boundary inside (start, limit]. Soft separators are
// only taken when they leave at least a third of the window behind them,
// otherwise tiny leading fragments would dominate the output.
func (s *Splitter) cut(runes []rune, start, limit int) int {
	minCut := start + s.size/3
	if minCut <= start {
		minCut = start + 1
	}
	for _, sep := range softSeparators {
		if idx := lastIndexRunes(runes, []rune(sep), start, limit); idx >= 0 {
			cutAt := idx + len([]rune(sep))
			if cutAt >= minCut && cutAt <= limit {
				return cutAt
			}
		}
	}
	if idx := lastIndexRunes(runes, []rune(wordSeparator), start, limit); idx > start {
		return idx + 1
	}
	return limit
}

// lastIndexRunes finds the highest i in [lo, hi-len(sep)] where sep occurs.
func lastIndexRunes(runes, sep []rune, lo, hi int) int {
	if len(sep) == 0 || hi-lo < len(sep) {
		return -1
	}
	for i := hi - len(sep); i >= lo; i-- {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func cloneMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+3)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func hashText(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
