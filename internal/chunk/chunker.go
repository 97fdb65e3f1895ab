// Package chunk splits document text into overlapping passages sized for the
// embedding model. Splitting is deterministic: identical input always yields
// identical boundaries, which the ingestion pipeline relies on for its
// deterministic vector ids.
package chunk

import "fmt"

// Chunk is a bounded slice of a document's text. CharStart and CharEnd are
// rune offsets into the source; consecutive chunks overlap by the configured
// overlap, and stripping that overlap reconstructs the source text.
type Chunk struct {
	Ordinal   int
	Text      string
	CharStart int
	CharEnd   int
}

// Splitter splits text into chunks of at most MaxChars runes, each sharing
// OverlapChars runes with its predecessor.
type Splitter struct {
	MaxChars     int
	OverlapChars int
}

func NewSplitter(maxChars, overlapChars int) (*Splitter, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", maxChars)
	}
	if overlapChars < 0 || overlapChars >= maxChars {
		return nil, fmt.Errorf("chunk overlap %d must satisfy 0 <= overlap < size %d", overlapChars, maxChars)
	}
	return &Splitter{MaxChars: maxChars, OverlapChars: overlapChars}, nil
}

// Split returns the ordered chunks of text. Trailing content shorter than
// MaxChars is never dropped; the final chunk may be short. Empty or
// whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.MaxChars - s.OverlapChars
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + s.MaxChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Ordinal:   len(chunks),
			Text:      string(runes[start:end]),
			CharStart: start,
			CharEnd:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
