// Package chunker splits document text into bounded, overlapping segments.
package chunker

import (
	"fmt"

	"github.com/futig/zoning-qa/internal/entity"
)

// Chunk is a segment of the source text. StartOffset counts runes.
type Chunk struct {
	Text        string
	StartOffset int
}

// Validate checks chunking parameters without touching any text
func Validate(chunkSize, chunkOverlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", entity.ErrConfiguration, chunkSize)
	}
	if chunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", entity.ErrConfiguration, chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return fmt.Errorf("%w: overlap %d, size %d", entity.ErrInvalidOverlap, chunkOverlap, chunkSize)
	}
	return nil
}

// Split cuts text into chunks of at most chunkSize runes. Consecutive chunks
// share exactly chunkOverlap runes, so dropping the first chunkOverlap runes
// of every chunk after the first and concatenating gives back the input.
func Split(text string, chunkSize, chunkOverlap int) ([]Chunk, error) {
	if err := Validate(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []Chunk{}, nil
	}

	step := chunkSize - chunkOverlap
	chunks := make([]Chunk, 0, len(runes)/step+1)

	for start := 0; ; start += step {
		end := min(start+chunkSize, len(runes))
		chunks = append(chunks, Chunk{
			Text:        string(runes[start:end]),
			StartOffset: start,
		})
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// Join reverses Split for the given overlap
func Join(chunks []Chunk, chunkOverlap int) string {
	var size int
	for _, c := range chunks {
		size += len(c.Text)
	}

	out := make([]rune, 0, size)
	for i, c := range chunks {
		r := []rune(c.Text)
		if i > 0 {
			r = r[min(chunkOverlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
