package chunker

import (
	"fmt"

	"ragserver/internal/domain"
)

// WindowChunker splits document text into fixed-size overlapping segments.
// The window slides over runes so multi-byte text never splits mid-character.
type WindowChunker struct {
	chunkSize int
	overlap   int
}

// NewWindowChunker validates the window parameters. Overlap must be smaller
// than the chunk size, otherwise the window would never advance.
func NewWindowChunker(chunkSize, overlap int) (*WindowChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrValidation, chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrValidation, overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", domain.ErrValidation, overlap, chunkSize)
	}
	return &WindowChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunk produces the document's segments in order. Segments keep the
// original text verbatim so citations can point back to the source; empty
// content yields no chunks and no error.
func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Content)
	if len(runes) == 0 {
		return nil, nil
	}
	step := c.chunkSize - c.overlap
	var chunks []domain.Chunk
	idx := 0
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			Index:      idx,
			Text:       string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
		idx++
	}
	return chunks, nil
}
