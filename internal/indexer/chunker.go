// Package indexer turns contract text into stored, embedded, searchable chunks.
package indexer

import (
	"strings"

	"github.com/hyperjump/clausewise/internal/models"
)

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into DocumentChunks with overlapping windows. Chunk IDs derive from
// docID and the chunk index, so chunking the same text twice yields the same IDs.
func (c *Chunker) Chunk(docID, text string) []*models.DocumentChunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	chunks := make([]*models.DocumentChunk, 0, len(words)/step+1)
	for start := 0; ; start += step {
		end := start + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		index := len(chunks)
		chunks = append(chunks, &models.DocumentChunk{
			ID:         models.ChunkID(docID, index),
			DocumentID: docID,
			Content:    strings.Join(words[start:end], " "),
			ChunkIndex: index,
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}
