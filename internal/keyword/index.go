// Package keyword provides a full-text index over contract clauses (chunks).
package keyword

import (
	"context"

	"github.com/hyperjump/clausewise/internal/models"
)

// SearchOptions optional parameters for clause search. The zero value searches every
// document with exact term matching.
type SearchOptions struct {
	// DocumentID restricts hits to one document when non-empty.
	DocumentID string
	// Workspace restricts hits to one workspace when non-empty.
	Workspace string
	// Limit caps the number of hits. Values <= 0 use DefaultLimit.
	Limit int
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2).
	// Default is 1 when FuzzyEnabled is true.
	Fuzziness int
}

// DefaultLimit is the hit limit used when SearchOptions.Limit is not set.
const DefaultLimit = 10

// ClauseIndex defines clause search operations.
type ClauseIndex interface {
	// IndexChunks indexes every chunk of doc, replacing earlier entries with the same chunk ID.
	IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error
	Search(ctx context.Context, query string, opts SearchOptions) ([]*ClauseHit, error)
	// DeleteDocument removes every chunk of docID.
	DeleteDocument(ctx context.Context, docID string) error
	// DocCount returns the number of indexed chunks.
	DocCount() (uint64, error)
	Close() error
}

// ClauseHit is a single clause search hit.
type ClauseHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}
