// Package storage defines the persistence interface for contracts, chunks, analyses, and
// version lineages.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/clausewise/internal/models"
)

var (
	// ErrNotFound is returned (wrapped) when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a lineage version number is already taken.
	ErrVersionConflict = errors.New("version number already assigned in lineage")
)

// ListOptions pages and filters document listings.
type ListOptions struct {
	Workspace string
	Offset    int
	Limit     int
}

// Stats summarizes stored records.
type Stats struct {
	Documents int64 `json:"documents"`
	Chunks    int64 `json:"chunks"`
	Analyses  int64 `json:"analyses"`
	Lineages  int64 `json:"lineages"`
}

// Storage defines contract persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// DeleteDocument removes a document with its chunks and analyses. Its version record
	// is kept so lineage numbering stays append-only.
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, opts ListOptions) ([]*models.Document, error)
	FindDocumentsByHash(ctx context.Context, contentHash string) ([]*models.Document, error)

	// Chunk operations
	// ReplaceChunks atomically replaces every chunk of docID, embeddings included.
	ReplaceChunks(ctx context.Context, docID string, chunks []*models.DocumentChunk) error
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)

	// Analysis operations
	SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error
	GetAnalysis(ctx context.Context, id string) (*models.AnalysisResult, error)
	ListAnalyses(ctx context.Context, docID string) ([]*models.AnalysisResult, error)

	// Version operations
	// AppendVersion assigns documentID the next version number in lineageID inside one
	// transaction. If the document already has a version, that record is returned unchanged.
	AppendVersion(ctx context.Context, lineageID, documentID string, similarity *float64) (*models.DocumentVersion, error)
	GetVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error)
	ListLineage(ctx context.Context, lineageID string) ([]*models.DocumentVersion, error)

	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
