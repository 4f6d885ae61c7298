// Package models defines core data structures for contracts, chunks, findings, and versions.
package models

import (
	"fmt"
	"time"
)

// Document represents an ingested contract with metadata.
type Document struct {
	ID          string                 `json:"id" db:"id"`
	Title       string                 `json:"title" db:"title"`
	Workspace   string                 `json:"workspace" db:"workspace"`
	Content     string                 `json:"content" db:"content"`
	ContentHash string                 `json:"content_hash" db:"content_hash"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" db:"updated_at"`
}

// DocumentChunk is one overlapping window of a document's normalized text.
// Chunks are immutable once created and their ChunkIndex is contiguous from 0.
type DocumentChunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Content    string    `json:"content" db:"content"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Embedding  []float32 `json:"-" db:"embedding"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ChunkID returns the stable chunk identifier for a document and chunk index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// DocumentInput is the input for ingesting a document.
type DocumentInput struct {
	ID        string                 `json:"id,omitempty"`
	Title     string                 `json:"title,omitempty"`
	Workspace string                 `json:"workspace,omitempty"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
