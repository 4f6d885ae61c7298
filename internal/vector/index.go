// Package vector stores chunk embeddings and answers nearest-neighbour queries scoped to
// a single document. Backends: in-memory brute force (default) and RediSearch.
package vector

import "context"

// Record is one chunk embedding to store. Upserts are keyed by ChunkID, so re-ingesting a
// document overwrites its chunks instead of duplicating them.
type Record struct {
	DocumentID string
	ChunkID    string
	ChunkIndex int
	Text       string
	Vector     []float32
}

// Filter restricts a query. An empty DocumentID matches every document.
type Filter struct {
	DocumentID string
}

// Match is a single query hit.
type Match struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Text       string
	// Score is the cosine similarity between the query and the chunk, in [-1, 1].
	Score float64
}

// VectorIndex defines vector storage and similarity search. Implementations are safe
// for concurrent use; Query never mutates the index.
type VectorIndex interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]*Match, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}
