package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperjump/clausewise/internal/config"
	"github.com/hyperjump/clausewise/internal/embedding"
	"github.com/hyperjump/clausewise/internal/keyword"
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/storage"
	"github.com/hyperjump/clausewise/internal/vector"
	"go.uber.org/zap"
)

// upsertBatchSize bounds the records sent to the vector index per call.
const upsertBatchSize = 100

var (
	// ErrEmptyDocument is returned when a document has no text after normalization.
	ErrEmptyDocument = errors.New("document has no text")
	// ErrDocumentExists is returned when an ID is re-ingested with different content.
	// Chunks are immutable, so a changed contract must be ingested under a new ID.
	ErrDocumentExists = errors.New("document already ingested with different content")
)

// Indexer stores documents and their chunks, embeds the chunks, and keeps the vector and
// clause indices in step with storage.
type Indexer struct {
	storage     storage.Storage
	embedder    embedding.Embedder
	vectorIndex vector.VectorIndex
	clauseIndex keyword.ClauseIndex // optional
	chunker     *Chunker
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithClauseIndex enables full-text clause indexing.
func WithClauseIndex(ci keyword.ClauseIndex) IndexerOption {
	return func(idx *Indexer) { idx.clauseIndex = ci }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	cfg config.ChunkingConfig,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:     store,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		chunker:     NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexDocument normalizes, chunks, and embeds input, then persists the document and its
// chunks and upserts the chunk vectors. Re-ingesting an ID with identical content returns
// the stored chunks unchanged.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, []*models.DocumentChunk, error) {
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	content := Preprocess(input.Content)
	if content == "" {
		return nil, nil, fmt.Errorf("%s: %w", input.ID, ErrEmptyDocument)
	}
	hash := ContentHash(content)

	existing, err := idx.storage.GetDocument(ctx, input.ID)
	switch {
	case err == nil:
		if existing.ContentHash != hash {
			return nil, nil, fmt.Errorf("%s: %w", input.ID, ErrDocumentExists)
		}
		chunks, err := idx.storage.GetChunksByDocumentID(ctx, input.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load chunks: %w", err)
		}
		idx.logger.Debug("indexer document unchanged", zap.String("doc_id", input.ID))
		return existing, chunks, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, nil, fmt.Errorf("failed to look up document: %w", err)
	}

	chunks := idx.chunker.Chunk(input.ID, content)
	if err := idx.embedChunks(ctx, chunks); err != nil {
		return nil, nil, err
	}

	doc := &models.Document{
		ID:          input.ID,
		Title:       input.Title,
		Workspace:   input.Workspace,
		Content:     content,
		ContentHash: hash,
		Metadata:    input.Metadata,
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return nil, nil, fmt.Errorf("failed to store document: %w", err)
	}
	if err := idx.storage.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		idx.rollback(doc.ID)
		return nil, nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := idx.indexChunks(ctx, doc, chunks); err != nil {
		idx.rollback(doc.ID)
		return nil, nil, err
	}
	idx.logger.Debug("indexer document indexed",
		zap.String("doc_id", doc.ID),
		zap.String("workspace", doc.Workspace),
		zap.Int("chunks", len(chunks)))
	return doc, chunks, nil
}

// embedChunks fills each chunk's Embedding with one batched embedder call.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}
	return nil
}

// indexChunks upserts chunk vectors in batches and adds the chunks to the clause index.
func (idx *Indexer) indexChunks(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error {
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		records := make([]vector.Record, 0, end-start)
		for _, ch := range chunks[start:end] {
			records = append(records, vector.Record{
				DocumentID: doc.ID,
				ChunkID:    ch.ID,
				ChunkIndex: ch.ChunkIndex,
				Text:       ch.Content,
				Vector:     ch.Embedding,
			})
		}
		if err := idx.vectorIndex.Upsert(ctx, records); err != nil {
			return fmt.Errorf("failed to index vectors: %w", err)
		}
	}
	if idx.clauseIndex != nil {
		if err := idx.clauseIndex.IndexChunks(ctx, doc, chunks); err != nil {
			return fmt.Errorf("failed to index clauses: %w", err)
		}
	}
	return nil
}

// rollback removes a partially indexed document. It runs on a fresh context so a
// cancelled ingest still cleans up.
func (idx *Indexer) rollback(docID string) {
	if err := idx.DeleteDocument(context.Background(), docID); err != nil {
		idx.logger.Warn("indexer rollback failed", zap.String("doc_id", docID), zap.Error(err))
	}
}

// Restore re-populates the vector and clause indices from stored chunks, for a fresh
// vector backend or a lost clause index. Returns the number of documents restored.
func (idx *Indexer) Restore(ctx context.Context) (int, error) {
	return idx.restore(ctx, false)
}

// RestoreMissing re-indexes only the stored documents whose chunks are not all present
// in the vector index, e.g. after a stale snapshot was loaded. Returns the number of
// documents restored.
func (idx *Indexer) RestoreMissing(ctx context.Context) (int, error) {
	return idx.restore(ctx, true)
}

func (idx *Indexer) restore(ctx context.Context, onlyMissing bool) (int, error) {
	docs, err := idx.storage.ListDocuments(ctx, storage.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}
	n := 0
	for _, doc := range docs {
		chunks, err := idx.storage.GetChunksByDocumentID(ctx, doc.ID)
		if err != nil {
			return n, fmt.Errorf("failed to load chunks of %s: %w", doc.ID, err)
		}
		if onlyMissing {
			complete, err := idx.vectorsComplete(ctx, doc.ID, chunks)
			if err != nil {
				return n, err
			}
			if complete {
				continue
			}
		}
		var missing []*models.DocumentChunk
		for _, ch := range chunks {
			if len(ch.Embedding) == 0 {
				missing = append(missing, ch)
			}
		}
		if len(missing) > 0 {
			if err := idx.embedChunks(ctx, missing); err != nil {
				return n, err
			}
		}
		if err := idx.indexChunks(ctx, doc, chunks); err != nil {
			return n, err
		}
		n++
	}
	idx.logger.Info("indexer restored indices", zap.Int("documents", n), zap.Bool("only_missing", onlyMissing))
	return n, nil
}

// vectorsComplete reports whether every chunk of docID is in the vector index. It queries
// the index with one of the document's own embeddings scoped to the document.
func (idx *Indexer) vectorsComplete(ctx context.Context, docID string, chunks []*models.DocumentChunk) (bool, error) {
	if len(chunks) == 0 {
		return true, nil
	}
	var sample []float32
	for _, ch := range chunks {
		if len(ch.Embedding) > 0 {
			sample = ch.Embedding
			break
		}
	}
	if sample == nil {
		return false, nil
	}
	matches, err := idx.vectorIndex.Query(ctx, sample, len(chunks), vector.Filter{DocumentID: docID})
	if err != nil {
		return false, fmt.Errorf("failed to check vectors of %s: %w", docID, err)
	}
	present := make(map[string]bool, len(matches))
	for _, m := range matches {
		present[m.ChunkID] = true
	}
	for _, ch := range chunks {
		if !present[ch.ID] {
			return false, nil
		}
	}
	return true, nil
}

// DeleteDocument removes a document from all indices and storage. Its version record is kept.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	idx.logger.Debug("indexer deleting document", zap.String("id", id))
	if idx.clauseIndex != nil {
		if err := idx.clauseIndex.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from clause index: %w", err)
		}
	}
	if err := idx.vectorIndex.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
