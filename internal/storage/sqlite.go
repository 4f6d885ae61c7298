package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/vector"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Write transactions take the
// database lock up front so concurrent version assignment serializes instead of deadlocking.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		workspace TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_workspace ON documents(workspace, created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_document_chunk ON document_chunks(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		composite_score REAL NOT NULL,
		risk_tier TEXT NOT NULL,
		findings TEXT NOT NULL,
		penalties TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_document ON analyses(document_id, created_at);

	CREATE TABLE IF NOT EXISTS document_versions (
		document_id TEXT PRIMARY KEY,
		lineage_id TEXT NOT NULL,
		version_number INTEGER NOT NULL CHECK (version_number >= 1),
		similarity_to_previous REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (lineage_id, version_number)
	);
	`
	_, err := db.Exec(schema)
	return err
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, workspace, content, content_hash, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Workspace, doc.Content, doc.ContentHash, string(metadataJSON), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

const documentColumns = `id, title, workspace, content, content_hash, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var title, metadataJSON sql.NullString
	if err := row.Scan(&doc.ID, &title, &doc.Workspace, &doc.Content, &doc.ContentHash, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Title = title.String
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("document", id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document, its chunks, and its analyses.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("document", id)
	}
	return nil
}

// ListDocuments returns documents newest first, optionally restricted to a workspace.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, opts ListOptions) ([]*models.Document, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + documentColumns + ` FROM documents`
	args := []any{}
	if opts.Workspace != "" {
		query += ` WHERE workspace = ?`
		args = append(args, opts.Workspace)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)
	return s.queryDocuments(ctx, query, args...)
}

// FindDocumentsByHash returns every document with the given content hash, oldest first.
func (s *SQLiteStorage) FindDocumentsByHash(ctx context.Context, contentHash string) ([]*models.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = ? ORDER BY created_at, id`, contentHash)
}

func (s *SQLiteStorage) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ReplaceChunks deletes the document's existing chunks and inserts chunks in one transaction.
func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, docID string, chunks []*models.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, document_id, content, chunk_index, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		if chunk.DocumentID != docID {
			return fmt.Errorf("chunk %s belongs to %s, not %s", chunk.ID, chunk.DocumentID, docID)
		}
		chunk.CreatedAt = now
		var blob []byte
		if len(chunk.Embedding) > 0 {
			blob = vector.EncodeFloat32s(chunk.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Content, chunk.ChunkIndex, blob, chunk.CreatedAt); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	return tx.Commit()
}

const chunkColumns = `id, document_id, content, chunk_index, embedding, created_at`

func scanChunk(row rowScanner) (*models.DocumentChunk, error) {
	var chunk models.DocumentChunk
	var blob []byte
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.ChunkIndex, &blob, &chunk.CreatedAt); err != nil {
		return nil, err
	}
	if len(blob) > 0 {
		emb, err := vector.DecodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s embedding: %w", chunk.ID, err)
		}
		chunk.Embedding = emb
	}
	return &chunk, nil
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error) {
	chunk, err := scanChunk(s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("chunk", id)
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.DocumentChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// SaveAnalysis inserts an analysis record. Records are never updated.
func (s *SQLiteStorage) SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	findings, err := json.Marshal(result.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}
	penalties, err := json.Marshal(result.Penalties)
	if err != nil {
		return fmt.Errorf("failed to marshal penalties: %w", err)
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, document_id, version, composite_score, risk_tier, findings, penalties, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.DocumentID, result.Version, result.CompositeScore, string(result.RiskTier),
		string(findings), string(penalties), result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis %s: %w", result.ID, err)
	}
	return nil
}

const analysisColumns = `id, document_id, version, composite_score, risk_tier, findings, penalties, created_at`

func scanAnalysis(row rowScanner) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	var tier, findings, penalties string
	if err := row.Scan(&r.ID, &r.DocumentID, &r.Version, &r.CompositeScore, &tier, &findings, &penalties, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.RiskTier = models.RiskTier(tier)
	if err := json.Unmarshal([]byte(findings), &r.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
	}
	if err := json.Unmarshal([]byte(penalties), &r.Penalties); err != nil {
		return nil, fmt.Errorf("failed to unmarshal penalties: %w", err)
	}
	return &r, nil
}

// GetAnalysis returns an analysis by ID.
func (s *SQLiteStorage) GetAnalysis(ctx context.Context, id string) (*models.AnalysisResult, error) {
	r, err := scanAnalysis(s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("analysis", id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListAnalyses returns a document's analyses, newest first.
func (s *SQLiteStorage) ListAnalyses(ctx context.Context, docID string) ([]*models.AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE document_id = ? ORDER BY created_at DESC, id`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AnalysisResult
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const versionColumns = `lineage_id, version_number, document_id, similarity_to_previous, created_at`

func scanVersion(row rowScanner) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	var sim sql.NullFloat64
	if err := row.Scan(&v.LineageID, &v.VersionNumber, &v.DocumentID, &sim, &v.CreatedAt); err != nil {
		return nil, err
	}
	if sim.Valid {
		f := sim.Float64
		v.SimilarityToPrevious = &f
	}
	return &v, nil
}

// AppendVersion assigns the next version number in lineageID to documentID.
func (s *SQLiteStorage) AppendVersion(ctx context.Context, lineageID, documentID string, similarity *float64) (*models.DocumentVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := scanVersion(tx.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM document_versions WHERE document_id = ?`, documentID))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var maxVersion int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM document_versions WHERE lineage_id = ?`, lineageID,
	).Scan(&maxVersion); err != nil {
		return nil, err
	}

	v := &models.DocumentVersion{
		LineageID:     lineageID,
		VersionNumber: maxVersion + 1,
		DocumentID:    documentID,
		CreatedAt:     time.Now().UTC(),
	}
	if v.VersionNumber > 1 && similarity != nil {
		f := *similarity
		v.SimilarityToPrevious = &f
	}
	var sim sql.NullFloat64
	if v.SimilarityToPrevious != nil {
		sim = sql.NullFloat64{Float64: *v.SimilarityToPrevious, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO document_versions (lineage_id, version_number, document_id, similarity_to_previous, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.LineageID, v.VersionNumber, v.DocumentID, sim, v.CreatedAt,
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return nil, fmt.Errorf("lineage %s version %d: %w", lineageID, v.VersionNumber, ErrVersionConflict)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return v, nil
}

// GetVersion returns the version record of a document.
func (s *SQLiteStorage) GetVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM document_versions WHERE document_id = ?`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("version for document", documentID)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListLineage returns every version of a lineage in ascending version order.
func (s *SQLiteStorage) ListLineage(ctx context.Context, lineageID string) ([]*models.DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM document_versions WHERE lineage_id = ? ORDER BY version_number`, lineageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DocumentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound("lineage", lineageID)
	}
	return out, nil
}

// Stats returns record counts.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM documents),
		(SELECT COUNT(*) FROM document_chunks),
		(SELECT COUNT(*) FROM analyses),
		(SELECT COUNT(DISTINCT lineage_id) FROM document_versions)`,
	).Scan(&st.Documents, &st.Chunks, &st.Analyses, &st.Lineages)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
