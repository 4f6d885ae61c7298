// Package pipeline is the core facade: ingest a contract, resolve its version lineage,
// and analyze it into a scored, stored result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/clausewise/internal/config"
	"github.com/hyperjump/clausewise/internal/extract"
	"github.com/hyperjump/clausewise/internal/fileid"
	"github.com/hyperjump/clausewise/internal/indexer"
	"github.com/hyperjump/clausewise/internal/keyword"
	"github.com/hyperjump/clausewise/internal/lineage"
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/orchestrator"
	"github.com/hyperjump/clausewise/internal/scoring"
	"github.com/hyperjump/clausewise/internal/storage"
	"github.com/hyperjump/clausewise/internal/vector"
)

// DefaultMaxCandidates bounds the documents compared when no candidates are given.
const DefaultMaxCandidates = 50

var (
	// ErrNoText is returned when a document has no extractable text.
	ErrNoText = errors.New("no extractable text")
	// ErrSearchDisabled is returned by SearchClauses when no clause index is configured.
	ErrSearchDisabled = errors.New("clause search is not enabled")
)

// Pipeline wires ingestion, lineage resolution, orchestration, and scoring.
type Pipeline struct {
	store        storage.Storage
	indexer      *indexer.Indexer
	orchestrator *orchestrator.Orchestrator
	vectorIndex  vector.VectorIndex
	clauseIndex  keyword.ClauseIndex // optional
	scorer       *scoring.Scorer
	resolver     *lineage.Resolver
	ledger       *lineage.Ledger
	extractor    *extract.Extractor

	maxCandidates int
	logger        *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClauseIndex enables clause keyword search.
func WithClauseIndex(ci keyword.ClauseIndex) Option {
	return func(p *Pipeline) { p.clauseIndex = ci }
}

// WithScorer replaces the default scoring rules.
func WithScorer(s *scoring.Scorer) Option {
	return func(p *Pipeline) { p.scorer = s }
}

// New creates a pipeline. cfg sets the lineage threshold and candidate bound.
func New(
	store storage.Storage,
	idx *indexer.Indexer,
	orch *orchestrator.Orchestrator,
	vectorIndex vector.VectorIndex,
	cfg config.LineageConfig,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		store:         store,
		indexer:       idx,
		orchestrator:  orch,
		vectorIndex:   vectorIndex,
		scorer:        scoring.NewScorer(),
		resolver:      lineage.NewResolver(cfg.SimilarityThreshold),
		extractor:     extract.NewExtractor(),
		maxCandidates: cfg.MaxCandidates,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxCandidates <= 0 {
		p.maxCandidates = DefaultMaxCandidates
	}
	p.ledger = lineage.NewLedger(store, lineage.WithLogger(p.logger))
	return p
}

// Ingest chunks, embeds and indexes a document. It returns the document's chunks.
func (p *Pipeline) Ingest(ctx context.Context, input *models.DocumentInput) ([]*models.DocumentChunk, error) {
	_, chunks, err := p.ingest(ctx, input)
	return chunks, err
}

func (p *Pipeline) ingest(ctx context.Context, input *models.DocumentInput) (*models.Document, []*models.DocumentChunk, error) {
	doc, chunks, err := p.indexer.IndexDocument(ctx, input)
	if errors.Is(err, indexer.ErrEmptyDocument) {
		return nil, nil, fmt.Errorf("%w: %w", ErrNoText, err)
	}
	if err != nil {
		return nil, nil, err
	}
	p.logger.Info("Document ingested",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)))
	return doc, chunks, nil
}

// Analyze runs every topic agent over the document, scores the findings and stores the
// result as a new analysis record.
func (p *Pipeline) Analyze(ctx context.Context, documentID string) (*models.AnalysisResult, error) {
	if _, err := p.store.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", documentID, err)
	}
	start := time.Now()

	run, err := p.orchestrator.Run(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", documentID, err)
	}
	scored, err := p.scorer.Score(run.Findings)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", documentID, err)
	}

	version := 0
	if v, err := p.store.GetVersion(ctx, documentID); err == nil {
		version = v.VersionNumber
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("analyze %s: %w", documentID, err)
	}

	result := &models.AnalysisResult{
		ID:             uuid.New().String(),
		DocumentID:     documentID,
		Version:        version,
		Findings:       run.Findings,
		CompositeScore: scored.Score,
		RiskTier:       scored.Tier,
		Penalties:      scored.Penalties,
	}
	if err := p.store.SaveAnalysis(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	for _, tr := range run.Traces {
		if tr.Err != nil {
			p.logger.Warn("Topic degraded",
				zap.String("document_id", documentID),
				zap.String("topic", string(tr.Topic)),
				zap.String("state", string(tr.State)),
				zap.Error(tr.Err))
		}
	}
	p.logger.Info("Analysis complete",
		zap.String("document_id", documentID),
		zap.Float64("score", result.CompositeScore),
		zap.String("tier", string(result.RiskTier)),
		zap.Duration("took", time.Since(start)))
	return result, nil
}

// ResolveVersion places the document in a lineage. candidateIDs lists earlier documents
// to compare against; when nil, the most recent documents of the same workspace are
// used. Candidates that are not yet versioned are skipped. A document that already has
// a version keeps it.
func (p *Pipeline) ResolveVersion(ctx context.Context, documentID string, candidateIDs []string) (*models.DocumentVersion, error) {
	if v, err := p.store.GetVersion(ctx, documentID); err == nil {
		return v, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("resolve version of %s: %w", documentID, err)
	}

	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("resolve version of %s: %w", documentID, err)
	}
	subject, err := p.embedded(ctx, doc)
	if err != nil {
		return nil, err
	}

	if candidateIDs == nil {
		docs, err := p.store.ListDocuments(ctx, storage.ListOptions{Workspace: doc.Workspace, Limit: p.maxCandidates + 1})
		if err != nil {
			return nil, fmt.Errorf("failed to list candidates: %w", err)
		}
		for _, d := range docs {
			candidateIDs = append(candidateIDs, d.ID)
		}
	}
	candidates, err := p.candidates(ctx, documentID, candidateIDs)
	if err != nil {
		return nil, err
	}

	decision := p.resolver.Resolve(subject, candidates)
	p.logger.Debug("lineage decision",
		zap.String("document_id", documentID),
		zap.Int("candidates", len(candidates)),
		zap.String("lineage_id", decision.LineageID),
		zap.String("matched", decision.MatchedDocumentID))
	return p.ledger.Assign(ctx, documentID, decision)
}

func (p *Pipeline) embedded(ctx context.Context, doc *models.Document) (lineage.Embedded, error) {
	chunks, err := p.store.GetChunksByDocumentID(ctx, doc.ID)
	if err != nil {
		return lineage.Embedded{}, fmt.Errorf("failed to load chunks of %s: %w", doc.ID, err)
	}
	e := lineage.Embedded{DocumentID: doc.ID, CreatedAt: doc.CreatedAt}
	for _, ch := range chunks {
		if len(ch.Embedding) > 0 {
			e.Embeddings = append(e.Embeddings, ch.Embedding)
		}
	}
	return e, nil
}

func (p *Pipeline) candidates(ctx context.Context, documentID string, ids []string) ([]lineage.Candidate, error) {
	out := make([]lineage.Candidate, 0, len(ids))
	for _, id := range ids {
		if id == documentID {
			continue
		}
		v, err := p.store.GetVersion(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load version of %s: %w", id, err)
		}
		doc, err := p.store.GetDocument(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load candidate %s: %w", id, err)
		}
		e, err := p.embedded(ctx, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, lineage.Candidate{Embedded: e, LineageID: v.LineageID})
	}
	return out, nil
}

// Outcome is the result of Process.
type Outcome struct {
	Document *models.Document        `json:"document"`
	Chunks   int                     `json:"chunks"`
	Version  *models.DocumentVersion `json:"version"`
	Analysis *models.AnalysisResult  `json:"analysis"`
	// Reused is true when the file had already been processed.
	Reused bool `json:"reused,omitempty"`
}

// Process ingests, versions and analyzes a document in one call.
func (p *Pipeline) Process(ctx context.Context, input *models.DocumentInput) (*Outcome, error) {
	doc, chunks, err := p.ingest(ctx, input)
	if err != nil {
		return nil, err
	}
	version, err := p.ResolveVersion(ctx, doc.ID, nil)
	if err != nil {
		return nil, err
	}
	analysis, err := p.Analyze(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Document: doc, Chunks: len(chunks), Version: version, Analysis: analysis}, nil
}

// ProcessFile extracts the text of the file at path and processes it. The document ID is
// derived from the path and content, so processing an unchanged file again returns the
// stored outcome with Reused set instead of analyzing it a second time.
func (p *Pipeline) ProcessFile(ctx context.Context, path, workspace string) (*Outcome, error) {
	input, err := p.ReadFile(path, workspace)
	if err != nil {
		return nil, err
	}
	if out, err := p.storedOutcome(ctx, input.ID); err != nil || out != nil {
		return out, err
	}
	return p.Process(ctx, input)
}

// storedOutcome returns the outcome of an earlier run for documentID, or nil when the
// document is unknown or was never analyzed.
func (p *Pipeline) storedOutcome(ctx context.Context, documentID string) (*Outcome, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	analyses, err := p.store.ListAnalyses(ctx, documentID)
	if err != nil || len(analyses) == 0 {
		return nil, err
	}
	chunks, err := p.store.GetChunksByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	version, err := p.ResolveVersion(ctx, documentID, nil)
	if err != nil {
		return nil, err
	}
	p.logger.Info("File already processed", zap.String("document_id", documentID))
	return &Outcome{Document: doc, Chunks: len(chunks), Version: version, Analysis: analyses[0], Reused: true}, nil
}

// ReadFile extracts the text of the file at path into a document input.
func (p *Pipeline) ReadFile(path, workspace string) (*models.DocumentInput, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	text, err := p.extractor.Extract(abs)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	normalized := indexer.Preprocess(text)
	if normalized == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNoText)
	}
	return &models.DocumentInput{
		ID:        fileid.DocumentID(abs, indexer.ContentHash(normalized)),
		Title:     filepath.Base(abs),
		Workspace: workspace,
		Content:   text,
		Metadata:  map[string]interface{}{"source_path": abs},
	}, nil
}
