package lineage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/storage"
)

// Ledger assigns version numbers. Assignments within one lineage are serialized; the
// storage unique constraint backs this up across processes.
type Ledger struct {
	store  storage.Storage
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) LedgerOption {
	return func(lg *Ledger) { lg.logger = l }
}

// NewLedger returns a ledger backed by store.
func NewLedger(store storage.Storage, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store, logger: zap.NewNop(), locks: make(map[string]*sync.Mutex)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) lineageLock(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// Assign records documentID in the decided lineage with the next version number, or as
// version 1 of a new lineage. A document that already has a version keeps it.
func (l *Ledger) Assign(ctx context.Context, documentID string, d Decision) (*models.DocumentVersion, error) {
	existing, err := l.store.GetVersion(ctx, documentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup version of %s: %w", documentID, err)
	}

	lineageID := d.LineageID
	if lineageID == "" {
		lineageID = uuid.New().String()
	}

	lock := l.lineageLock(lineageID)
	lock.Lock()
	defer lock.Unlock()

	var similarity *float64
	if d.LineageID != "" {
		similarity, err = l.similarityToLatest(ctx, documentID, d)
		if err != nil {
			return nil, err
		}
	}
	v, err := l.store.AppendVersion(ctx, lineageID, documentID, similarity)
	if err != nil {
		return nil, fmt.Errorf("append version for %s: %w", documentID, err)
	}
	l.logger.Info("Version assigned",
		zap.String("document_id", documentID),
		zap.String("lineage_id", v.LineageID),
		zap.Int("version", v.VersionNumber))
	return v, nil
}

// similarityToLatest compares documentID with the highest version of the decided lineage.
// The resolver's score is kept when it matched that version, or when either side has no
// stored embeddings (the latest version may have been deleted).
func (l *Ledger) similarityToLatest(ctx context.Context, documentID string, d Decision) (*float64, error) {
	versions, err := l.store.ListLineage(ctx, d.LineageID)
	if errors.Is(err, storage.ErrNotFound) {
		return d.Similarity, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list lineage %s: %w", d.LineageID, err)
	}
	latest := versions[len(versions)-1].DocumentID
	if latest == d.MatchedDocumentID {
		return d.Similarity, nil
	}
	subject, err := l.embeddings(ctx, documentID)
	if err != nil {
		return nil, err
	}
	previous, err := l.embeddings(ctx, latest)
	if err != nil {
		return nil, err
	}
	sim, ok := Similarity(subject, previous)
	if !ok {
		return d.Similarity, nil
	}
	return &sim, nil
}

func (l *Ledger) embeddings(ctx context.Context, documentID string) ([][]float32, error) {
	chunks, err := l.store.GetChunksByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load chunks of %s: %w", documentID, err)
	}
	var out [][]float32
	for _, ch := range chunks {
		if len(ch.Embedding) > 0 {
			out = append(out, ch.Embedding)
		}
	}
	return out, nil
}
