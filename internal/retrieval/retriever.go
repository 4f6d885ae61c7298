// Package retrieval gathers ranked, deduplicated clause evidence for one topic of one document.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hyperjump/clausewise/internal/config"
	"github.com/hyperjump/clausewise/internal/embedding"
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/topics"
	"github.com/hyperjump/clausewise/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTopK is the per-phrasing neighbour count used when none is configured.
const DefaultTopK = 5

// ErrUnknownTopic is returned for a topic missing from the registry.
var ErrUnknownTopic = errors.New("unknown topic")

// Retriever issues a topic's query phrasings against the vector index.
type Retriever struct {
	registry *topics.Registry
	embedder embedding.Embedder
	index    vector.VectorIndex
	cfg      config.RetrievalConfig
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever.
func NewRetriever(registry *topics.Registry, embedder embedding.Embedder, index vector.VectorIndex, cfg config.RetrievalConfig, opts ...Option) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	r := &Retriever{
		registry: registry,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns evidence for topic from documentID, most relevant first. Each phrasing
// is queried concurrently; a chunk found by several phrasings keeps its best score.
// A document with no matching chunks yields an empty slice and a nil error.
func (r *Retriever) Retrieve(ctx context.Context, documentID string, topic models.Topic) ([]*models.EvidenceItem, error) {
	spec, ok := r.registry.Lookup(topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	perPhrasing := make([][]*vector.Match, len(spec.QueryPhrasings))
	g, gctx := errgroup.WithContext(ctx)
	for i, phrasing := range spec.QueryPhrasings {
		i, phrasing := i, phrasing
		g.Go(func() error {
			vec, err := r.embedder.Embed(gctx, phrasing)
			if err != nil {
				return fmt.Errorf("embed query %q: %w", phrasing, err)
			}
			matches, err := r.index.Query(gctx, vec, r.cfg.TopK, vector.Filter{DocumentID: documentID})
			if err != nil {
				return fmt.Errorf("query %q: %w", phrasing, err)
			}
			perPhrasing[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("retrieve %s evidence: %w", topic, err)
	}

	evidence := Merge(topic, spec.QueryPhrasings, perPhrasing, r.cfg.MinRelevance, r.cfg.MaxEvidence)
	r.logger.Debug("retrieval evidence gathered",
		zap.String("doc_id", documentID),
		zap.String("topic", string(topic)),
		zap.Int("items", len(evidence)))
	return evidence, nil
}

// Merge combines per-phrasing matches into evidence: scores are clamped into [0,1],
// items at or below minRelevance are dropped, duplicates keep their highest score (the
// earlier phrasing wins a tie), and the result is sorted by relevance descending, then
// chunk index and chunk ID. maxItems <= 0 means no cap.
func Merge(topic models.Topic, phrasings []string, perPhrasing [][]*vector.Match, minRelevance float64, maxItems int) []*models.EvidenceItem {
	best := make(map[string]*models.EvidenceItem)
	for i, matches := range perPhrasing {
		for _, m := range matches {
			if m == nil {
				continue
			}
			score := vector.Clamp01(m.Score)
			if score <= minRelevance {
				continue
			}
			if cur, ok := best[m.ChunkID]; ok && cur.RelevanceScore >= score {
				continue
			}
			best[m.ChunkID] = &models.EvidenceItem{
				Topic:          topic,
				ChunkID:        m.ChunkID,
				ChunkIndex:     m.ChunkIndex,
				Text:           m.Text,
				RelevanceScore: score,
				Query:          phrasings[i],
			}
		}
	}
	out := make([]*models.EvidenceItem, 0, len(best))
	for _, item := range best {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.ChunkID < b.ChunkID
	})
	if maxItems > 0 && len(out) > maxItems {
		out = out[:maxItems]
	}
	return out
}
