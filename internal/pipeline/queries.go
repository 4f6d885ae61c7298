package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/clausewise/internal/keyword"
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/storage"
)

// Document returns a stored document.
func (p *Pipeline) Document(ctx context.Context, id string) (*models.Document, error) {
	return p.store.GetDocument(ctx, id)
}

// Documents lists stored documents.
func (p *Pipeline) Documents(ctx context.Context, opts storage.ListOptions) ([]*models.Document, error) {
	return p.store.ListDocuments(ctx, opts)
}

// DeleteDocument removes a document from storage and every index. Its version record
// remains so lineage numbering is never reused.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) error {
	if _, err := p.store.GetDocument(ctx, id); err != nil {
		return err
	}
	return p.indexer.DeleteDocument(ctx, id)
}

// Analyses lists the stored analyses of a document, newest first.
func (p *Pipeline) Analyses(ctx context.Context, documentID string) ([]*models.AnalysisResult, error) {
	if _, err := p.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return p.store.ListAnalyses(ctx, documentID)
}

// Analysis returns one stored analysis.
func (p *Pipeline) Analysis(ctx context.Context, id string) (*models.AnalysisResult, error) {
	return p.store.GetAnalysis(ctx, id)
}

// Version returns the version record of a document.
func (p *Pipeline) Version(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	return p.store.GetVersion(ctx, documentID)
}

// HistoryEntry is one version of a lineage with its document and latest analysis.
type HistoryEntry struct {
	Version *models.DocumentVersion `json:"version"`
	Title   string                  `json:"title,omitempty"`
	// Deleted is true when the document was removed after being versioned.
	Deleted bool `json:"deleted,omitempty"`
	// Duplicate is true when the content is byte-identical to an earlier version.
	Duplicate bool                   `json:"duplicate,omitempty"`
	Latest    *models.AnalysisResult `json:"latest_analysis,omitempty"`
}

// History lists the versions of a lineage in order.
func (p *Pipeline) History(ctx context.Context, lineageID string) ([]*HistoryEntry, error) {
	versions, err := p.store.ListLineage(ctx, lineageID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	entries := make([]*HistoryEntry, 0, len(versions))
	for _, v := range versions {
		entry := &HistoryEntry{Version: v}
		doc, err := p.store.GetDocument(ctx, v.DocumentID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			entry.Deleted = true
		case err != nil:
			return nil, err
		default:
			entry.Title = doc.Title
			entry.Duplicate = seen[doc.ContentHash]
			seen[doc.ContentHash] = true
			analyses, err := p.store.ListAnalyses(ctx, doc.ID)
			if err != nil {
				return nil, err
			}
			if len(analyses) > 0 {
				entry.Latest = analyses[0]
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SearchClauses runs a keyword search over indexed clause text.
func (p *Pipeline) SearchClauses(ctx context.Context, query string, opts keyword.SearchOptions) ([]*keyword.ClauseHit, error) {
	if p.clauseIndex == nil {
		return nil, ErrSearchDisabled
	}
	return p.clauseIndex.Search(ctx, query, opts)
}

// Status summarizes stored records and index sizes.
type Status struct {
	Storage         *storage.Stats `json:"storage"`
	VectorIndexSize int            `json:"vector_index_size"`
	ClauseIndexDocs uint64         `json:"clause_index_docs"`
}

// Status reports record counts and index sizes.
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	st, err := p.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	out := &Status{Storage: st, VectorIndexSize: p.vectorIndex.Size()}
	if p.clauseIndex != nil {
		if n, err := p.clauseIndex.DocCount(); err == nil {
			out.ClauseIndexDocs = n
		}
	}
	return out, nil
}
