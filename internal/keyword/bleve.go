package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/clausewise/internal/models"
)

const deletePageSize = 1000

// clauseDoc is the bleve document stored for one chunk.
type clauseDoc struct {
	DocumentID string  `json:"document_id"`
	Workspace  string  `json:"workspace"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	ChunkIndex float64 `json:"chunk_index"`
}

// BleveIndex implements ClauseIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If the path already exists, the existing index is opened and reused.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemBleveIndex creates an in-memory index. Used by tests and when no index path is configured.
func NewMemBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "indemnify" and
	// "indemnification" stay distinct terms in clause search.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("document_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("workspace", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("chunk_index", bleve.NewNumericFieldMapping())

	im.DefaultMapping = docMapping
	return im
}

// IndexChunks indexes every chunk of doc in one batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, ch := range chunks {
		cd := clauseDoc{
			DocumentID: doc.ID,
			Workspace:  doc.Workspace,
			Title:      normalizeTitle(doc.Title),
			Content:    ch.Content,
			ChunkIndex: float64(ch.ChunkIndex),
		}
		if err := batch.Index(ch.ID, cd); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", ch.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	return nil
}

// Search runs a match query over clause content and titles, filtered by document or workspace.
func (b *BleveIndex) Search(ctx context.Context, query string, opts SearchOptions) ([]*ClauseHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	req := bleve.NewSearchRequest(buildQuery(query, opts))
	req.Size = limit
	req.Fields = []string{"document_id", "title", "content", "chunk_index"}
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*ClauseHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		out = append(out, &ClauseHit{
			ChunkID:    hit.ID,
			DocumentID: fieldString(hit.Fields, "document_id"),
			Title:      fieldString(hit.Fields, "title"),
			Text:       fieldString(hit.Fields, "content"),
			ChunkIndex: fieldInt(hit.Fields, "chunk_index"),
			Score:      hit.Score,
		})
	}
	return out, nil
}

// buildQuery combines the text match with optional term filters on document and workspace.
func buildQuery(query string, opts SearchOptions) blevequery.Query {
	match := bleve.NewMatchQuery(query)
	if opts.FuzzyEnabled {
		fuzziness := opts.Fuzziness
		if fuzziness <= 0 {
			fuzziness = 1
		}
		match.SetFuzziness(fuzziness)
	}
	conjuncts := []blevequery.Query{match}
	if opts.DocumentID != "" {
		tq := bleve.NewTermQuery(opts.DocumentID)
		tq.SetField("document_id")
		conjuncts = append(conjuncts, tq)
	}
	if opts.Workspace != "" {
		tq := bleve.NewTermQuery(opts.Workspace)
		tq.SetField("workspace")
		conjuncts = append(conjuncts, tq)
	}
	if len(conjuncts) == 1 {
		return match
	}
	return bleve.NewConjunctionQuery(conjuncts...)
}

// DeleteDocument removes every chunk of docID, a page at a time.
func (b *BleveIndex) DeleteDocument(ctx context.Context, docID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tq := bleve.NewTermQuery(docID)
		tq.SetField("document_id")
		req := bleve.NewSearchRequest(tq)
		req.Size = deletePageSize
		results, err := b.index.Search(req)
		if err != nil {
			return fmt.Errorf("Bleve search failed: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete chunks of %s: %w", docID, err)
		}
		if len(results.Hits) < deletePageSize {
			return nil
		}
	}
}

// DocCount returns the total number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// normalizeTitle replaces underscores with spaces so the standard analyzer splits
// filenames like "acme_msa_2024.pdf" into searchable words.
func normalizeTitle(title string) string {
	return strings.ReplaceAll(title, "_", " ")
}

func fieldString(fields map[string]interface{}, name string) string {
	if s, ok := fields[name].(string); ok {
		return s
	}
	return ""
}

func fieldInt(fields map[string]interface{}, name string) int {
	if f, ok := fields[name].(float64); ok {
		return int(f)
	}
	return 0
}
