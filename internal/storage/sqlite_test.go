package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/clausewise/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorage_Documents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{
		ID:          "doc1",
		Title:       "MSA",
		Workspace:   "acme",
		Content:     "Content",
		ContentHash: "h1",
		Metadata:    map[string]interface{}{"source": "upload"},
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if err := store.CreateDocument(ctx, doc); err == nil {
		t.Error("duplicate ID should fail")
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "MSA" || got.Workspace != "acme" || got.ContentHash != "h1" || got.Metadata["source"] != "upload" {
		t.Errorf("got %+v", got)
	}

	_ = store.CreateDocument(ctx, &models.Document{ID: "doc2", Workspace: "other", Content: "x", ContentHash: "h1"})

	list, err := store.ListDocuments(ctx, ListOptions{Workspace: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "doc1" {
		t.Errorf("workspace listing = %v", list)
	}
	all, _ := store.ListDocuments(ctx, ListOptions{})
	if len(all) != 2 {
		t.Errorf("expected 2 docs, got %d", len(all))
	}

	dups, err := store.FindDocumentsByHash(ctx, "h1")
	if err != nil || len(dups) != 2 {
		t.Errorf("FindDocumentsByHash = %d, %v", len(dups), err)
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, "doc1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteDocument(ctx, "doc1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestSQLiteStorage_ReplaceChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.CreateDocument(ctx, &models.Document{ID: "d1", Content: "C"})

	first := []*models.DocumentChunk{
		{ID: models.ChunkID("d1", 0), DocumentID: "d1", Content: "one", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ID: models.ChunkID("d1", 1), DocumentID: "d1", Content: "two", ChunkIndex: 1, Embedding: []float32{0, 1}},
		{ID: models.ChunkID("d1", 2), DocumentID: "d1", Content: "three", ChunkIndex: 2},
	}
	if err := store.ReplaceChunks(ctx, "d1", first); err != nil {
		t.Fatal(err)
	}
	list, err := store.GetChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(list))
	}
	if list[1].Embedding[1] != 1 || list[2].Embedding != nil {
		t.Errorf("embeddings not round-tripped: %v, %v", list[1].Embedding, list[2].Embedding)
	}

	second := []*models.DocumentChunk{{ID: models.ChunkID("d1", 0), DocumentID: "d1", Content: "only", ChunkIndex: 0}}
	if err := store.ReplaceChunks(ctx, "d1", second); err != nil {
		t.Fatal(err)
	}
	list, _ = store.GetChunksByDocumentID(ctx, "d1")
	if len(list) != 1 || list[0].Content != "only" {
		t.Errorf("replace left %v", list)
	}

	got, err := store.GetChunk(ctx, "d1_chunk_0")
	if err != nil || got.Content != "only" {
		t.Errorf("GetChunk = %v, %v", got, err)
	}
	if _, err := store.GetChunk(ctx, "d1_chunk_2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	wrong := []*models.DocumentChunk{{ID: "x", DocumentID: "d2", Content: "x"}}
	if err := store.ReplaceChunks(ctx, "d1", wrong); err == nil {
		t.Error("expected error for chunk of another document")
	}
	list, _ = store.GetChunksByDocumentID(ctx, "d1")
	if len(list) != 1 {
		t.Errorf("failed replace should roll back, have %d chunks", len(list))
	}

	if err := store.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	list, _ = store.GetChunksByDocumentID(ctx, "d1")
	if len(list) != 0 {
		t.Errorf("chunks should cascade on delete, got %d", len(list))
	}
}

func TestSQLiteStorage_Analyses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.CreateDocument(ctx, &models.Document{ID: "d1", Content: "C"})

	older := &models.AnalysisResult{
		ID:             "a1",
		DocumentID:     "d1",
		Version:        1,
		CompositeScore: 5.5,
		RiskTier:       models.TierYellow,
		Findings: []*models.AgentFinding{{
			Topic:   models.TopicLegal,
			Signals: map[models.SignalKey]models.SignalValue{"liability_cap_present": models.Bool(false)},
			Status:  models.FindingComplete,
		}},
		Penalties: []models.AppliedPenalty{{Rule: "uncapped_liability", Topic: models.TopicLegal, Weight: 2.5}},
		CreatedAt: time.Now().Add(-time.Hour).UTC(),
	}
	newer := &models.AnalysisResult{ID: "a2", DocumentID: "d1", CompositeScore: 10, RiskTier: models.TierGreen}
	for _, r := range []*models.AnalysisResult{older, newer} {
		if err := store.SaveAnalysis(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	list, err := store.ListAnalyses(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "a2" {
		t.Fatalf("ListAnalyses order = %v", list)
	}
	got, err := store.GetAnalysis(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RiskTier != models.TierYellow || got.CompositeScore != 5.5 || len(got.Penalties) != 1 {
		t.Errorf("got %+v", got)
	}
	sig := got.Finding(models.TopicLegal).Signal("liability_cap_present")
	if sig.Kind != models.SignalBool || sig.Bool {
		t.Errorf("signal lost in round trip: %+v", sig)
	}
	if _, err := store.GetAnalysis(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_AppendVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v1, err := store.AppendVersion(ctx, "L1", "d1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v1.VersionNumber != 1 || v1.SimilarityToPrevious != nil {
		t.Errorf("v1 = %+v", v1)
	}
	sim := 0.93
	v2, err := store.AppendVersion(ctx, "L1", "d2", &sim)
	if err != nil {
		t.Fatal(err)
	}
	if v2.VersionNumber != 2 || v2.SimilarityToPrevious == nil || *v2.SimilarityToPrevious != 0.93 {
		t.Errorf("v2 = %+v", v2)
	}

	again, err := store.AppendVersion(ctx, "L2", "d2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.LineageID != "L1" || again.VersionNumber != 2 {
		t.Errorf("existing record should be returned unchanged, got %+v", again)
	}

	lineage, err := store.ListLineage(ctx, "L1")
	if err != nil {
		t.Fatal(err)
	}
	if len(lineage) != 2 || lineage[0].DocumentID != "d1" || lineage[1].DocumentID != "d2" {
		t.Errorf("lineage = %v", lineage)
	}
	if _, err := store.ListLineage(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetVersion(ctx, "d3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_AppendVersionConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.AppendVersion(ctx, "L", fmt.Sprintf("d%02d", i), nil); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AppendVersion: %v", err)
	}

	lineage, err := store.ListLineage(ctx, "L")
	if err != nil {
		t.Fatal(err)
	}
	if len(lineage) != n {
		t.Fatalf("lineage has %d versions, want %d", len(lineage), n)
	}
	for i, v := range lineage {
		if v.VersionNumber != i+1 {
			t.Errorf("version %d has number %d", i, v.VersionNumber)
		}
	}
}

func TestSQLiteStorage_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st, err := store.Stats(ctx)
	if err != nil || st.Documents != 0 {
		t.Errorf("Stats: %v, %+v", err, st)
	}
	_ = store.CreateDocument(ctx, &models.Document{ID: "x", Content: "c"})
	_ = store.ReplaceChunks(ctx, "x", []*models.DocumentChunk{{ID: "x_chunk_0", DocumentID: "x", Content: "c"}})
	_, _ = store.AppendVersion(ctx, "L", "x", nil)
	st, _ = store.Stats(ctx)
	if st.Documents != 1 || st.Chunks != 1 || st.Lineages != 1 {
		t.Errorf("Stats = %+v", st)
	}
}
