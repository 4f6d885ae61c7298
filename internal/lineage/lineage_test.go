package lineage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/storage"
)

func TestSimilarity(t *testing.T) {
	a := [][]float32{{1, 0, 0}, {0, 1, 0}}
	scaled := [][]float32{{5, 0, 0}, {0, 0.2, 0}}
	sim, ok := Similarity(a, scaled)
	if !ok || sim < 0.999999 {
		t.Errorf("scale-stable similarity = %v", sim)
	}
	b := [][]float32{{0, 0, 1}}
	ab, _ := Similarity(a, b)
	ba, _ := Similarity(b, a)
	if ab != ba {
		t.Errorf("not symmetric: %v vs %v", ab, ba)
	}
	if _, ok := Similarity(nil, a); ok {
		t.Error("empty side should not be comparable")
	}
	if _, ok := Similarity(a, [][]float32{{1, 0}}); ok {
		t.Error("dimension mismatch should not be comparable")
	}
}

func TestResolve(t *testing.T) {
	now := time.Now()
	subject := Embedded{DocumentID: "s", Embeddings: [][]float32{{1, 0.1, 0}}}
	near := Candidate{Embedded: Embedded{DocumentID: "near", CreatedAt: now, Embeddings: [][]float32{{1, 0.12, 0}}}, LineageID: "L1"}
	far := Candidate{Embedded: Embedded{DocumentID: "far", CreatedAt: now, Embeddings: [][]float32{{0, 0, 1}}}, LineageID: "L2"}
	unversioned := Candidate{Embedded: Embedded{DocumentID: "u", Embeddings: [][]float32{{1, 0.1, 0}}}}
	self := Candidate{Embedded: Embedded{DocumentID: "s", Embeddings: [][]float32{{1, 0.1, 0}}}, LineageID: "L3"}

	r := NewResolver(0.85)
	d := r.Resolve(subject, []Candidate{far, near, unversioned, self})
	if d.NewLineage() || d.LineageID != "L1" || d.MatchedDocumentID != "near" || d.Similarity == nil {
		t.Errorf("decision = %+v", d)
	}

	d = r.Resolve(subject, []Candidate{far})
	if !d.NewLineage() || d.Similarity == nil || *d.Similarity > 0.1 {
		t.Errorf("unrelated decision = %+v", d)
	}
	if d := r.Resolve(subject, nil); !d.NewLineage() || d.Similarity != nil {
		t.Errorf("no candidates = %+v", d)
	}

	strict := NewResolver(1)
	if d := strict.Resolve(subject, []Candidate{near}); !d.NewLineage() {
		t.Errorf("threshold 1 should reject near duplicate: %+v", d)
	}
	if NewResolver(0).Threshold() != DefaultThreshold || NewResolver(1.5).Threshold() != DefaultThreshold {
		t.Error("out-of-range threshold should fall back to default")
	}
}

func TestResolve_TieBreaks(t *testing.T) {
	now := time.Now()
	emb := [][]float32{{1, 0}}
	subject := Embedded{DocumentID: "s", Embeddings: emb}
	older := Candidate{Embedded: Embedded{DocumentID: "a", CreatedAt: now.Add(-time.Hour), Embeddings: emb}, LineageID: "old"}
	newer := Candidate{Embedded: Embedded{DocumentID: "b", CreatedAt: now, Embeddings: emb}, LineageID: "new"}
	sameTime := Candidate{Embedded: Embedded{DocumentID: "a2", CreatedAt: now, Embeddings: emb}, LineageID: "same"}

	r := NewResolver(0.85)
	if d := r.Resolve(subject, []Candidate{older, newer}); d.LineageID != "new" {
		t.Errorf("most recent should win, got %+v", d)
	}
	if d := r.Resolve(subject, []Candidate{newer, sameTime}); d.LineageID != "same" {
		t.Errorf("smaller document ID should win, got %+v", d)
	}
	if d := r.Resolve(subject, []Candidate{sameTime, newer}); d.LineageID != "same" {
		t.Errorf("order of candidates should not matter, got %+v", d)
	}
}

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "lineage.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLedger_VersionSequence(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newStore(t))
	r := NewResolver(0.85)

	d1 := Embedded{DocumentID: "D1", Embeddings: [][]float32{{1, 0, 0}, {0.9, 0.1, 0}}}
	v1, err := ledger.Assign(ctx, d1.DocumentID, r.Resolve(d1, nil))
	if err != nil {
		t.Fatal(err)
	}
	if v1.VersionNumber != 1 || v1.SimilarityToPrevious != nil {
		t.Errorf("D1 = %+v", v1)
	}

	known := []Candidate{{Embedded: d1, LineageID: v1.LineageID}}
	d2 := Embedded{DocumentID: "D2", Embeddings: [][]float32{{1, 0.02, 0}, {0.88, 0.1, 0}}}
	v2, err := ledger.Assign(ctx, d2.DocumentID, r.Resolve(d2, known))
	if err != nil {
		t.Fatal(err)
	}
	if v2.LineageID != v1.LineageID || v2.VersionNumber != 2 || v2.SimilarityToPrevious == nil {
		t.Errorf("D2 = %+v", v2)
	}

	known = append(known, Candidate{Embedded: d2, LineageID: v2.LineageID})
	d3 := Embedded{DocumentID: "D3", Embeddings: [][]float32{{0, 0, 1}}}
	v3, err := ledger.Assign(ctx, d3.DocumentID, r.Resolve(d3, known))
	if err != nil {
		t.Fatal(err)
	}
	if v3.LineageID == v1.LineageID || v3.VersionNumber != 1 || v3.SimilarityToPrevious != nil {
		t.Errorf("D3 = %+v", v3)
	}

	again, err := ledger.Assign(ctx, "D2", Decision{})
	if err != nil {
		t.Fatal(err)
	}
	if again.LineageID != v2.LineageID || again.VersionNumber != 2 {
		t.Errorf("assignment should not be revised: %+v", again)
	}
}

func TestLedger_SimilarityToLatestVersion(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	ledger := NewLedger(store)
	put := func(id string, emb ...[]float32) Embedded {
		t.Helper()
		if err := store.CreateDocument(ctx, &models.Document{ID: id, Content: id}); err != nil {
			t.Fatal(err)
		}
		var chunks []*models.DocumentChunk
		for i, e := range emb {
			chunks = append(chunks, &models.DocumentChunk{ID: models.ChunkID(id, i), DocumentID: id, Content: id, ChunkIndex: i, Embedding: e})
		}
		if err := store.ReplaceChunks(ctx, id, chunks); err != nil {
			t.Fatal(err)
		}
		return Embedded{DocumentID: id, Embeddings: emb}
	}

	a := put("A", []float32{1, 0, 0})
	b := put("B", []float32{0.6, 0.8, 0})
	c := put("C", []float32{1, 0.05, 0})
	v1, err := ledger.Assign(ctx, a.DocumentID, Decision{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Assign(ctx, b.DocumentID, Decision{LineageID: v1.LineageID, MatchedDocumentID: "A"}); err != nil {
		t.Fatal(err)
	}

	// C matches A best, but its recorded similarity is measured against B, version 2.
	d := NewResolver(0.5).Resolve(c, []Candidate{{Embedded: a, LineageID: v1.LineageID}, {Embedded: b, LineageID: v1.LineageID}})
	if d.MatchedDocumentID != "A" {
		t.Fatalf("decision = %+v", d)
	}
	v3, err := ledger.Assign(ctx, c.DocumentID, d)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := Similarity(c.Embeddings, b.Embeddings)
	if v3.VersionNumber != 3 || v3.SimilarityToPrevious == nil || *v3.SimilarityToPrevious != want {
		t.Errorf("v3 = %+v, want similarity %v", v3, want)
	}
	if *v3.SimilarityToPrevious == *d.Similarity {
		t.Error("similarity should not be the matched candidate's score")
	}
}

func TestLedger_ConcurrentAssign(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newStore(t))
	root, err := ledger.Assign(ctx, "root", Decision{})
	if err != nil {
		t.Fatal(err)
	}
	sim := 0.9
	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := ledger.Assign(ctx, fmt.Sprintf("doc-%d", i), Decision{LineageID: root.LineageID, Similarity: &sim}); err != nil {
				t.Errorf("Assign: %v", err)
			}
		}(i)
	}
	wg.Wait()

	store := ledger.store
	versions, err := store.ListLineage(ctx, root.LineageID)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != n+1 {
		t.Fatalf("lineage has %d versions", len(versions))
	}
	for i, v := range versions {
		if v.VersionNumber != i+1 {
			t.Errorf("version %d numbered %d", i, v.VersionNumber)
		}
	}
}
