package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func rec(doc string, i int, v ...float32) Record {
	return Record{DocumentID: doc, ChunkID: fmt.Sprintf("%s_chunk_%d", doc, i), ChunkIndex: i, Text: fmt.Sprintf("%s text %d", doc, i), Vector: v}
}

func TestMemoryIndex_UpsertQuery(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	if err := idx.Upsert(ctx, []Record{
		rec("a", 0, 1, 0, 0),
		rec("a", 1, 0.9, 0.1, 0),
		rec("a", 2, 0, 1, 0),
		rec("b", 0, 1, 0, 0),
	}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 4 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Query(ctx, []float32{1, 0, 0}, 2, Filter{DocumentID: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "a_chunk_0" || results[1].ChunkID != "a_chunk_1" {
		t.Errorf("unexpected order: %s, %s", results[0].ChunkID, results[1].ChunkID)
	}
	if results[0].Score < 0.9999 || results[0].Text != "a text 0" {
		t.Errorf("top match = %+v", results[0])
	}
	for _, r := range results {
		if r.DocumentID != "a" {
			t.Errorf("filter leaked chunk from %s", r.DocumentID)
		}
	}

	all, _ := idx.Query(ctx, []float32{1, 0, 0}, 10, Filter{})
	if len(all) != 4 {
		t.Errorf("unfiltered query returned %d", len(all))
	}
}

func TestMemoryIndex_UpsertIsIdempotent(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []Record{rec("d", 0, 1, 0), rec("d", 1, 0, 1)})
	_ = idx.Upsert(ctx, []Record{rec("d", 0, 0, 1), rec("d", 1, 0, 1)})
	if idx.Size() != 2 {
		t.Errorf("Size=%d after re-upsert, want 2", idx.Size())
	}
	res, _ := idx.Query(ctx, []float32{0, 1}, 1, Filter{DocumentID: "d"})
	if res[0].ChunkID != "d_chunk_0" || res[0].Score < 0.999 {
		t.Errorf("replaced vector not visible: %+v", res[0])
	}
}

func TestMemoryIndex_TiesBreakByChunkIndex(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []Record{rec("d", 2, 1, 0), rec("d", 0, 1, 0), rec("d", 1, 1, 0)})
	res, _ := idx.Query(ctx, []float32{1, 0}, 3, Filter{DocumentID: "d"})
	for i, r := range res {
		if r.ChunkIndex != i {
			t.Errorf("res[%d].ChunkIndex = %d", i, r.ChunkIndex)
		}
	}
}

func TestMemoryIndex_Validation(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	if err := idx.Upsert(ctx, []Record{rec("d", 0, 1, 0, 0)}); err == nil {
		t.Error("expected dimension error")
	}
	if err := idx.Upsert(ctx, []Record{{DocumentID: "d", Vector: []float32{1, 0}}}); err == nil {
		t.Error("expected missing chunk ID error")
	}
	if _, err := idx.Query(ctx, []float32{1}, 1, Filter{}); err == nil {
		t.Error("expected query dimension error")
	}
	if res, err := idx.Query(ctx, []float32{1, 0}, 5, Filter{DocumentID: "missing"}); err != nil || len(res) != 0 {
		t.Errorf("unknown document: %v, %v", res, err)
	}
}

func TestMemoryIndex_DeleteDocument(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []Record{rec("x", 0, 1, 0), rec("x", 1, 1, 1), rec("y", 0, 0, 1)})
	if err := idx.DeleteDocument(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	res, _ := idx.Query(ctx, []float32{1, 0}, 5, Filter{DocumentID: "x"})
	if len(res) != 0 {
		t.Errorf("deleted document still returns %d matches", len(res))
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", "vectors.gob")
	ctx := context.Background()
	idx, _ := NewMemoryIndex(2)
	_ = idx.Upsert(ctx, []Record{rec("d", 0, 1, 0), rec("d", 1, 0, 1)})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size = %d", loaded.Size())
	}
	res, _ := loaded.Query(ctx, []float32{0, 1}, 1, Filter{DocumentID: "d"})
	if len(res) != 1 || res[0].ChunkID != "d_chunk_1" || res[0].Text != "d text 1" {
		t.Errorf("loaded query = %+v", res)
	}

	wrongDim, _ := NewMemoryIndex(3)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
	if err := loaded.Load(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}

func TestMemoryIndex_ConcurrentDocuments(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	var wg sync.WaitGroup
	for d := 0; d < 8; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc%d", d)
			for i := 0; i < 20; i++ {
				_ = idx.Upsert(ctx, []Record{rec(doc, i, float32(d+1), float32(i))})
				_, _ = idx.Query(ctx, []float32{1, 1}, 3, Filter{DocumentID: doc})
			}
		}(d)
	}
	wg.Wait()
	if idx.Size() != 160 {
		t.Errorf("Size = %d, want 160", idx.Size())
	}
	for d := 0; d < 8; d++ {
		doc := fmt.Sprintf("doc%d", d)
		res, _ := idx.Query(ctx, []float32{1, 0}, 100, Filter{DocumentID: doc})
		if len(res) != 20 {
			t.Errorf("%s has %d chunks", doc, len(res))
		}
	}
}
