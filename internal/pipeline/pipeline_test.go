package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/clausewise/internal/config"
	"github.com/hyperjump/clausewise/internal/embedding"
	"github.com/hyperjump/clausewise/internal/extract"
	"github.com/hyperjump/clausewise/internal/indexer"
	"github.com/hyperjump/clausewise/internal/keyword"
	"github.com/hyperjump/clausewise/internal/llm"
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/orchestrator"
	"github.com/hyperjump/clausewise/internal/retrieval"
	"github.com/hyperjump/clausewise/internal/storage"
	"github.com/hyperjump/clausewise/internal/topics"
	"github.com/hyperjump/clausewise/internal/vector"
)

const dims = 128

var legalText = strings.Repeat("Indemnity and limitation of liability apply to the supplier. ", 8)

type testEnv struct {
	p     *Pipeline
	store *storage.SQLiteStorage
}

// uncappedLegal answers Legal with missing indemnity and liability caps and every other
// topic with no signals.
func uncappedLegal(model string, p llm.Prompt) (string, error) {
	if strings.Contains(p.System, "a Legal contract") {
		return `{"analysis": "caps missing", "features": {"indemnity_cap_present": false, "liability_cap_present": false}}`, nil
	}
	return `{"analysis": "nothing notable", "features": {}}`, nil
}

func newTestEnv(t *testing.T, client llm.Client) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	vecIndex, err := vector.NewMemoryIndex(dims)
	if err != nil {
		t.Fatal(err)
	}
	clauses, err := keyword.NewMemBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = clauses.Close() })

	embedder := embedding.NewMockEmbedder(dims)
	registry := topics.Default()
	idx := indexer.NewIndexer(store, embedder, vecIndex,
		config.ChunkingConfig{ChunkSize: 40, ChunkOverlap: 5}, indexer.WithClauseIndex(clauses))
	retriever := retrieval.NewRetriever(registry, embedder, vecIndex, config.RetrievalConfig{TopK: 5})
	orch, err := orchestrator.New(registry, retriever, client, []string{"A", "B"})
	if err != nil {
		t.Fatal(err)
	}
	p := New(store, idx, orch, vecIndex, config.LineageConfig{SimilarityThreshold: 0.85}, WithClauseIndex(clauses))
	return &testEnv{p: p, store: store}
}

func TestProcess_EndToEnd(t *testing.T) {
	env := newTestEnv(t, llm.NewFuncClient(uncappedLegal))
	ctx := context.Background()

	out, err := env.p.Process(ctx, &models.DocumentInput{ID: "msa", Title: "msa.txt", Workspace: "acme", Content: legalText})
	if err != nil {
		t.Fatal(err)
	}
	if out.Chunks != 2 || out.Version.VersionNumber != 1 {
		t.Errorf("outcome = %+v", out)
	}
	a := out.Analysis
	if a.CompositeScore != 5.5 || a.RiskTier != models.TierYellow {
		t.Errorf("score = %v %s", a.CompositeScore, a.RiskTier)
	}
	if len(a.Findings) != 5 || a.Version != 1 || a.ID == "" {
		t.Errorf("analysis = %+v", a)
	}
	if f := a.Finding(models.TopicLegal); f.Status != models.FindingComplete || f.ModelUsed != "A" {
		t.Errorf("legal finding = %+v", f)
	}

	stored, err := env.p.Analyses(ctx, "msa")
	if err != nil || len(stored) != 1 || stored[0].ID != a.ID {
		t.Fatalf("stored analyses = %v, %v", stored, err)
	}

	again, err := env.p.Analyze(ctx, "msa")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID == a.ID {
		t.Error("a new run must create a new record")
	}
	stored, _ = env.p.Analyses(ctx, "msa")
	if len(stored) != 2 {
		t.Errorf("expected 2 analyses, got %d", len(stored))
	}
}

func TestProcess_OfflineDegradesToGreen(t *testing.T) {
	env := newTestEnv(t, llm.NewFuncClient(func(string, llm.Prompt) (string, error) {
		return "", fmt.Errorf("%w: no API key configured", llm.ErrInferenceFailure)
	}))
	out, err := env.p.Process(context.Background(), &models.DocumentInput{Content: legalText})
	if err != nil {
		t.Fatal(err)
	}
	if out.Analysis.CompositeScore != 10 || out.Analysis.RiskTier != models.TierGreen {
		t.Errorf("offline analysis = %v %s", out.Analysis.CompositeScore, out.Analysis.RiskTier)
	}
	for _, f := range out.Analysis.Findings {
		if f.Status == models.FindingComplete {
			t.Errorf("%s should not be complete without a model", f.Topic)
		}
	}
}

func TestResolveVersion_Lineage(t *testing.T) {
	env := newTestEnv(t, llm.NewFuncClient(uncappedLegal))
	ctx := context.Background()

	d1 := "The supplier will deliver the software platform and provide support services for twelve months. " +
		"Either party may terminate with ninety days written notice. Fees are payable within thirty days of invoice. " +
		"The customer owns all data processed by the platform and may audit the supplier annually."
	d2 := strings.Replace(d1, "twelve", "twenty four", 1)
	d3 := "Lunar greenhouse botanists cultivate hydroponic basil, saffron crocus and dwarf citrus beneath " +
		"polycarbonate domes while robotic pollinators hum quietly across terraced regolith beds."

	version := func(id, text string) *models.DocumentVersion {
		t.Helper()
		if _, err := env.p.Ingest(ctx, &models.DocumentInput{ID: id, Workspace: "acme", Content: text}); err != nil {
			t.Fatal(err)
		}
		v, err := env.p.ResolveVersion(ctx, id, nil)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}

	v1 := version("D1", d1)
	v2 := version("D2", d2)
	v3 := version("D3", d3)
	if v1.VersionNumber != 1 {
		t.Errorf("D1 = %+v", v1)
	}
	if v2.LineageID != v1.LineageID || v2.VersionNumber != 2 || v2.SimilarityToPrevious == nil {
		t.Errorf("D2 = %+v", v2)
	}
	if v3.LineageID == v1.LineageID || v3.VersionNumber != 1 {
		t.Errorf("D3 = %+v", v3)
	}

	again, err := env.p.ResolveVersion(ctx, "D2", []string{})
	if err != nil || again.VersionNumber != 2 || again.LineageID != v1.LineageID {
		t.Errorf("resolved version must not change: %+v, %v", again, err)
	}

	// Explicit candidate list restricted to an unrelated document starts a new lineage.
	if _, err := env.p.Ingest(ctx, &models.DocumentInput{ID: "D4", Workspace: "acme", Content: d1 + " Amended."}); err != nil {
		t.Fatal(err)
	}
	v4, err := env.p.ResolveVersion(ctx, "D4", []string{"D3"})
	if err != nil {
		t.Fatal(err)
	}
	if v4.LineageID == v1.LineageID || v4.VersionNumber != 1 {
		t.Errorf("D4 = %+v", v4)
	}

	if _, err := env.p.ResolveVersion(ctx, "missing", nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, llm.NewFuncClient(uncappedLegal))
	ctx := context.Background()

	first, err := env.p.Process(ctx, &models.DocumentInput{ID: "a", Title: "msa-v1.txt", Content: legalText})
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.p.Process(ctx, &models.DocumentInput{ID: "b", Title: "msa-v1-copy.txt", Content: legalText})
	if err != nil {
		t.Fatal(err)
	}
	if second.Version.LineageID != first.Version.LineageID || second.Version.VersionNumber != 2 {
		t.Fatalf("identical upload should join the lineage: %+v", second.Version)
	}

	if err := env.p.DeleteDocument(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	history, err := env.p.History(ctx, first.Version.LineageID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d entries", len(history))
	}
	if !history[0].Deleted || history[1].Deleted {
		t.Errorf("deleted flags = %v, %v", history[0].Deleted, history[1].Deleted)
	}
	if history[1].Latest == nil || history[1].Latest.CompositeScore != 5.5 {
		t.Errorf("latest analysis = %+v", history[1].Latest)
	}
	if _, err := env.p.History(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistory_MarksDuplicates(t *testing.T) {
	env := newTestEnv(t, llm.NewFuncClient(uncappedLegal))
	ctx := context.Background()
	for _, id := range []string{"x", "y"} {
		if _, err := env.p.Ingest(ctx, &models.DocumentInput{ID: id, Content: legalText}); err != nil {
			t.Fatal(err)
		}
		if _, err := env.p.ResolveVersion(ctx, id, nil); err != nil {
			t.Fatal(err)
		}
	}
	v, _ := env.p.Version(ctx, "x")
	history, err := env.p.History(ctx, v.LineageID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Duplicate || !history[1].Duplicate {
		t.Errorf("duplicate flags wrong: %+v %+v", history[0], history[1])
	}
}

func TestIngest_NoText(t *testing.T) {
	env := newTestEnv(t, llm.NewScriptedClient(nil))
	ctx := context.Background()
	if _, err := env.p.Ingest(ctx, &models.DocumentInput{Content: " \n\t "}); !errors.Is(err, ErrNoText) {
		t.Errorf("expected ErrNoText, got %v", err)
	}

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("   \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := env.p.ProcessFile(ctx, empty, ""); !errors.Is(err, ErrNoText) {
		t.Errorf("expected ErrNoText, got %v", err)
	}
	scan := filepath.Join(dir, "scan.png")
	if err := os.WriteFile(scan, []byte{0x89, 'P', 'N', 'G'}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := env.p.ProcessFile(ctx, scan, ""); !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestProcessFile(t *testing.T) {
	env := newTestEnv(t, llm.NewFuncClient(uncappedLegal))
	path := filepath.Join(t.TempDir(), "vendor-msa.txt")
	if err := os.WriteFile(path, []byte(legalText), 0644); err != nil {
		t.Fatal(err)
	}
	out, err := env.p.ProcessFile(context.Background(), path, "legal-team")
	if err != nil {
		t.Fatal(err)
	}
	if out.Document.Title != "vendor-msa.txt" || out.Document.Workspace != "legal-team" || out.Document.ID == "" {
		t.Errorf("document = %+v", out.Document)
	}
	if out.Document.Metadata["source_path"] != path {
		t.Errorf("metadata = %v", out.Document.Metadata)
	}

	again, err := env.p.ProcessFile(context.Background(), path, "legal-team")
	if err != nil {
		t.Fatal(err)
	}
	if !again.Reused || again.Document.ID != out.Document.ID || again.Analysis.ID != out.Analysis.ID {
		t.Errorf("unchanged file should be reused: %+v", again)
	}

	if err := os.WriteFile(path, []byte(legalText+" Amended by the parties."), 0644); err != nil {
		t.Fatal(err)
	}
	edited, err := env.p.ProcessFile(context.Background(), path, "legal-team")
	if err != nil {
		t.Fatal(err)
	}
	if edited.Reused || edited.Document.ID == out.Document.ID {
		t.Errorf("edited file should be a new document: %+v", edited.Document)
	}
	if edited.Version.LineageID != out.Version.LineageID || edited.Version.VersionNumber != 2 {
		t.Errorf("edited file should be version 2: %+v", edited.Version)
	}
}

func TestAnalyze_UnknownDocument(t *testing.T) {
	env := newTestEnv(t, llm.NewScriptedClient(nil))
	if _, err := env.p.Analyze(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchClausesAndStatus(t *testing.T) {
	env := newTestEnv(t, llm.NewFuncClient(uncappedLegal))
	ctx := context.Background()
	if _, err := env.p.Ingest(ctx, &models.DocumentInput{ID: "msa", Content: legalText}); err != nil {
		t.Fatal(err)
	}
	hits, err := env.p.SearchClauses(ctx, "indemnity", keyword.SearchOptions{DocumentID: "msa"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].DocumentID != "msa" {
		t.Errorf("hits = %v", hits)
	}
	st, err := env.p.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Storage.Documents != 1 || st.Storage.Chunks != 2 || st.VectorIndexSize != 2 || st.ClauseIndexDocs != 2 {
		t.Errorf("status = %+v %+v", st, st.Storage)
	}
}

func TestProcess_ConcurrentUnrelatedDocuments(t *testing.T) {
	env := newTestEnv(t, llm.NewFuncClient(uncappedLegal))
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var b strings.Builder
			for j := 0; j < 60; j++ {
				fmt.Fprintf(&b, "doc%dword%d ", i, j)
			}
			if _, err := env.p.Process(ctx, &models.DocumentInput{ID: fmt.Sprintf("doc%d", i), Content: b.String()}); err != nil {
				t.Errorf("Process doc%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	taken := make(map[string]bool)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("doc%d", i)
		chunks, err := env.store.GetChunksByDocumentID(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 2 {
			t.Errorf("%s has %d chunks", id, len(chunks))
		}
		for k, ch := range chunks {
			if ch.ChunkIndex != k || ch.ID != models.ChunkID(id, k) || !strings.HasPrefix(ch.Content, id+"word") {
				t.Errorf("%s chunk %d corrupted: %+v", id, k, ch)
			}
		}
		v, err := env.p.Version(ctx, id)
		if err != nil {
			t.Fatalf("%s has no version: %v", id, err)
		}
		key := fmt.Sprintf("%s/%d", v.LineageID, v.VersionNumber)
		if taken[key] {
			t.Errorf("version %s assigned twice", key)
		}
		taken[key] = true
	}
}
