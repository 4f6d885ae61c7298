package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/clausewise/internal/config"
	"github.com/hyperjump/clausewise/internal/embedding"
	"github.com/hyperjump/clausewise/internal/indexer"
	"github.com/hyperjump/clausewise/internal/keyword"
	"github.com/hyperjump/clausewise/internal/llm"
	"github.com/hyperjump/clausewise/internal/orchestrator"
	"github.com/hyperjump/clausewise/internal/pipeline"
	"github.com/hyperjump/clausewise/internal/retrieval"
	"github.com/hyperjump/clausewise/internal/storage"
	"github.com/hyperjump/clausewise/internal/topics"
	"github.com/hyperjump/clausewise/internal/vector"
)

var contract = strings.Repeat("Indemnity and limitation of liability apply to the supplier. ", 8)

type mockInbox struct {
	dirs []string
}

func (m *mockInbox) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockInbox) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockInbox) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

func newTestServer(t *testing.T, inbox InboxService, appConfig *config.Config, configPath string) http.Handler {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	vecIdx, _ := vector.NewMemoryIndex(64)
	kwIdx, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kwIdx.Close() })

	embedder := embedding.NewMockEmbedder(64)
	registry := topics.Default()
	idx := indexer.NewIndexer(store, embedder, vecIdx,
		config.ChunkingConfig{ChunkSize: 40, ChunkOverlap: 5}, indexer.WithClauseIndex(kwIdx))
	client := llm.NewFuncClient(func(model string, p llm.Prompt) (string, error) {
		if strings.Contains(p.System, "a Legal contract") {
			return `{"analysis": "no caps", "features": {"indemnity_cap_present": false, "liability_cap_present": false}}`, nil
		}
		return `{"analysis": "ok", "features": {}}`, nil
	})
	orch, err := orchestrator.New(registry, retrieval.NewRetriever(registry, embedder, vecIdx, config.RetrievalConfig{}), client, []string{"m1"})
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline.New(store, idx, orch, vecIdx, config.LineageConfig{SimilarityThreshold: 0.85}, pipeline.WithClauseIndex(kwIdx))
	return NewServer(p, &config.ServerConfig{Port: 8080}, zap.NewNop(), inbox, configPath, appConfig).Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, rd)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t, nil, nil, "")
	if w := do(t, h, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	h := newTestServer(t, nil, nil, "")

	w := do(t, h, http.MethodPost, "/api/v1/documents", map[string]string{"id": "msa", "title": "MSA", "content": contract})
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest: got %d %s", w.Code, w.Body.String())
	}
	var ingested struct {
		Chunks  int `json:"chunks"`
		Version struct {
			LineageID     string `json:"lineage_id"`
			VersionNumber int    `json:"version_number"`
		} `json:"version"`
	}
	decode(t, w, &ingested)
	if ingested.Chunks != 2 || ingested.Version.VersionNumber != 1 {
		t.Errorf("ingest response = %+v", ingested)
	}

	w = do(t, h, http.MethodPost, "/api/v1/documents/msa/analyses", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("analyze: got %d %s", w.Code, w.Body.String())
	}
	var analysis struct {
		ID             string  `json:"id"`
		CompositeScore float64 `json:"composite_score"`
		RiskTier       string  `json:"risk_tier"`
		Findings       []struct {
			Topic string `json:"topic"`
		} `json:"findings"`
	}
	decode(t, w, &analysis)
	if analysis.CompositeScore != 5.5 || analysis.RiskTier != "Yellow" || len(analysis.Findings) != 5 {
		t.Errorf("analysis = %+v", analysis)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/analyses/"+analysis.ID, nil); w.Code != http.StatusOK {
		t.Errorf("get analysis: %d", w.Code)
	}
	w = do(t, h, http.MethodGet, "/api/v1/documents/msa/analyses", nil)
	var list struct {
		Analyses []json.RawMessage `json:"analyses"`
	}
	decode(t, w, &list)
	if len(list.Analyses) != 1 {
		t.Errorf("analyses = %d", len(list.Analyses))
	}

	if w := do(t, h, http.MethodGet, "/api/v1/documents/msa/version", nil); w.Code != http.StatusOK {
		t.Errorf("get version: %d", w.Code)
	}
	w = do(t, h, http.MethodGet, "/api/v1/lineages/"+ingested.Version.LineageID, nil)
	var lineage struct {
		Versions []json.RawMessage `json:"versions"`
	}
	decode(t, w, &lineage)
	if len(lineage.Versions) != 1 {
		t.Errorf("lineage versions = %d", len(lineage.Versions))
	}

	if w := do(t, h, http.MethodGet, "/api/v1/documents/msa", nil); w.Code != http.StatusOK {
		t.Errorf("get document: %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/documents/msa", nil); w.Code != http.StatusOK {
		t.Errorf("delete: %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/documents/msa", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/documents/msa", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: %d", w.Code)
	}
}

func TestIngestWithAnalyze(t *testing.T) {
	h := newTestServer(t, nil, nil, "")
	w := do(t, h, http.MethodPost, "/api/v1/documents?analyze=true", map[string]string{"content": contract, "workspace": "acme"})
	if w.Code != http.StatusCreated {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Document struct {
			ID string `json:"id"`
		} `json:"document"`
		Analysis *struct {
			RiskTier string `json:"risk_tier"`
		} `json:"analysis"`
	}
	decode(t, w, &out)
	if out.Document.ID == "" || out.Analysis == nil || out.Analysis.RiskTier != "Yellow" {
		t.Errorf("response = %+v", out)
	}
}

func TestErrorStatuses(t *testing.T) {
	h := newTestServer(t, nil, nil, "")
	if w := do(t, h, http.MethodPost, "/api/v1/documents", map[string]string{"id": "x", "content": contract}); w.Code != http.StatusCreated {
		t.Fatalf("seed: %d", w.Code)
	}
	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"empty text", http.MethodPost, "/api/v1/documents", map[string]string{"content": "   "}, http.StatusUnprocessableEntity},
		{"changed content under same id", http.MethodPost, "/api/v1/documents", map[string]string{"id": "x", "content": "other terms"}, http.StatusConflict},
		{"analyze unknown", http.MethodPost, "/api/v1/documents/ghost/analyses", nil, http.StatusNotFound},
		{"analyses of unknown", http.MethodGet, "/api/v1/documents/ghost/analyses", nil, http.StatusNotFound},
		{"version of unknown", http.MethodGet, "/api/v1/documents/ghost/version", nil, http.StatusNotFound},
		{"unknown lineage", http.MethodGet, "/api/v1/lineages/none", nil, http.StatusNotFound},
		{"unknown analysis", http.MethodGet, "/api/v1/analyses/none", nil, http.StatusNotFound},
		{"search without query", http.MethodPost, "/api/v1/clauses/search", map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, tt.method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body: got %d", w.Code)
	}
}

func TestResolveVersionWithCandidates(t *testing.T) {
	h := newTestServer(t, nil, nil, "")
	for _, id := range []string{"a", "b"} {
		if w := do(t, h, http.MethodPost, "/api/v1/documents", map[string]string{"id": id, "content": contract}); w.Code != http.StatusCreated {
			t.Fatalf("ingest %s: %d", id, w.Code)
		}
	}
	w := do(t, h, http.MethodPost, "/api/v1/documents/b/version", resolveRequest{CandidateIDs: []string{"a"}})
	if w.Code != http.StatusOK {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	var v struct {
		VersionNumber int `json:"version_number"`
	}
	decode(t, w, &v)
	if v.VersionNumber != 2 {
		t.Errorf("version = %d", v.VersionNumber)
	}
}

func TestHandleSearchClauses(t *testing.T) {
	h := newTestServer(t, nil, nil, "")
	do(t, h, http.MethodPost, "/api/v1/documents", map[string]string{"id": "msa", "content": contract})

	w := do(t, h, http.MethodPost, "/api/v1/clauses/search", searchRequest{Query: "liabilty", Fuzzy: true})
	if w.Code != http.StatusOK {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Hits []struct {
			DocumentID string `json:"document_id"`
		} `json:"hits"`
	}
	decode(t, w, &out)
	if len(out.Hits) == 0 || out.Hits[0].DocumentID != "msa" {
		t.Errorf("hits = %+v", out.Hits)
	}
}

func TestHandleStatus(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "missing.db")
	h := newTestServer(t, nil, cfg, "")
	do(t, h, http.MethodPost, "/api/v1/documents", map[string]string{"id": "msa", "content": contract})

	w := do(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	var out map[string]interface{}
	decode(t, w, &out)
	if out["documents"].(float64) != 1 || out["vector_index_size"].(float64) != 2 {
		t.Errorf("status = %v", out)
	}
	if _, ok := out["config"]; !ok {
		t.Error("config section missing")
	}
	if _, ok := out["disk_usage_bytes"]; !ok {
		t.Error("disk usage missing")
	}
}

func TestInboxDirectories(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	inbox := &mockInbox{dirs: []string{"/srv/inbox"}}
	h := newTestServer(t, inbox, cfg, configPath)

	w := do(t, h, http.MethodGet, "/api/v1/inbox/directories", nil)
	var out struct {
		Directories []string `json:"directories"`
	}
	decode(t, w, &out)
	if len(out.Directories) != 1 || out.Directories[0] != "/srv/inbox" {
		t.Errorf("directories = %v", out.Directories)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/inbox/directories", inboxAddRequest{Path: dir}); w.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	if len(inbox.Directories()) != 2 {
		t.Errorf("after add: %v", inbox.Directories())
	}
	saved, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config not persisted: %v", err)
	}
	if len(saved.Watch.Directories) != 2 {
		t.Errorf("persisted directories = %v", saved.Watch.Directories)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/inbox/directories", inboxAddRequest{Path: filepath.Join(dir, "nope")}); w.Code != http.StatusNotFound {
		t.Errorf("missing dir: %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/inbox/directories?path="+dir, nil); w.Code != http.StatusOK {
		t.Errorf("remove: %d", w.Code)
	}
	if len(inbox.Directories()) != 1 {
		t.Errorf("after remove: %v", inbox.Directories())
	}
}

func TestInboxNotEnabled(t *testing.T) {
	h := newTestServer(t, nil, nil, "")
	if w := do(t, h, http.MethodGet, "/api/v1/inbox/directories", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("got %d, want 501", w.Code)
	}
}
