package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/clausewise/internal/config"
	"github.com/hyperjump/clausewise/internal/extract"
	"github.com/hyperjump/clausewise/internal/indexer"
	"github.com/hyperjump/clausewise/internal/keyword"
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/pipeline"
	"github.com/hyperjump/clausewise/internal/storage"
)

type ingestResponse struct {
	Document *models.Document        `json:"document"`
	Chunks   int                     `json:"chunks"`
	Version  *models.DocumentVersion `json:"version,omitempty"`
	Analysis *models.AnalysisResult  `json:"analysis,omitempty"`
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	analyze, _ := strconv.ParseBool(r.URL.Query().Get("analyze"))
	s.logger.Debug("ingest request",
		zap.String("id", input.ID),
		zap.String("title", input.Title),
		zap.Bool("analyze", analyze))

	ctx := r.Context()
	if analyze {
		out, err := s.pipeline.Process(ctx, &input)
		if err != nil {
			s.respondFailure(w, "process", err)
			return
		}
		s.respondJSON(w, http.StatusCreated, ingestResponse{
			Document: out.Document, Chunks: out.Chunks, Version: out.Version, Analysis: out.Analysis,
		})
		return
	}

	chunks, err := s.pipeline.Ingest(ctx, &input)
	if err != nil {
		s.respondFailure(w, "ingest", err)
		return
	}
	version, err := s.pipeline.ResolveVersion(ctx, input.ID, nil)
	if err != nil {
		s.respondFailure(w, "resolve version", err)
		return
	}
	doc, err := s.pipeline.Document(ctx, input.ID)
	if err != nil {
		s.respondFailure(w, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, ingestResponse{Document: doc, Chunks: len(chunks), Version: version})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{Workspace: q.Get("workspace")}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))
	docs, err := s.pipeline.Documents(r.Context(), opts)
	if err != nil {
		s.respondFailure(w, "list documents", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.pipeline.Document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.pipeline.DeleteDocument(r.Context(), id); err != nil {
		s.respondFailure(w, "delete document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	result, err := s.pipeline.Analyze(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "analyze", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	list, err := s.pipeline.Analyses(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "list analyses", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"analyses": list})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := s.pipeline.Analysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "get analysis", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := s.pipeline.Version(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "get version", err)
		return
	}
	s.respondJSON(w, http.StatusOK, v)
}

type resolveRequest struct {
	CandidateIDs []string `json:"candidate_ids"`
}

func (s *Server) handleResolveVersion(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	v, err := s.pipeline.ResolveVersion(r.Context(), chi.URLParam(r, "id"), req.CandidateIDs)
	if err != nil {
		s.respondFailure(w, "resolve version", err)
		return
	}
	s.respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetLineage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := s.pipeline.History(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get lineage", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"lineage_id": id, "versions": history})
}

type searchRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id,omitempty"`
	Workspace  string `json:"workspace,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Fuzzy      bool   `json:"fuzzy,omitempty"`
}

func (s *Server) handleSearchClauses(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	hits, err := s.pipeline.SearchClauses(r.Context(), req.Query, keyword.SearchOptions{
		DocumentID:   req.DocumentID,
		Workspace:    req.Workspace,
		Limit:        req.Limit,
		FuzzyEnabled: req.Fuzzy,
	})
	if err != nil {
		s.respondFailure(w, "search clauses", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": req.Query, "hits": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.pipeline.Status(r.Context())
	if err != nil {
		s.respondFailure(w, "status", err)
		return
	}
	resp := map[string]interface{}{
		"documents":         st.Storage.Documents,
		"chunks":            st.Storage.Chunks,
		"analyses":          st.Storage.Analyses,
		"lineages":          st.Storage.Lineages,
		"vector_index_size": st.VectorIndexSize,
		"clause_index_docs": st.ClauseIndexDocs,
	}
	if cfg := s.appConfig; cfg != nil {
		resp["config"] = map[string]interface{}{
			"vector_backend":       cfg.Vector.Backend,
			"embedding_provider":   cfg.Embedding.Provider,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"chunk_size":           cfg.Chunking.ChunkSize,
			"chunk_overlap":        cfg.Chunking.ChunkOverlap,
			"fallback_models":      cfg.Agents.FallbackModels,
			"lineage_threshold":    cfg.Lineage.SimilarityThreshold,
		}
		usage, total, err := storage.DiskUsage(map[string]string{
			"database":     cfg.Storage.DatabasePath,
			"clause_index": cfg.Storage.BleveIndexPath,
			"vector_index": cfg.Storage.VectorIndexPath,
		})
		if err == nil {
			resp["disk_usage"] = usage
			resp["disk_usage_bytes"] = total
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInboxList(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.inbox.Directories()})
}

type inboxAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleInboxAdd(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	var req inboxAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.inbox.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("inbox add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistInbox()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleInboxRemove(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.inbox.RemoveDirectory(abs); err != nil {
		s.logger.Error("inbox remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistInbox()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistInbox writes the current inbox directories back to the config file.
func (s *Server) persistInbox() {
	if s.configPath == "" || s.appConfig == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.appConfig.Watch.Directories = s.inbox.Directories()
	if err := config.Save(s.configPath, s.appConfig); err != nil {
		s.logger.Warn("failed to persist inbox config", zap.Error(err))
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrNoText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, indexer.ErrDocumentExists), errors.Is(err, storage.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrSearchDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
