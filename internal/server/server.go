// Package server provides the HTTP API for clausewise.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/clausewise/internal/config"
	"github.com/hyperjump/clausewise/internal/pipeline"
)

// requestTimeout bounds a request; an analysis makes up to one inference call per
// fallback model for each topic.
const requestTimeout = 5 * time.Minute

// InboxService manages the watched inbox directories.
type InboxService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the clausewise API.
type Server struct {
	pipeline *pipeline.Pipeline
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server

	inbox      InboxService // optional
	configPath string
	appConfig  *config.Config
	configMu   sync.Mutex
}

// NewServer creates a server. inbox may be nil when no inbox is watched; configPath and
// appConfig, when set, let inbox changes be persisted and storage paths be reported.
func NewServer(
	p *pipeline.Pipeline,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	inbox InboxService,
	configPath string,
	appConfig *config.Config,
) *Server {
	return &Server{
		pipeline:   p,
		config:     cfg,
		logger:     logger,
		inbox:      inbox,
		configPath: configPath,
		appConfig:  appConfig,
	}
}

// Routes returns the API handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/", s.handleIngestDocument)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Post("/analyses", s.handleAnalyze)
				r.Get("/analyses", s.handleListAnalyses)
				r.Get("/version", s.handleGetVersion)
				r.Post("/version", s.handleResolveVersion)
			})
		})
		r.Get("/analyses/{id}", s.handleGetAnalysis)
		r.Get("/lineages/{id}", s.handleGetLineage)
		r.Post("/clauses/search", s.handleSearchClauses)
		r.Get("/status", s.handleStatus)
		r.Get("/inbox/directories", s.handleInboxList)
		r.Post("/inbox/directories", s.handleInboxAdd)
		r.Delete("/inbox/directories", s.handleInboxRemove)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
