// Package main is the clausewise CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/clausewise/internal/cli"
	"github.com/hyperjump/clausewise/internal/config"
	"github.com/hyperjump/clausewise/internal/embedding"
	"github.com/hyperjump/clausewise/internal/indexer"
	"github.com/hyperjump/clausewise/internal/keyword"
	"github.com/hyperjump/clausewise/internal/llm"
	"github.com/hyperjump/clausewise/internal/orchestrator"
	"github.com/hyperjump/clausewise/internal/pipeline"
	"github.com/hyperjump/clausewise/internal/retrieval"
	"github.com/hyperjump/clausewise/internal/server"
	"github.com/hyperjump/clausewise/internal/storage"
	"github.com/hyperjump/clausewise/internal/topics"
	"github.com/hyperjump/clausewise/internal/vector"
	"github.com/hyperjump/clausewise/internal/watcher"
	"github.com/hyperjump/clausewise/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/clausewise/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	ingestWorkers     = 4
)

// loadConfig loads config from path. When path is the default and config.yaml exists in
// the current directory, that file is used instead. Returns the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		config.ApplyEnv(cfg)
		return cfg, "", config.Validate(cfg)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is normal; secrets may come from the real environment.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		os.Exit(runIngest())
	case "analyze":
		runAnalyze()
	case "history":
		runHistory()
	case "search":
		runSearch()
	case "delete":
		os.Exit(runDelete())
	case "status":
		runStatus()
	case "inbox":
		runInbox()
	case "version", "--version", "-v":
		fmt.Printf("clausewise version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger, and initializes components. It exits on failure.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, resolved, logger, components
}

func mustFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func fail(what string, err error) {
	os.Exit(report(what, err))
}

// report prints a command failure and returns the exit code, for commands that must
// run their deferred cleanup before exiting.
func report(what string, err error) int {
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", what, err)
	return 1
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug))

	p := components.Pipeline
	workspace := cfg.Watch.Workspace
	inbox := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(ctx context.Context, path string) error {
			out, err := p.ProcessFile(ctx, path, workspace)
			if err != nil {
				return err
			}
			if !out.Reused {
				logger.Info("inbox document analyzed",
					zap.String("path", path),
					zap.String("document_id", out.Document.ID),
					zap.Float64("score", out.Analysis.CompositeScore),
					zap.String("tier", string(out.Analysis.RiskTier)))
			}
			return nil
		},
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := inbox.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start inbox watcher", zap.Error(err))
	}
	inbox.SyncExistingFiles()

	srv := server.NewServer(p, &cfg.Server, logger, inbox, resolvedConfigPath, cfg)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	inbox.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	components.SaveVectors(cfg, logger)
}

func runIngest() int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	workspace := fs.String("workspace", "", "workspace assigned to the documents")
	analyze := fs.Bool("analyze", true, "run the topic agents after ingesting")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: clausewise ingest [flags] <file-or-directory>")
		return 1
	}
	format := mustFormat(*outputFormat)
	cfg, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	defer components.SaveVectors(cfg, logger)

	path := fs.Arg(0)
	info, err := os.Stat(path)
	if err != nil {
		return report("Stat", err)
	}
	ctx := context.Background()
	handle := func(ctx context.Context, file string) (*pipeline.Outcome, error) {
		if *analyze {
			return components.Pipeline.ProcessFile(ctx, file, *workspace)
		}
		return ingestOnly(ctx, components.Pipeline, file, *workspace)
	}

	if !info.IsDir() {
		out, err := handle(ctx, path)
		if err != nil {
			return report("Ingest", err)
		}
		if err := cli.WriteOutcome(os.Stdout, out, format); err != nil {
			return report("Output", err)
		}
		return 0
	}

	files, err := collectFiles(path, cfg.Watch.Extensions)
	if err != nil {
		return report("Walk", err)
	}
	var (
		mu       sync.Mutex
		outcomes []*pipeline.Outcome
		failed   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestWorkers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			out, err := handle(gctx, file)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.Warn("ingest failed", zap.String("path", file), zap.Error(err))
				return nil
			}
			outcomes = append(outcomes, out)
			return nil
		})
	}
	_ = g.Wait()
	for _, out := range outcomes {
		if err := cli.WriteOutcome(os.Stdout, out, format); err != nil {
			return report("Output", err)
		}
	}
	if format == cli.OutputText {
		fmt.Printf("Processed %d of %d file(s) from %s\n", len(outcomes), len(files), path)
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// ingestOnly stores and versions a file without analyzing it.
func ingestOnly(ctx context.Context, p *pipeline.Pipeline, path, workspace string) (*pipeline.Outcome, error) {
	input, err := p.ReadFile(path, workspace)
	if err != nil {
		return nil, err
	}
	chunks, err := p.Ingest(ctx, input)
	if err != nil {
		return nil, err
	}
	v, err := p.ResolveVersion(ctx, input.ID, nil)
	if err != nil {
		return nil, err
	}
	doc, err := p.Document(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &pipeline.Outcome{Document: doc, Chunks: len(chunks), Version: v}, nil
}

// collectFiles lists the files under root whose extension is accepted, skipping hidden
// entries.
func collectFiles(root string, extensions []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			return nil
		}
		if hasExtension(path, extensions) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: clausewise analyze [flags] <document-id>")
		os.Exit(1)
	}
	format := mustFormat(*outputFormat)
	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	result, err := components.Pipeline.Analyze(context.Background(), fs.Arg(0))
	if err != nil {
		fail("Analysis", err)
	}
	if err := cli.WriteAnalysis(os.Stdout, result, format); err != nil {
		fail("Output", err)
	}
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	byDocument := fs.Bool("document", false, "treat the argument as a document ID and show its lineage")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: clausewise history [flags] <lineage-id | -document document-id>")
		os.Exit(1)
	}
	format := mustFormat(*outputFormat)
	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	lineageID := fs.Arg(0)
	if *byDocument {
		v, err := components.Pipeline.Version(ctx, lineageID)
		if err != nil {
			fail("Version lookup", err)
		}
		lineageID = v.LineageID
	}
	entries, err := components.Pipeline.History(ctx, lineageID)
	if err != nil {
		fail("History", err)
	}
	if err := cli.WriteHistory(os.Stdout, lineageID, entries, format); err != nil {
		fail("Output", err)
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id,omitempty"`
	Workspace  string `json:"workspace,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Fuzzy      bool   `json:"fuzzy,omitempty"`
}

// buildSearchQuery joins all positional args so multi-word queries work with or without
// shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags that appear after positional arguments to the front so that
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when the server is not running)")
	limit := fs.Int("limit", 10, "number of clauses")
	docID := fs.String("document", "", "restrict to one document")
	workspace := fs.String("workspace", "", "restrict to one workspace")
	fuzzy := fs.Bool("fuzzy", false, "enable typo tolerance")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: clausewise search [flags] <query>")
		os.Exit(1)
	}
	format := mustFormat(*outputFormat)
	req := searchRequest{Query: query, DocumentID: *docID, Workspace: *workspace, Limit: *limit, Fuzzy: *fuzzy}

	var hits []*keyword.ClauseHit
	if *serverURL != "" {
		var err error
		hits, err = searchViaHTTP(*serverURL, req)
		if err != nil {
			fail("Search", err)
		}
	} else {
		_, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		var err error
		hits, err = components.Pipeline.SearchClauses(context.Background(), query, keyword.SearchOptions{
			DocumentID:   req.DocumentID,
			Workspace:    req.Workspace,
			Limit:        req.Limit,
			FuzzyEnabled: req.Fuzzy,
		})
		if err != nil {
			fail("Search", err)
		}
	}
	if err := cli.WriteClauseHits(os.Stdout, query, hits, format); err != nil {
		fail("Output", err)
	}
}

func searchViaHTTP(serverURL string, req searchRequest) ([]*keyword.ClauseHit, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/clauses/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		Hits []*keyword.ClauseHit `json:"hits"`
	}
	if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Hits, nil
}

func decodeResponse(resp *http.Response, want int, v interface{}) error {
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runDelete() int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: clausewise delete [flags] <document-id>")
		return 1
	}
	cfg, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	defer components.SaveVectors(cfg, logger)

	if err := components.Pipeline.DeleteDocument(context.Background(), fs.Arg(0)); err != nil {
		return report("Deletion", err)
	}
	fmt.Printf("Document deleted: %s\n", fs.Arg(0))
	return 0
}

// statusResponse is the subset of GET /api/v1/status the CLI prints.
type statusResponse struct {
	Documents       int64  `json:"documents"`
	Chunks          int64  `json:"chunks"`
	Analyses        int64  `json:"analyses"`
	Lineages        int64  `json:"lineages"`
	VectorIndexSize int    `json:"vector_index_size"`
	ClauseIndexDocs uint64 `json:"clause_index_docs"`
}

func (s statusResponse) status() *pipeline.Status {
	return &pipeline.Status{
		Storage: &storage.Stats{
			Documents: s.Documents,
			Chunks:    s.Chunks,
			Analyses:  s.Analyses,
			Lineages:  s.Lineages,
		},
		VectorIndexSize: s.VectorIndexSize,
		ClauseIndexDocs: s.ClauseIndexDocs,
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*outputFormat)

	var st *pipeline.Status
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fail("Status", err)
		}
		defer resp.Body.Close()
		var out statusResponse
		if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
			fail("Status", err)
		}
		st = out.status()
	} else {
		_, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		var err error
		st, err = components.Pipeline.Status(context.Background())
		if err != nil {
			fail("Status", err)
		}
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fail("Output", err)
	}
}

func runInbox() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: clausewise inbox <add|remove|list> [path]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("inbox", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[3:])
	endpoint := *serverURL + "/api/v1/inbox/directories"

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: clausewise inbox add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
		if err != nil {
			fail("Request", err)
		}
		defer resp.Body.Close()
		if err := decodeResponse(resp, http.StatusCreated, nil); err != nil {
			fail("Add", err)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: clausewise inbox remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, endpoint+"?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fail("Request", err)
		}
		defer resp.Body.Close()
		if err := decodeResponse(resp, http.StatusOK, nil); err != nil {
			fail("Remove", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(endpoint)
		if err != nil {
			fail("Request", err)
		}
		defer resp.Body.Close()
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
			fail("List", err)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown inbox subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage     storage.Storage
	Embedder    embedding.Embedder
	VectorIndex vector.VectorIndex
	ClauseIndex *keyword.BleveIndex
	Indexer     *indexer.Indexer
	Pipeline    *pipeline.Pipeline
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.ClauseIndex != nil {
		_ = c.ClauseIndex.Close()
	}
}

// SaveVectors snapshots the vector index when it keeps its data in process memory.
func (c *Components) SaveVectors(cfg *config.Config, logger *zap.Logger) {
	if cfg.Storage.VectorIndexPath == "" || c.VectorIndex == nil {
		return
	}
	if err := c.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
		logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
}

// newChatClient returns the OpenAI-compatible client, or an offline client whose every
// call fails when no API key is configured, so each topic degrades instead of erroring.
func newChatClient(cfg config.AgentsConfig, logger *zap.Logger) llm.Client {
	if cfg.APIKey == "" {
		logger.Warn("no LLM API key configured, topic agents will run offline",
			zap.String("env", config.EnvLLMAPIKey))
		return llm.NewFuncClient(func(string, llm.Prompt) (string, error) {
			return "", fmt.Errorf("%w: no API key configured", llm.ErrInferenceFailure)
		})
	}
	return llm.NewChatClient(cfg, llm.WithLogger(logger))
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	for _, p := range []string{cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.VectorIndexPath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	c := &Components{}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	c.Embedder, err = embedding.New(ctx, cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.VectorIndex, err = vector.NewVectorIndex(ctx, cfg.Vector, cfg.Embedding.Dimensions, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := c.VectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
			logger.Warn("vector index load skipped, restoring from storage",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}

	c.ClauseIndex, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize clause index: %w", err)
	}

	c.Indexer = indexer.NewIndexer(store, c.Embedder, c.VectorIndex, cfg.Chunking,
		indexer.WithLogger(logger), indexer.WithClauseIndex(c.ClauseIndex))
	// The vector snapshot may predate documents stored after it was written.
	if _, err := c.Indexer.RestoreMissing(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to restore indices: %w", err)
	}

	registry := topics.Default()
	retriever := retrieval.NewRetriever(registry, c.Embedder, c.VectorIndex, cfg.Retrieval, retrieval.WithLogger(logger))
	orch, err := orchestrator.New(registry, retriever, newChatClient(cfg.Agents, logger), cfg.Agents.FallbackModels,
		orchestrator.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	c.Pipeline = pipeline.New(store, c.Indexer, orch, c.VectorIndex, cfg.Lineage,
		pipeline.WithLogger(logger), pipeline.WithClauseIndex(c.ClauseIndex))
	return c, nil
}

func printUsage() {
	fmt.Println(`clausewise - Contract risk analysis with topic agents and version lineage

Usage:
  clausewise server [flags]                 Start the HTTP server and inbox watcher
  clausewise ingest [flags] <file|dir>      Ingest, version, and analyze contracts
  clausewise analyze [flags] <document-id>  Run a new analysis of a stored document
  clausewise history [flags] <lineage-id>   Show the versions of a lineage
  clausewise search [flags] <query>         Search clauses across contracts
  clausewise delete [flags] <document-id>   Delete a document
  clausewise status [flags]                 Show storage and index status
  clausewise inbox <add|remove|list>        Manage watched inbox directories
  clausewise version                        Show version
  clausewise help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/clausewise/config.yaml)
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --workspace string  Workspace for the documents (scopes lineage matching)
  --analyze           Run the topic agents (default: true)

History Flags:
  --document          Treat the argument as a document ID

Search Flags:
  --server string     Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --limit int         Number of clauses (default: 10)
  --document string   Restrict to one document
  --workspace string  Restrict to one workspace
  --fuzzy             Enable typo tolerance

Environment:
  LLM_API_KEY, EMBEDDING_API_KEY, REDIS_PASSWORD  (also read from .env)

Examples:
  clausewise ingest --workspace acme msa-2024.pdf
  clausewise analyze file-3f2a...
  clausewise history --document file-3f2a...
  clausewise search --fuzzy "limitation of liabilty"
  clausewise inbox add ~/contracts/inbox`)
}
