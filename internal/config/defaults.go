package config

import "time"

// DefaultFallbackModels is the ordered model list tried for each topic.
var DefaultFallbackModels = []string{
	"meta-llama/Llama-3.2-1B-Instruct",
	"google/gemma-2-2b-it",
	"mistralai/Mistral-7B-Instruct-v0.3",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/clausewise/data/db/contracts.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/clausewise/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/clausewise/data/indices/vectors"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbeddingONNX
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/clausewise/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = VectorMemory
	}
	if cfg.Vector.Redis.Addr == "" {
		cfg.Vector.Redis.Addr = "localhost:6379"
	}
	if cfg.Vector.Redis.IndexName == "" {
		cfg.Vector.Redis.IndexName = "clausewise_chunks"
	}
	if cfg.Vector.Redis.KeyPrefix == "" {
		cfg.Vector.Redis.KeyPrefix = "clausewise:chunk:"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 400
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 50
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Agents.FallbackModels == nil {
		cfg.Agents.FallbackModels = append([]string(nil), DefaultFallbackModels...)
	}
	if cfg.Agents.BaseURL == "" {
		cfg.Agents.BaseURL = "https://router.huggingface.co/v1"
	}
	if cfg.Agents.Temperature == 0 {
		cfg.Agents.Temperature = 0.1
	}
	if cfg.Agents.MaxTokens == 0 {
		cfg.Agents.MaxTokens = 1500
	}
	if cfg.Agents.Timeout == 0 {
		cfg.Agents.Timeout = 30 * time.Second
	}
	if cfg.Agents.Breaker.MaxFailures == 0 {
		cfg.Agents.Breaker.MaxFailures = 3
	}
	if cfg.Agents.Breaker.OpenTimeout == 0 {
		cfg.Agents.Breaker.OpenTimeout = time.Minute
	}
	if cfg.Lineage.SimilarityThreshold == 0 {
		cfg.Lineage.SimilarityThreshold = 0.85
	}
	if cfg.Lineage.MaxCandidates == 0 {
		cfg.Lineage.MaxCandidates = 50
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".pptx"}
	}
	if cfg.Watch.Workspace == "" {
		cfg.Watch.Workspace = "inbox"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
