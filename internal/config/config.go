// Package config provides configuration loading and structs for the clausewise server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the corresponding secret is empty in the file.
const (
	EnvLLMAPIKey       = "LLM_API_KEY"
	EnvEmbeddingAPIKey = "EMBEDDING_API_KEY"
	EnvRedisPassword   = "REDIS_PASSWORD"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Agents    AgentsConfig    `yaml:"agents"`
	Lineage   LineageConfig   `yaml:"lineage"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds inbox watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	// Workspace is the workspace assigned to documents picked up from the inbox.
	Workspace string `yaml:"workspace"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// Embedding providers.
const (
	EmbeddingONNX   = "onnx"
	EmbeddingOpenAI = "openai"
	EmbeddingMock   = "mock"
)

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider        string `yaml:"provider"`
	ModelPath       string `yaml:"model_path"`
	Dimensions      int    `yaml:"dimensions"`
	MaxTokens       int    `yaml:"max_tokens"`
	UseQuantization bool   `yaml:"use_quantization"`
	CacheSize       int    `yaml:"cache_size"`
	// Remote (OpenAI-compatible) settings, used when Provider is "openai".
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Vector index backends.
const (
	VectorMemory = "memory"
	VectorRedis  = "redis"
)

// VectorConfig selects and configures the vector index.
type VectorConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds RediSearch connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	IndexName string `yaml:"index_name"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ChunkingConfig holds word-window chunking settings.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds evidence retrieval settings.
type RetrievalConfig struct {
	TopK         int     `yaml:"top_k"`
	MaxEvidence  int     `yaml:"max_evidence"`
	MinRelevance float64 `yaml:"min_relevance"`
}

// AgentsConfig holds inference settings for the topic agents.
type AgentsConfig struct {
	FallbackModels []string      `yaml:"fallback_models"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Temperature    float32       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	Timeout        time.Duration `yaml:"timeout"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the per-model circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// LineageConfig holds version resolution settings.
type LineageConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// MaxCandidates bounds how many recent documents in the workspace are compared.
	MaxCandidates int `yaml:"max_candidates"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// ApplyEnv fills empty secrets from the environment.
func ApplyEnv(cfg *Config) {
	if cfg.Agents.APIKey == "" {
		cfg.Agents.APIKey = os.Getenv(EnvLLMAPIKey)
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv(EnvEmbeddingAPIKey)
	}
	if cfg.Vector.Redis.Password == "" {
		cfg.Vector.Redis.Password = os.Getenv(EnvRedisPassword)
	}
}

// Validate rejects settings that would make the pipeline misbehave.
func Validate(cfg *Config) error {
	if cfg.Chunking.ChunkOverlap >= cfg.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			cfg.Chunking.ChunkOverlap, cfg.Chunking.ChunkSize)
	}
	if t := cfg.Lineage.SimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("lineage.similarity_threshold must be in (0, 1], got %v", t)
	}
	if cfg.Retrieval.MinRelevance < 0 || cfg.Retrieval.MinRelevance >= 1 {
		return fmt.Errorf("retrieval.min_relevance must be in [0, 1), got %v", cfg.Retrieval.MinRelevance)
	}
	switch cfg.Embedding.Provider {
	case EmbeddingONNX, EmbeddingOpenAI, EmbeddingMock:
	default:
		return fmt.Errorf("unknown embedding provider: %q", cfg.Embedding.Provider)
	}
	switch cfg.Vector.Backend {
	case VectorMemory, VectorRedis:
	default:
		return fmt.Errorf("unknown vector backend: %q", cfg.Vector.Backend)
	}
	seen := make(map[string]bool, len(cfg.Agents.FallbackModels))
	for _, m := range cfg.Agents.FallbackModels {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("agents.fallback_models contains an empty model name")
		}
		if seen[m] {
			return fmt.Errorf("agents.fallback_models lists %q twice", m)
		}
		seen[m] = true
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
