package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/clausewise/internal/config"
	"go.uber.org/zap"
)

// ONNXOptions configures NewONNXEmbedder.
type ONNXOptions struct {
	ModelPath  string
	Dimensions int
	MaxTokens  int
}

// New builds the embedder selected by cfg.Provider and fronts it with an LRU cache.
// When the ONNX runtime or model is unavailable it falls back to the mock embedder with
// a warning, so a fresh install still works offline.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var inner Embedder
	switch cfg.Provider {
	case config.EmbeddingMock:
		inner = NewMockEmbedder(cfg.Dimensions)
	case config.EmbeddingOpenAI:
		remote, err := NewRemoteEmbedder(ctx, RemoteConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = remote
	case config.EmbeddingONNX, "":
		onnx, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
		if err != nil {
			logger.Warn("onnx embedder unavailable, falling back to mock embeddings",
				zap.String("model_path", cfg.ModelPath),
				zap.Error(err))
			inner = NewMockEmbedder(cfg.Dimensions)
		} else {
			inner = onnx
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	if cfg.CacheSize <= 0 {
		return inner, nil
	}
	cached, err := NewCachedEmbedder(inner, cfg.CacheSize)
	if err != nil {
		_ = inner.Close()
		return nil, err
	}
	return cached, nil
}
