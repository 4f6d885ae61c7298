package embedding

import (
	"context"
	"fmt"
	"time"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
)

// RemoteConfig configures an OpenAI-compatible embedding endpoint.
type RemoteConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// RemoteEmbedder calls an OpenAI-compatible embeddings API through eino.
type RemoteEmbedder struct {
	embedder   einoEmbedding.Embedder
	dimensions int
}

// NewRemoteEmbedder creates a remote embedder. An API key is required.
func NewRemoteEmbedder(ctx context.Context, cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}
	dims := cfg.Dimensions
	emb, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: &dims,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create remote embedder: %w", err)
	}
	return newRemoteEmbedder(emb, cfg.Dimensions), nil
}

func newRemoteEmbedder(emb einoEmbedding.Embedder, dimensions int) *RemoteEmbedder {
	return &RemoteEmbedder{embedder: emb, dimensions: dimensions}
}

// Embed returns the normalized embedding for text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one request. Empty texts embed to the zero vector without
// being sent.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var valid []string
	var indices []int
	for i, text := range texts {
		if text == "" {
			result[i] = make([]float32, e.dimensions)
			continue
		}
		valid = append(valid, text)
		indices = append(indices, i)
	}
	if len(valid) == 0 {
		return result, nil
	}

	vectors, err := e.embedder.EmbedStrings(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(valid) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d texts", len(vectors), len(valid))
	}
	for i, vec := range vectors {
		if len(vec) != e.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(vec), e.dimensions)
		}
		out := make([]float32, len(vec))
		for j, v := range vec {
			out[j] = float32(v)
		}
		NormalizeL2Slice(out)
		result[indices[i]] = out
	}
	return result, nil
}

// Dimensions returns the embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client has no resources to release.
func (e *RemoteEmbedder) Close() error {
	return nil
}
