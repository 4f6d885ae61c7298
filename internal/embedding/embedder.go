// Package embedding turns contract text into fixed-dimension vectors via ONNX, an
// OpenAI-compatible API, or a deterministic mock, with an LRU cache in front.
package embedding

import (
	"context"

	"github.com/hyperjump/clausewise/pkg/utils"
)

// Embedder produces vector embeddings for text. Implementations are deterministic for a
// given model and always return vectors of Dimensions() length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// NormalizeL2Slice normalizes the slice in place to unit L2 norm.
func NormalizeL2Slice(x []float32) {
	utils.NormalizeL2(x)
}

// embedEach is the EmbedBatch implementation shared by embedders without native batching.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
