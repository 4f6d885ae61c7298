package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/clausewise/internal/config"
)

func TestNew_Mock(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingConfig{
		Provider:   config.EmbeddingMock,
		Dimensions: 32,
		CacheSize:  8,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", e)
	}
	if e.Dimensions() != 32 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}

func TestNew_ONNXFallsBackToMock(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingConfig{
		Provider:   config.EmbeddingONNX,
		ModelPath:  "/nonexistent/model.onnx",
		Dimensions: 16,
		MaxTokens:  32,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, ok := e.(*MockEmbedder); !ok {
		t.Errorf("expected mock fallback without cache, got %T", e)
	}
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	_, err := New(context.Background(), config.EmbeddingConfig{
		Provider:   config.EmbeddingOpenAI,
		Dimensions: 16,
	}, nil)
	if err == nil {
		t.Error("expected error without API key")
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), config.EmbeddingConfig{Provider: "bogus"}, nil); err == nil {
		t.Error("expected error")
	}
}
