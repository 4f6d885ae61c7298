package embedding

import (
	"context"
	"testing"
)

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "the supplier's aggregate liability shall not exceed the fees paid")
	}
}

func BenchmarkCachedEmbedder_Embed(b *testing.B) {
	e, _ := NewCachedEmbedder(NewMockEmbedder(384), 128)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "the supplier's aggregate liability shall not exceed the fees paid")
	}
}
