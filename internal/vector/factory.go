package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/clausewise/internal/config"
	"go.uber.org/zap"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search with file snapshots.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeRedis uses RediSearch HNSW vectors; shared between processes.
	IndexTypeRedis IndexType = "redis"
)

// NewVectorIndex creates the vector index selected by cfg.Backend. If Redis is requested
// but unreachable, it logs a warning and falls back to memory.
func NewVectorIndex(ctx context.Context, cfg config.VectorConfig, dimensions int, logger *zap.Logger) (VectorIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch IndexType(cfg.Backend) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeRedis:
		idx, err := NewRedisIndex(ctx, RedisOptions{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			IndexName:  cfg.Redis.IndexName,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			Dimensions: dimensions,
		})
		if err != nil {
			logger.Warn("failed to create redis vector index, falling back to memory",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err))
			return NewMemoryIndex(dimensions)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, redis)", cfg.Backend)
	}
}
