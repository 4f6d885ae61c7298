package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in the chunk hash.
	fieldVector     = "vector"
	fieldDocumentID = "document_id"
	fieldChunkID    = "chunk_id"
	fieldChunkIndex = "chunk_index"
	fieldContent    = "content"
	fieldScore      = "score"

	// deleteBatch bounds how many keys one FT.SEARCH page returns when deleting a document.
	deleteBatch = 1000
)

// RedisOptions configures NewRedisIndex.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	IndexName  string
	KeyPrefix  string
	Dimensions int
}

// RedisIndex stores chunk vectors as Redis hashes indexed by RediSearch (HNSW, cosine).
// Save and Load are no-ops; Redis owns persistence.
type RedisIndex struct {
	client     *redis.Client
	indexName  string
	keyPrefix  string
	dimensions int
}

// NewRedisIndex connects to Redis and creates the vector index if it does not exist.
func NewRedisIndex(ctx context.Context, opts RedisOptions) (*RedisIndex, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		// FT.* replies are parsed as RESP2 arrays.
		Protocol: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	idx := &RedisIndex{
		client:     client,
		indexName:  opts.IndexName,
		keyPrefix:  opts.KeyPrefix,
		dimensions: opts.Dimensions,
	}
	if err := idx.ensureIndex(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	return idx, nil
}

// Type returns the index type identifier.
func (r *RedisIndex) Type() string {
	return string(IndexTypeRedis)
}

func (r *RedisIndex) ensureIndex(ctx context.Context) error {
	if _, err := r.client.Do(ctx, "FT.INFO", r.indexName).Result(); err == nil {
		return nil
	}
	_, err := r.client.Do(ctx, "FT.CREATE", r.indexName,
		"ON", "HASH",
		"PREFIX", "1", r.keyPrefix,
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(r.dimensions),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(defaultEFConstruction),
		"M", strconv.Itoa(defaultM),
		fieldDocumentID, "TAG",
		fieldChunkID, "TAG",
		fieldChunkIndex, "NUMERIC",
		fieldContent, "TEXT",
	).Result()
	return err
}

func (r *RedisIndex) key(chunkID string) string {
	return r.keyPrefix + chunkID
}

// Upsert writes each record as a hash keyed by chunk ID in one pipeline.
func (r *RedisIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, rec := range records {
		if rec.ChunkID == "" || rec.DocumentID == "" {
			return fmt.Errorf("record requires chunk and document IDs")
		}
		if len(rec.Vector) != r.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), r.dimensions)
		}
		pipe.HSet(ctx, r.key(rec.ChunkID),
			fieldVector, EncodeFloat32s(rec.Vector),
			fieldDocumentID, rec.DocumentID,
			fieldChunkID, rec.ChunkID,
			fieldChunkIndex, rec.ChunkIndex,
			fieldContent, rec.Text,
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

// Query runs a KNN search, pre-filtered to one document when filter.DocumentID is set.
func (r *RedisIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]*Match, error) {
	if len(vector) != r.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vector), r.dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}
	res, err := r.client.Do(ctx, "FT.SEARCH", r.indexName, knnQuery(topK, filter),
		"PARAMS", "2", "query_vector", EncodeFloat32s(vector),
		"RETURN", "5", fieldDocumentID, fieldChunkID, fieldChunkIndex, fieldContent, fieldScore,
		"SORTBY", fieldScore,
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	matches, err := parseSearchReply(res, r.keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}
	SortMatches(matches)
	return matches, nil
}

// knnQuery builds the FT.SEARCH query string for a KNN search.
func knnQuery(topK int, filter Filter) string {
	pre := "*"
	if filter.DocumentID != "" {
		pre = fmt.Sprintf("(@%s:{%s})", fieldDocumentID, escapeTag(filter.DocumentID))
	}
	return fmt.Sprintf("%s=>[KNN %d @%s $query_vector AS %s]", pre, topK, fieldVector, fieldScore)
}

// escapeTag backslash-escapes every character RediSearch treats as a tag separator or
// query operator.
func escapeTag(s string) string {
	var b strings.Builder
	for _, c := range s {
		if !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c > 127) {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// parseSearchReply decodes a RESP2 FT.SEARCH reply: [total, key1, [f, v, ...], key2, ...].
// The KNN score is a cosine distance and is converted to similarity.
func parseSearchReply(res interface{}, keyPrefix string) ([]*Match, error) {
	values, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected reply type %T", res)
	}
	if len(values) == 0 {
		return nil, nil
	}
	var matches []*Match
	for i := 1; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}
		m := &Match{ChunkID: strings.TrimPrefix(key, keyPrefix)}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			val := fields[j+1]
			switch name {
			case fieldDocumentID:
				m.DocumentID = asString(val)
			case fieldChunkID:
				m.ChunkID = asString(val)
			case fieldChunkIndex:
				n, err := strconv.Atoi(asString(val))
				if err != nil {
					return nil, fmt.Errorf("chunk_index for %s: %w", key, err)
				}
				m.ChunkIndex = n
			case fieldContent:
				m.Text = asString(val)
			case fieldScore:
				d, err := strconv.ParseFloat(asString(val), 64)
				if err != nil {
					return nil, fmt.Errorf("score for %s: %w", key, err)
				}
				m.Score = 1 - d
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// DeleteDocument removes every chunk hash of documentID, paging through the tag index.
func (r *RedisIndex) DeleteDocument(ctx context.Context, documentID string) error {
	query := fmt.Sprintf("@%s:{%s}", fieldDocumentID, escapeTag(documentID))
	for {
		res, err := r.client.Do(ctx, "FT.SEARCH", r.indexName, query,
			"NOCONTENT",
			"LIMIT", "0", strconv.Itoa(deleteBatch),
			"DIALECT", "2",
		).Result()
		if err != nil {
			return fmt.Errorf("find document vectors: %w", err)
		}
		keys := parseNoContentReply(res)
		if len(keys) == 0 {
			return nil
		}
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("delete document vectors: %w", err)
		}
		if len(keys) < deleteBatch {
			return nil
		}
	}
}

// parseNoContentReply decodes [total, key1, key2, ...].
func parseNoContentReply(res interface{}) []string {
	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return nil
	}
	keys := make([]string, 0, len(values)-1)
	for _, v := range values[1:] {
		if k, ok := v.(string); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Save is a no-op; Redis persists on its own.
func (r *RedisIndex) Save(string) error { return nil }

// Load is a no-op; Redis persists on its own.
func (r *RedisIndex) Load(string) error { return nil }

// Size returns the number of indexed chunks, or 0 if the index cannot be inspected.
func (r *RedisIndex) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := r.client.Do(ctx, "FT.INFO", r.indexName).Result()
	if err != nil {
		return 0
	}
	n, _ := numDocs(res)
	return n
}

func numDocs(res interface{}) (int, error) {
	values, ok := res.([]interface{})
	if !ok {
		return 0, errors.New("unexpected FT.INFO reply")
	}
	for i := 0; i+1 < len(values); i += 2 {
		if k, ok := values[i].(string); ok && k == "num_docs" {
			f, err := strconv.ParseFloat(asString(values[i+1]), 64)
			if err != nil {
				return 0, err
			}
			return int(f), nil
		}
	}
	return 0, errors.New("num_docs not found")
}

// Close closes the Redis connection.
func (r *RedisIndex) Close() error {
	return r.client.Close()
}
