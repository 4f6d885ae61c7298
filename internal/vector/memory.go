package vector

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// Suitable for single-node deployments and tests; it can be snapshotted to disk.
type MemoryIndex struct {
	dimensions int
	entries    map[string]*memoryEntry        // chunk ID -> entry
	byDocument map[string]map[string]struct{} // document ID -> chunk IDs
	mu         sync.RWMutex
}

type memoryEntry struct {
	DocumentID string
	ChunkID    string
	ChunkIndex int
	Text       string
	Vector     []float32
	Norm       float64
}

// memorySnapshot is the gob-encoded on-disk form of a MemoryIndex.
type memorySnapshot struct {
	Dimensions int
	Entries    []memoryEntry
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]*memoryEntry),
		byDocument: make(map[string]map[string]struct{}),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Upsert inserts or replaces records by chunk ID. The batch is validated before any
// record is applied.
func (m *MemoryIndex) Upsert(ctx context.Context, records []Record) error {
	for _, r := range records {
		if r.ChunkID == "" || r.DocumentID == "" {
			return fmt.Errorf("record requires chunk and document IDs")
		}
		if len(r.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Vector), m.dimensions)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		vec := make([]float32, m.dimensions)
		copy(vec, r.Vector)
		m.put(&memoryEntry{
			DocumentID: r.DocumentID,
			ChunkID:    r.ChunkID,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Vector:     vec,
			Norm:       L2Norm(vec),
		})
	}
	return nil
}

// put stores e, moving it between documents if its owner changed. Caller holds mu.
func (m *MemoryIndex) put(e *memoryEntry) {
	if old, ok := m.entries[e.ChunkID]; ok && old.DocumentID != e.DocumentID {
		m.unlinkChunk(old.DocumentID, old.ChunkID)
	}
	m.entries[e.ChunkID] = e
	set, ok := m.byDocument[e.DocumentID]
	if !ok {
		set = make(map[string]struct{})
		m.byDocument[e.DocumentID] = set
	}
	set[e.ChunkID] = struct{}{}
}

func (m *MemoryIndex) unlinkChunk(documentID, chunkID string) {
	set := m.byDocument[documentID]
	delete(set, chunkID)
	if len(set) == 0 {
		delete(m.byDocument, documentID)
	}
}

// Query returns the topK chunks most similar to vector, ordered by score descending with
// ties broken by chunk index and then chunk ID.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]*Match, error) {
	if len(vector) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vector), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	qNorm := L2Norm(vector)

	m.mu.RLock()
	var candidates []*memoryEntry
	if filter.DocumentID != "" {
		for id := range m.byDocument[filter.DocumentID] {
			candidates = append(candidates, m.entries[id])
		}
	} else {
		candidates = make([]*memoryEntry, 0, len(m.entries))
		for _, e := range m.entries {
			candidates = append(candidates, e)
		}
	}
	matches := make([]*Match, 0, len(candidates))
	for _, e := range candidates {
		var score float64
		if qNorm > 0 && e.Norm > 0 {
			score = InnerProduct(vector, e.Vector) / (qNorm * e.Norm)
		}
		matches = append(matches, &Match{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			ChunkIndex: e.ChunkIndex,
			Text:       e.Text,
			Score:      score,
		})
	}
	m.mu.RUnlock()

	SortMatches(matches)
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// SortMatches orders matches by score descending, then chunk index, then chunk ID.
func SortMatches(matches []*Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.ChunkID < b.ChunkID
	})
}

// DeleteDocument removes every chunk of documentID.
func (m *MemoryIndex) DeleteDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.byDocument[documentID] {
		delete(m.entries, id)
	}
	delete(m.byDocument, documentID)
	return nil
}

// Save persists the index to path as a gob snapshot. The directory is created if needed
// and the file is replaced atomically.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	snap := memorySnapshot{Dimensions: m.dimensions, Entries: make([]memoryEntry, 0, len(m.entries))}
	for _, e := range m.entries {
		snap.Entries = append(snap.Entries, *e)
	}
	m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vectors-*")
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var snap memorySnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}
	if snap.Dimensions != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", snap.Dimensions, m.dimensions)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry, len(snap.Entries))
	m.byDocument = make(map[string]map[string]struct{})
	for i := range snap.Entries {
		e := snap.Entries[i]
		if len(e.Vector) != m.dimensions {
			return fmt.Errorf("chunk %s has dimension %d, expected %d", e.ChunkID, len(e.Vector), m.dimensions)
		}
		m.put(&e)
	}
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
