package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/docidx/internal/schema"
	"github.com/fyrsmithlabs/docidx/internal/scope"
)

// MemoryAdapter is an in-process Adapter used for local development
// and tests. Search ranks by cosine similarity over stored embeddings
// and applies the scope filter exactly as the real backend would.
type MemoryAdapter struct {
	mu      sync.RWMutex
	indices map[string]*memoryIndex
}

type memoryIndex struct {
	config schema.IndexConfig
	units  map[string]schema.DocumentUnit // keyed by chunk id
}

var _ Adapter = (*MemoryAdapter)(nil)

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{indices: make(map[string]*memoryIndex)}
}

// IndexExists reports whether the named index has been created.
func (m *MemoryAdapter) IndexExists(_ context.Context, name string) (bool, error) {
	if err := ValidateIndexName(name); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.indices[name]
	return ok, nil
}

// CreateIndex creates an empty index. Idempotent.
func (m *MemoryAdapter) CreateIndex(_ context.Context, name string, cfg schema.IndexConfig) error {
	if err := ValidateIndexName(name); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indices[name]; ok {
		return nil
	}
	m.indices[name] = &memoryIndex{
		config: cfg,
		units:  make(map[string]schema.DocumentUnit),
	}
	return nil
}

// IndexUnits stores units keyed by chunk id, overwriting prior
// versions of the same chunk.
func (m *MemoryAdapter) IndexUnits(_ context.Context, name string, cfg schema.IndexConfig, units []schema.DocumentUnit) ([]UnitResult, error) {
	if err := ValidateIndexName(name); err != nil {
		return nil, err
	}
	results, accepted, positions, err := partitionUnits(cfg, units)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	for i, u := range accepted {
		idx.units[u.ChunkID] = u
		results[positions[i]].Success = true
	}
	return results, nil
}

// DeleteDocument removes every unit belonging to the document id.
func (m *MemoryAdapter) DeleteDocument(_ context.Context, name, documentID string) error {
	if err := ValidateIndexName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indices[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	for id, u := range idx.units {
		if u.DocumentID == documentID {
			delete(idx.units, id)
		}
	}
	return nil
}

// Search ranks stored units by cosine similarity against the query
// vector, keeping only units visible under the filter.
func (m *MemoryAdapter) Search(_ context.Context, name string, f scope.Filter, vector []float32, topK int) ([]Result, error) {
	if err := ValidateIndexName(name); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}

	results := make([]Result, 0, len(idx.units))
	for _, u := range idx.units {
		if !f.Matches(u.AccountID, u.UserID, u.SessionID, u.IsGlobal) {
			continue
		}
		results = append(results, Result{
			DocumentID: u.DocumentID,
			ChunkID:    u.ChunkID,
			Content:    u.Content,
			Score:      cosineSimilarity(vector, u.Embedding),
			Metadata:   u.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// UnitCount returns the number of stored units. Test helper.
func (m *MemoryAdapter) UnitCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indices[name]
	if !ok {
		return 0
	}
	return len(idx.units)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
