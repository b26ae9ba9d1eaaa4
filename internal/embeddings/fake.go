package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// FakeEmbedder produces deterministic vectors derived from the text
// content. Used by tests and the in-memory development backend; the
// vectors are stable across runs so similarity comparisons behave
// consistently.
type FakeEmbedder struct {
	Dimensions int
}

var _ Embedder = (*FakeEmbedder)(nil)

// NewFakeEmbedder creates a fake embedder emitting vectors of the
// given dimensionality.
func NewFakeEmbedder(dimensions int) *FakeEmbedder {
	return &FakeEmbedder{Dimensions: dimensions}
}

// Embed returns one deterministic vector per text.
func (f *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = f.vector(t)
	}
	return vectors, nil
}

// EmbedQuery returns the deterministic vector for a query text.
func (f *FakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}
	return f.vector(text), nil
}

func (f *FakeEmbedder) vector(text string) []float32 {
	dims := f.Dimensions
	if dims <= 0 {
		dims = 8
	}
	v := make([]float32, dims)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>33)) / float32(math.MaxInt32)
		norm += float64(v[i]) * float64(v[i])
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v
}
