package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/poiesic/sitesage/ai"
)

// DefaultDimension is the vector length produced by NewMockEmbedder.
const DefaultDimension = 384

// MockEmbedder is an ai.Embedder for tests. Set the Func fields to inject
// failures or fixed vectors.
type MockEmbedder struct {
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Dim is the vector length reported and produced by default.
	Dim int

	// VersionName is returned by Version. Defaults to "mock/fnv@<Dim>".
	VersionName string

	// MaxInputLength rejects longer texts like a real embedder. Zero disables it.
	MaxInputLength int

	callCount atomic.Int64
}

var _ ai.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder returns a DefaultDimension embedder.
func NewMockEmbedder() *MockEmbedder {
	return NewMockEmbedderWithDimension(DefaultDimension)
}

// NewMockEmbedderWithDimension creates a mock embedder producing dim-length vectors.
func NewMockEmbedderWithDimension(dim int) *MockEmbedder {
	return &MockEmbedder{Dim: dim}
}

// Dimension returns Dim.
func (m *MockEmbedder) Dimension() int {
	return m.Dim
}

// Version returns VersionName or a name derived from the dimension.
func (m *MockEmbedder) Version() string {
	if m.VersionName != "" {
		return m.VersionName
	}
	return ai.FormatVersion("mock", "fnv", m.Dim)
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount.Add(1)

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	if err := ai.CheckInputLength([]string{text}, m.MaxInputLength); err != nil {
		return nil, err
	}

	return GenerateDeterministicVector(text, m.Dim), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount.Add(1)

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	if err := ai.CheckInputLength(texts, m.MaxInputLength); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = GenerateDeterministicVector(text, m.Dim)
	}
	return embeddings, nil
}

// CallCount counts EmbedText and EmbedTexts calls.
func (m *MockEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockEmbedder) Reset() {
	m.callCount.Store(0)
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// GenerateDeterministicVector derives a unit vector from an FNV-64a hash of
// text. Equal texts always map to equal vectors.
func GenerateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	vector := make([]float32, dim)
	var norm float64
	for i := range vector {
		// xorshift64
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float64(state>>11)/float64(1<<53) - 0.5
		vector[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}
