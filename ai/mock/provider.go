package mock

import "github.com/poiesic/sitesage/ai"

// MockProvider hands out a MockEmbedder and a MockGenerator.
type MockProvider struct {
	embedder  *MockEmbedder
	generator *MockGenerator
	closed    bool
}

var _ ai.AIProvider = (*MockProvider)(nil)

// NewMockProvider returns a provider backed by default mocks.
// Use GetMockEmbedder and GetMockGenerator to reach the concrete doubles.
func NewMockProvider() *MockProvider {
	return NewMockProviderWith(NewMockEmbedder(), NewMockGenerator())
}

// NewMockProviderWith wraps the given doubles. A nil argument gets a default.
func NewMockProviderWith(embedder *MockEmbedder, generator *MockGenerator) *MockProvider {
	if embedder == nil {
		embedder = NewMockEmbedder()
	}
	if generator == nil {
		generator = NewMockGenerator()
	}
	return &MockProvider{embedder: embedder, generator: generator}
}

func (p *MockProvider) Embedder() ai.Embedder   { return p.embedder }
func (p *MockProvider) Generator() ai.Generator { return p.generator }

// Close marks the provider closed; see Closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

func (p *MockProvider) GetMockGenerator() *MockGenerator {
	return p.generator
}
