package ai

import (
	"context"
)

// Embedder maps text to fixed-dimension vectors.
// Implementations must be stateless and safe for concurrent use.
type Embedder interface {
	// EmbedText generates an embedding vector for a single text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embedding vectors for multiple texts, in input order.
	// The batch fails as a whole: on error no vectors are returned.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of every vector this embedder produces.
	Dimension() int

	// Version identifies the model and dimension. Vectors from different
	// versions must never share an index.
	Version() string
}

// Generator produces an answer from a rendered prompt.
type Generator interface {
	// Generate returns the answer to query grounded in prompt.
	// Failures wrap core.ErrGeneratorFailure.
	Generate(ctx context.Context, prompt string, query string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization.
type AIProvider interface {
	Embedder() Embedder
	Generator() Generator
	Close() error
}
