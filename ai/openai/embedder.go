package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/sitesage/ai"
	"github.com/poiesic/sitesage/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder       embeddings.Embedder
	dimension      int
	maxInputLength int
	version        string
	limiter        *rate.Limiter
	logger         *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
// A nil httpClient uses the library default.
func newEmbedder(config *ai.Config, httpClient *http.Client) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(clientOptions(config.EmbeddingHost, config.APIKey, httpClient,
		openai.WithEmbeddingModel(config.EmbeddingModel))...)
	if err != nil {
		return nil, err
	}

	// Wrap in langchaingo embedder
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:       embedder,
		dimension:      config.Dimension,
		maxInputLength: config.MaxInputLength,
		version:        ai.FormatVersion("openai", config.EmbeddingModel, config.Dimension),
		limiter:        newLimiter(config.RequestsPerSecond),
		logger:         slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config, nil)
}

// Dimension returns the configured vector length.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Version identifies the embedding model and dimension.
func (e *Embedder) Version() string {
	return e.version
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// Texts longer than the configured maximum fail the whole batch before any
// request is sent.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ai.CheckInputLength(texts, e.maxInputLength); err != nil {
		return nil, err
	}

	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	if err := wait(ctx, e.limiter); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingFailure, classify(ctx, err))
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingFailure, classify(ctx, err))
	}

	if err := ai.CheckVectors(vectors, len(texts), e.dimension); err != nil {
		e.logger.Error("embedding service returned unexpected vectors", "err", err)
		return nil, err
	}

	return vectors, nil
}
