package ai

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/poiesic/sitesage/core"
)

var (
	// ErrTextTooLong indicates an input exceeds the embedder's maximum length.
	ErrTextTooLong = errors.New("text exceeds maximum input length")

	// ErrInvalidRequest indicates a remote service rejected the request itself.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyResponse indicates a remote service returned no usable content.
	ErrEmptyResponse = errors.New("empty response")
)

// FormatVersion builds the Embedder.Version string for a provider and model.
func FormatVersion(provider, model string, dimension int) string {
	return fmt.Sprintf("%s/%s@%d", provider, model, dimension)
}

// CheckInputLength rejects any text longer than maxRunes before a model is
// called. A maxRunes of zero or less disables the check.
func CheckInputLength(texts []string, maxRunes int) error {
	if maxRunes <= 0 {
		return nil
	}
	for i, text := range texts {
		if n := utf8.RuneCountInString(text); n > maxRunes {
			return fmt.Errorf("%w: %w: text %d has %d characters, limit is %d",
				core.ErrEmbeddingFailure, ErrTextTooLong, i, n, maxRunes)
		}
	}
	return nil
}

// CheckVectors verifies an embedding batch has one vector per input and that
// every vector has the expected dimension.
func CheckVectors(vectors [][]float32, inputs, dimension int) error {
	if len(vectors) != inputs {
		return fmt.Errorf("%w: expected %d vectors, received %d", core.ErrEmbeddingFailure, inputs, len(vectors))
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d",
				core.ErrDimensionMismatch, i, len(v), dimension)
		}
	}
	return nil
}
