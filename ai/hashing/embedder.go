// Package hashing provides an offline ai.Embedder based on feature hashing.
//
// Each lower-cased word and adjacent word pair is hashed into one of
// Dimension buckets with a hash-derived sign, and the resulting vector is
// L2-normalized. Texts sharing vocabulary land close together under cosine
// similarity. The embedder needs no model or network access, which makes it
// useful for air-gapped builds and smoke tests.
package hashing

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/poiesic/sitesage/ai"
	"github.com/poiesic/sitesage/core"
)

// DefaultDimension is the default number of hash buckets.
const DefaultDimension = 512

// Embedder implements ai.Embedder with signed feature hashing.
type Embedder struct {
	dimension      int
	maxInputLength int
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates a hashing embedder with the given dimension.
// maxInputLength of zero disables the input length check.
func NewEmbedder(dimension, maxInputLength int) (ai.Embedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: hashing dimension must be positive, got %d", core.ErrConfiguration, dimension)
	}
	if maxInputLength < 0 {
		return nil, fmt.Errorf("%w: max input length must not be negative", core.ErrConfiguration)
	}
	return &Embedder{dimension: dimension, maxInputLength: maxInputLength}, nil
}

// Dimension returns the number of hash buckets.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Version identifies the hashing scheme and dimension.
func (e *Embedder) Version() string {
	return ai.FormatVersion("hashing", "fnv-bow", e.dimension)
}

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds texts independently, in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ai.CheckInputLength(texts, e.maxInputLength); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %w", core.ErrTimeout, err)
			}
			return nil, err
		}
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *Embedder) embed(text string) []float32 {
	acc := make([]float64, e.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		e.add(acc, w, 1)
		if i > 0 {
			e.add(acc, words[i-1]+" "+w, 0.5)
		}
	}

	var sumSquares float64
	for _, v := range acc {
		sumSquares += v * v
	}
	vector := make([]float32, e.dimension)
	if sumSquares == 0 {
		return vector
	}
	inv := 1 / math.Sqrt(sumSquares)
	for i, v := range acc {
		vector[i] = float32(v * inv)
	}
	return vector
}

func (e *Embedder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(e.dimension)
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}
