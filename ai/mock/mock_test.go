package mock

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/poiesic/sitesage/ai"
	"github.com/poiesic/sitesage/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedderDefaults(t *testing.T) {
	m := NewMockEmbedderWithDimension(16)
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)

	batch, err := m.EmbedTexts(ctx, []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, a, batch[0])
	assert.NotEqual(t, batch[0], batch[1])

	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, 16, m.Dimension())
	assert.Equal(t, "mock/fnv@16", m.Version())
}

func TestMockEmbedderInjection(t *testing.T) {
	m := NewMockEmbedder()
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("boom")
	}
	_, err := m.EmbedTexts(context.Background(), []string{"x"})
	require.Error(t, err)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	_, err = m.EmbedTexts(context.Background(), []string{"x"})
	require.NoError(t, err)
}

func TestMockEmbedderMaxInputLength(t *testing.T) {
	m := NewMockEmbedderWithDimension(4)
	m.MaxInputLength = 5

	_, err := m.EmbedTexts(context.Background(), []string{"short", strings.Repeat("y", 6)})
	assert.ErrorIs(t, err, core.ErrEmbeddingFailure)
	assert.ErrorIs(t, err, ai.ErrTextTooLong)
}

func TestMockGenerator(t *testing.T) {
	g := NewMockGenerator()

	answer, err := g.Generate(context.Background(), "the prompt", "why?")
	require.NoError(t, err)
	assert.Equal(t, "mock answer: why?", answer)
	assert.Equal(t, "the prompt", g.LastPrompt())
	assert.Equal(t, 1, g.CallCount())

	g.Reset()
	assert.Equal(t, 0, g.CallCount())
	assert.Empty(t, g.LastPrompt())
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	assert.Same(t, p.GetMockEmbedder(), p.Embedder())
	assert.Same(t, p.GetMockGenerator(), p.Generator())
	assert.NoError(t, p.Close())
	assert.True(t, p.Closed())

	custom := NewMockEmbedderWithDimension(3)
	withCustom := NewMockProviderWith(custom, nil)
	assert.Same(t, custom, withCustom.GetMockEmbedder())
	assert.NotNil(t, withCustom.GetMockGenerator())
}
