package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/sitesage/ai/mock"
	"github.com/poiesic/sitesage/chunker"
	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.Config{MaxSize: 6, Overlap: 2})
	require.NoError(t, err)
	return c
}

func testDocs(n int) []*core.Document {
	docs := make([]*core.Document, n)
	for i := range docs {
		docs[i] = &core.Document{
			Source: fmt.Sprintf("https://example.com/page-%d", i),
			Text:   strings.Repeat(fmt.Sprintf("page %d talks about topic %d. ", i, i), 5),
		}
	}
	return docs
}

func newTestBuilder(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) *Builder {
	t.Helper()
	opts = append([]Option{WithRetry(2, time.Millisecond), WithBatchSize(4), WithPoolSize(3)}, opts...)
	b, err := NewBuilder(testChunker(t), embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

func TestNewBuilder(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)

	t.Run("nil chunker", func(t *testing.T) {
		_, err := NewBuilder(nil, embedder)
		assert.Equal(t, ErrChunkerRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewBuilder(testChunker(t), nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewBuilder(testChunker(t), embedder, WithBatchSize(0))
		assert.ErrorIs(t, err, core.ErrConfiguration)
		_, err = NewBuilder(testChunker(t), embedder, WithRetry(0, time.Second))
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})
}

func TestBuild(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	b := newTestBuilder(t, embedder, WithKind(index.Tree))

	docs := testDocs(5)
	idx, stats, err := b.Build(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Documents)
	assert.Equal(t, stats.Passages, idx.Len())
	assert.Equal(t, (stats.Passages+3)/4, stats.Batches)
	assert.Equal(t, 8, idx.Dimension())
	assert.Equal(t, index.Tree, idx.Kind())
	assert.Equal(t, embedder.Version(), idx.EmbedderVersion())

	// Entries follow document order.
	entries := idx.Entries()
	assert.Equal(t, docs[0].Source, entries[0].Passage.Source)
	assert.Equal(t, docs[4].Source, entries[len(entries)-1].Passage.Source)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Seq, entries[i].Seq)
	}

	// Vectors match single-text embedding of each passage.
	for _, e := range entries {
		assert.Equal(t, mock.GenerateDeterministicVector(e.Passage.Text, 8), e.Vector)
	}
}

func TestBuildDeterministic(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	b := newTestBuilder(t, embedder)

	first, _, err := b.Build(context.Background(), testDocs(4))
	require.NoError(t, err)
	second, _, err := b.Build(context.Background(), testDocs(4))
	require.NoError(t, err)
	assert.Equal(t, first.Entries(), second.Entries())
	assert.NotEqual(t, first.BuildID(), second.BuildID())
}

func TestBuildEmpty(t *testing.T) {
	b := newTestBuilder(t, mock.NewMockEmbedderWithDimension(8))
	idx, stats, err := b.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 0, stats.Batches)
}

func TestBuildInvalidDocument(t *testing.T) {
	b := newTestBuilder(t, mock.NewMockEmbedderWithDimension(8))
	_, _, err := b.Build(context.Background(), []*core.Document{{Text: "no source"}})
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func TestBuildRetriesTransientFailures(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1)%2 == 1 {
			return nil, core.ErrTimeout
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.GenerateDeterministicVector(text, 8)
		}
		return out, nil
	}
	b := newTestBuilder(t, embedder, WithPoolSize(1))

	idx, stats, err := b.Build(context.Background(), testDocs(2))
	require.NoError(t, err)
	assert.Equal(t, stats.Passages, idx.Len())
	assert.Equal(t, 0, stats.Splits)
}

func TestBuildSplitsFailingBatches(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if len(texts) > 1 {
			return nil, fmt.Errorf("%w: batch too large", core.ErrEmbeddingFailure)
		}
		return [][]float32{mock.GenerateDeterministicVector(texts[0], 8)}, nil
	}
	b := newTestBuilder(t, embedder)

	idx, stats, err := b.Build(context.Background(), testDocs(3))
	require.NoError(t, err)
	assert.Equal(t, stats.Passages, idx.Len())
	assert.Positive(t, stats.Splits)
}

func TestBuildPermanentFailure(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		calls.Add(1)
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = make([]float32, 3)
		}
		return out, nil
	}
	b := newTestBuilder(t, embedder, WithPoolSize(1))

	_, _, err := b.Build(context.Background(), testDocs(1))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Equal(t, int32(1), calls.Load(), "dimension errors are not retried")
}

func TestBuildTextTooLong(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	embedder.MaxInputLength = 5
	b := newTestBuilder(t, embedder)

	_, _, err := b.Build(context.Background(), testDocs(1))
	assert.ErrorIs(t, err, core.ErrEmbeddingFailure)
}

func TestBuildCanceled(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	embedder.EmbedTextsFunc = func(ctx context.Context, _ []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b := newTestBuilder(t, embedder)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := b.Build(ctx, testDocs(2))
	assert.ErrorIs(t, err, core.ErrTimeout)
}

func TestBuildNormalizeAndProgress(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(4)
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{3, 4, 0, 0}
		}
		return out, nil
	}
	var progress bytes.Buffer
	b := newTestBuilder(t, embedder, WithMetric(index.InnerProduct), WithNormalize(true), WithProgress(&progress))

	idx, stats, err := b.Build(context.Background(), testDocs(2))
	require.NoError(t, err)
	assert.Equal(t, index.InnerProduct, idx.Metric())
	for _, e := range idx.Entries() {
		assert.InDeltaSlice(t, []float32{0.6, 0.8, 0, 0}, e.Vector, 1e-6)
	}
	assert.Contains(t, progress.String(), fmt.Sprintf("%d/%d", stats.Passages, stats.Passages))
}
