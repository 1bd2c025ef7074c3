package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/sitesage/ai"
	"github.com/poiesic/sitesage/chunker"
	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/index"
)

const (
	// DefaultBatchSize is the number of passages sent to the embedder at once.
	DefaultBatchSize = 32
	// DefaultMaxAttempts bounds embedding attempts per batch.
	DefaultMaxAttempts = 3
	// DefaultRetryBaseDelay is the first backoff delay.
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// Stats summarizes a build.
type Stats struct {
	Documents int
	Passages  int
	Batches   int
	Splits    int // batches split after exhausting retries
	Elapsed   time.Duration
}

// Builder turns documents into a populated vector index.
type Builder struct {
	chunker   *chunker.Chunker
	embedder  ai.Embedder
	pool      *ants.Pool
	batchSize int
	backoff   Backoff
	metric    index.Metric
	kind      index.Kind
	normalize bool
	progress  io.Writer
	logger    *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(b *Builder) error {
		if size < 1 {
			size = 1
		}
		if b.pool != nil {
			b.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		b.pool = pool
		return nil
	}
}

// WithBatchSize sets how many passages are embedded per call.
func WithBatchSize(size int) Option {
	return func(b *Builder) error {
		if size < 1 {
			return fmt.Errorf("%w: batch size must be positive, got %d", core.ErrConfiguration, size)
		}
		b.batchSize = size
		return nil
	}
}

// WithRetry sets the attempts per batch and the first backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(b *Builder) error {
		if maxAttempts <= 0 {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, ErrInvalidMaxAttempts)
		}
		b.backoff.Attempts = maxAttempts
		b.backoff.BaseDelay = baseDelay
		return nil
	}
}

// WithMetric sets the similarity metric of built indexes.
func WithMetric(metric index.Metric) Option {
	return func(b *Builder) error {
		b.metric = metric
		return nil
	}
}

// WithKind sets the layout of built indexes.
func WithKind(kind index.Kind) Option {
	return func(b *Builder) error {
		b.kind = kind
		return nil
	}
}

// WithNormalize scales every vector to unit length before insertion, which
// makes InnerProduct rank like Cosine.
func WithNormalize(enabled bool) Option {
	return func(b *Builder) error {
		b.normalize = enabled
		return nil
	}
}

// WithProgress reports embedding progress to w.
func WithProgress(w io.Writer) Option {
	return func(b *Builder) error {
		b.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBuilder creates a new index builder.
func NewBuilder(c *chunker.Chunker, embedder ai.Embedder, opts ...Option) (*Builder, error) {
	if c == nil {
		return nil, ErrChunkerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		chunker:   c,
		embedder:  embedder,
		pool:      pool,
		batchSize: DefaultBatchSize,
		backoff:   Backoff{Attempts: DefaultMaxAttempts, BaseDelay: DefaultRetryBaseDelay},
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(b); optErr != nil {
			b.Release()
			return nil, optErr
		}
	}
	b.logger = b.logger.With("component", "builder")
	b.backoff.Logger = b.logger

	return b, nil
}

// Build chunks and embeds docs and returns a new index holding every passage.
// Passages are inserted in document order, so ties at query time favour
// earlier documents. The returned index is not shared with anything and can
// be handed to index.Live.Swap.
func (b *Builder) Build(ctx context.Context, docs []*core.Document) (*index.Index, *Stats, error) {
	started := time.Now()

	idx, err := index.New(index.Options{
		Dimension:       b.embedder.Dimension(),
		Metric:          b.metric,
		Kind:            b.kind,
		EmbedderVersion: b.embedder.Version(),
	})
	if err != nil {
		return nil, nil, err
	}

	var passages []core.Passage
	for _, doc := range docs {
		chunked, err := b.chunker.Chunk(doc)
		if err != nil {
			source := ""
			if doc != nil {
				source = doc.Source
			}
			b.logger.Error("error chunking document", "source", source, "err", err)
			return nil, nil, fmt.Errorf("chunking %q: %w", source, err)
		}
		passages = append(passages, chunked...)
	}

	stats := &Stats{Documents: len(docs), Passages: len(passages)}
	b.logger.Info("building index", "documents", len(docs), "passages", len(passages), "embedder", b.embedder.Version())

	vectors, err := b.embedAll(ctx, passages, stats)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]core.IndexEntry, len(passages))
	for i, p := range passages {
		if b.normalize && !normalize(vectors[i]) {
			b.logger.Warn("zero vector left as is", "passage", p.ID, "source", p.Source)
		}
		entries[i] = core.IndexEntry{Passage: p, Vector: vectors[i]}
	}
	if err := idx.InsertBatch(entries); err != nil {
		return nil, nil, err
	}

	stats.Elapsed = time.Since(started)
	b.logger.Info("index built", "entries", idx.Len(), "batches", stats.Batches, "splits", stats.Splits, "elapsed", stats.Elapsed)
	return idx, stats, nil
}

// embedAll embeds passages batch by batch on the pool and returns the
// vectors in passage order. The first failure cancels the remaining batches.
func (b *Builder) embedAll(ctx context.Context, passages []core.Passage, stats *Stats) ([][]float32, error) {
	vectors := make([][]float32, len(passages))
	if len(passages) == 0 {
		return vectors, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var progress *Progress
	if b.progress != nil {
		progress = NewProgress(b.progress, "embedding passages", len(passages))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for start := 0; start < len(passages); start += b.batchSize {
		end := min(start+b.batchSize, len(passages))
		texts := make([]string, end-start)
		for i, p := range passages[start:end] {
			texts[i] = p.Text
		}

		stats.Batches++
		wg.Add(1)
		submitErr := b.pool.Submit(func() {
			defer wg.Done()
			batch, splits, err := b.embedBatch(ctx, texts)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			copy(vectors[start:end], batch)
			stats.Splits += splits
			mu.Unlock()
			if progress != nil {
				progress.Add(len(batch))
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		b.logger.Error("error embedding passages", "err", firstErr)
		if errors.Is(firstErr, context.DeadlineExceeded) && !errors.Is(firstErr, core.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", core.ErrTimeout, firstErr)
		}
		return nil, firstErr
	}
	if progress != nil {
		progress.Done()
	}
	return vectors, nil
}

// embedBatch embeds texts with retries. A batch that still fails with an
// embedding error is split in half and each half is embedded on its own.
func (b *Builder) embedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	var vectors [][]float32
	err := b.backoff.Do(ctx, func(ctx context.Context) error {
		v, err := b.embedder.EmbedTexts(ctx, texts)
		if err == nil {
			err = ai.CheckVectors(v, len(texts), b.embedder.Dimension())
		}
		if err != nil {
			if !core.IsRetryable(err) || errors.Is(err, ai.ErrTextTooLong) {
				return Permanent(err)
			}
			return err
		}
		vectors = v
		return nil
	})
	if err == nil {
		return vectors, 0, nil
	}
	if len(texts) == 1 || !errors.Is(err, core.ErrEmbeddingFailure) || ctx.Err() != nil {
		return nil, 0, err
	}

	mid := len(texts) / 2
	b.logger.Warn("splitting failed batch", "size", len(texts), "err", err)
	left, leftSplits, err := b.embedBatch(ctx, texts[:mid])
	if err != nil {
		return nil, 0, err
	}
	right, rightSplits, err := b.embedBatch(ctx, texts[mid:])
	if err != nil {
		return nil, 0, err
	}
	return append(left, right...), 1 + leftSplits + rightSplits, nil
}

// Release releases the worker pool.
// The builder should not be used after calling Release.
func (b *Builder) Release() {
	if b.pool != nil {
		b.pool.Release()
	}
}
