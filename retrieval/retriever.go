package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/sitesage/ai"
	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/index"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultK is the number of passages returned when the caller passes k <= 0.
	DefaultK = 8
	// DefaultOversample multiplies k when a post-filter is enabled.
	DefaultOversample = 3
)

var tracer = otel.Tracer("github.com/poiesic/sitesage/retrieval")

// IndexSource yields the index currently being served.
// *index.Live implements it.
type IndexSource interface {
	Load() *index.Index
}

// Retriever embeds queries and ranks passages from an index.
type Retriever struct {
	embedder      ai.Embedder
	source        IndexSource
	defaultK      int
	minSimilarity float32
	useMin        bool
	dedup         bool
	merge         bool
	oversample    int
	timeout       time.Duration
	logger        *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithDefaultK sets the result size used when Retrieve is called with k <= 0.
func WithDefaultK(k int) Option {
	return func(r *Retriever) error {
		if k <= 0 {
			return fmt.Errorf("%w: default k must be positive, got %d", core.ErrConfiguration, k)
		}
		r.defaultK = k
		return nil
	}
}

// WithMinSimilarity drops passages scoring below threshold.
func WithMinSimilarity(threshold float32) Option {
	return func(r *Retriever) error {
		r.minSimilarity = threshold
		r.useMin = true
		return nil
	}
}

// WithDedupByDocument keeps only the best passage of each document.
func WithDedupByDocument(enabled bool) Option {
	return func(r *Retriever) error {
		r.dedup = enabled
		return nil
	}
}

// WithMergeAdjacent merges passages of one document whose spans overlap or touch.
func WithMergeAdjacent(enabled bool) Option {
	return func(r *Retriever) error {
		r.merge = enabled
		return nil
	}
}

// WithOversample sets how many times k candidates are fetched when a
// post-filter is enabled.
func WithOversample(factor int) Option {
	return func(r *Retriever) error {
		if factor < 1 {
			return fmt.Errorf("%w: oversample factor must be at least 1, got %d", core.ErrConfiguration, factor)
		}
		r.oversample = factor
		return nil
	}
}

// WithTimeout bounds each Retrieve call. Zero means only the caller's
// context applies.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Retriever) error {
		if timeout < 0 {
			return fmt.Errorf("%w: timeout must not be negative", core.ErrConfiguration)
		}
		r.timeout = timeout
		return nil
	}
}

// New creates a new retriever.
func New(embedder ai.Embedder, source IndexSource, opts ...Option) (*Retriever, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if source == nil {
		return nil, ErrIndexRequired
	}

	r := &Retriever{
		embedder:   embedder,
		source:     source,
		defaultK:   DefaultK,
		oversample: DefaultOversample,
		logger:     slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")

	return r, nil
}

// DefaultK returns the result size used for k <= 0.
func (r *Retriever) DefaultK() int {
	return r.defaultK
}

// Retrieve returns up to k passages ranked by similarity to query.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*core.RetrievalResult, error) {
	return r.RetrieveWithMonitor(ctx, query, k, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each stage.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query string, k int, monitor Monitor) (*core.RetrievalResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if k <= 0 {
		k = r.defaultK
	}

	ctx, span := tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.k", k))

	result, err := r.retrieve(ctx, query, k, monitor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.hits", result.Len()))
	return result, nil
}

func (r *Retriever) retrieve(ctx context.Context, query string, k int, monitor Monitor) (*core.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	monitor.Start(query, k)

	idx := r.source.Load()
	if idx == nil || idx.Len() == 0 {
		return nil, core.ErrEmptyIndex
	}
	if err := r.checkCompatible(idx); err != nil {
		return nil, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, asTimeout(err)
	}
	monitor.AfterEmbedding(vector)

	fetch := k
	if r.filtering() {
		fetch = k * r.oversample
	}
	hits, err := idx.Query(ctx, vector, fetch)
	if err != nil {
		r.logger.Error("error querying index", "err", err)
		return nil, asTimeout(err)
	}
	monitor.AfterIndexQuery(hits.Passages)

	kept := r.filter(hits.Passages)
	monitor.AfterFilter(kept)

	if len(kept) > k {
		kept = kept[:k]
	}
	result := &core.RetrievalResult{Query: query, Passages: kept}
	r.logger.Debug("retrieved passages", "k", k, "fetched", hits.Len(), "returned", len(kept))
	monitor.Finish(result)
	return result, nil
}

// checkCompatible rejects an index built from a different embedder.
func (r *Retriever) checkCompatible(idx *index.Index) error {
	if idx.Dimension() != r.embedder.Dimension() {
		return fmt.Errorf("%w: index dimension %d, embedder dimension %d",
			core.ErrDimensionMismatch, idx.Dimension(), r.embedder.Dimension())
	}
	if v := idx.EmbedderVersion(); v != "" && v != r.embedder.Version() {
		return fmt.Errorf("%w: index built with %q, embedder is %q",
			core.ErrDimensionMismatch, v, r.embedder.Version())
	}
	return nil
}

func (r *Retriever) filtering() bool {
	return r.useMin || r.dedup || r.merge
}

func (r *Retriever) filter(hits []core.ScoredPassage) []core.ScoredPassage {
	kept := make([]core.ScoredPassage, 0, len(hits))
	for _, h := range hits {
		if r.useMin && h.Score < r.minSimilarity {
			continue
		}
		kept = append(kept, h)
	}
	if r.merge {
		kept = mergeAdjacent(kept)
	}
	if r.dedup {
		kept = dedupByDocument(kept)
	}
	return kept
}

// asTimeout surfaces deadline expiry as the retryable timeout error.
func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
		return fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	return err
}
