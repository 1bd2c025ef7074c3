// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sitesage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/sitesage/ai"
	"github.com/poiesic/sitesage/ai/hashing"
	"github.com/poiesic/sitesage/ai/openai"
	"github.com/poiesic/sitesage/chunker"
	"github.com/poiesic/sitesage/config"
	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/index"
	"github.com/poiesic/sitesage/ingestion"
	"github.com/poiesic/sitesage/loader"
	"github.com/poiesic/sitesage/prompt"
	"github.com/poiesic/sitesage/retrieval"
	"github.com/poiesic/sitesage/storage"
	"github.com/poiesic/sitesage/storage/badger"
	"github.com/poiesic/sitesage/storage/sqlite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/poiesic/sitesage")

// generationRetryDelay is the first backoff delay between answer attempts.
const generationRetryDelay = time.Second

// Engine ties the document store, the index, and the question path together.
type Engine struct {
	cfg       *config.Config
	store     storage.Store
	provider  ai.AIProvider
	embedder  ai.Embedder
	chunker   *chunker.Chunker
	loader    *loader.Loader
	live      *index.Live
	retriever *retrieval.Retriever
	assembler *prompt.Assembler
	progress  io.Writer
	base      *slog.Logger // untagged, handed to components
	logger    *slog.Logger

	retryDelay time.Duration

	buildMu sync.Mutex // one build at a time
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	store    storage.Store
	provider ai.AIProvider
	progress io.Writer
	logger   *slog.Logger
}

// WithStore uses an already opened store instead of the configured one.
// The engine takes ownership and closes it.
func WithStore(store storage.Store) EngineOption {
	return func(o *engineOptions) {
		o.store = store
	}
}

// WithProvider supplies both the embedder and the generator, overriding the
// configured embedding provider.
func WithProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithProgress reports build progress to w.
func WithProgress(w io.Writer) EngineOption {
	return func(o *engineOptions) {
		o.progress = w
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewEngine opens the configured store, loads the saved index snapshot if
// there is one, and wires the query path. Without a snapshot the engine
// serves an empty index until Build or Import.
func NewEngine(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	e := &Engine{
		cfg:        cfg,
		progress:   options.progress,
		base:       options.logger,
		logger:     options.logger.With("component", "engine"),
		retryDelay: generationRetryDelay,
	}

	if err := e.init(options); err != nil {
		if closeErr := e.Close(); closeErr != nil {
			e.logger.Error("error closing engine after failed start", "err", closeErr)
		}
		return nil, err
	}
	return e, nil
}

func (e *Engine) init(options *engineOptions) error {
	var err error

	e.store = options.store
	if e.store == nil {
		if e.store, err = openStore(e.cfg.Storage, options.logger); err != nil {
			return err
		}
	}

	e.provider = options.provider
	if e.provider == nil {
		if e.provider, err = openai.NewProvider(e.cfg.AIConfig()); err != nil {
			return err
		}
		e.embedder = e.provider.Embedder()
		if e.cfg.Embedding.Provider == config.ProviderHashing {
			if e.embedder, err = hashing.NewEmbedder(e.cfg.Embedding.Dimension, e.cfg.Embedding.MaxInputLength); err != nil {
				return err
			}
		}
	} else {
		e.embedder = e.provider.Embedder()
	}

	chunkCfg, err := e.cfg.ChunkerConfig()
	if err != nil {
		return err
	}
	if e.chunker, err = chunker.New(chunkCfg, chunker.WithLogger(options.logger)); err != nil {
		return err
	}
	if e.loader, err = loader.New(loader.WithMinWords(e.cfg.Build.MinWords), loader.WithLogger(options.logger)); err != nil {
		return err
	}

	idx, err := e.loadSnapshot()
	if err != nil {
		return err
	}
	e.live = index.NewLive(idx)

	retrieverOpts := []retrieval.Option{
		retrieval.WithLogger(options.logger),
		retrieval.WithDefaultK(e.cfg.Retrieval.TopK),
		retrieval.WithDedupByDocument(e.cfg.Retrieval.DedupByDocument),
		retrieval.WithMergeAdjacent(e.cfg.Retrieval.MergeAdjacent),
		retrieval.WithOversample(e.cfg.Retrieval.Oversample),
		retrieval.WithTimeout(e.cfg.Retrieval.Timeout.Duration),
	}
	if e.cfg.Retrieval.MinSimilarity != nil {
		retrieverOpts = append(retrieverOpts, retrieval.WithMinSimilarity(*e.cfg.Retrieval.MinSimilarity))
	}
	if e.retriever, err = retrieval.New(e.embedder, e.live, retrieverOpts...); err != nil {
		return err
	}

	tmpl, err := e.cfg.Template()
	if err != nil {
		return err
	}
	e.assembler, err = prompt.NewAssembler(prompt.WithTemplate(tmpl), prompt.WithLogger(options.logger))
	return err
}

func openStore(cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.Open(cfg.Path)
	default:
		return badger.Open(cfg.Path, badger.WithBackendLogger(logger))
	}
}

// loadSnapshot returns the saved index, or nil when none was saved.
func (e *Engine) loadSnapshot() (*index.Index, error) {
	data, err := e.store.LoadSnapshot(context.Background(), e.cfg.Storage.Snapshot)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Info("no saved index, build one before querying", "snapshot", e.cfg.Storage.Snapshot)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	idx, err := index.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %q: %w", e.cfg.Storage.Snapshot, err)
	}
	if idx.Dimension() != e.embedder.Dimension() || (idx.EmbedderVersion() != "" && idx.EmbedderVersion() != e.embedder.Version()) {
		e.logger.Warn("saved index was built with a different embedder, rebuild it",
			"index_embedder", idx.EmbedderVersion(), "embedder", e.embedder.Version())
	}
	e.logger.Info("loaded index", "entries", idx.Len(), "build_id", idx.BuildID())
	return idx, nil
}

// Close releases the store and the AI provider.
func (e *Engine) Close() error {
	var errs []error
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("error closing store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Store returns the document store.
func (e *Engine) Store() storage.Store {
	return e.store
}

// Index returns the index currently being served, or nil.
func (e *Engine) Index() *index.Index {
	return e.live.Load()
}

// Retriever returns the query-path retriever.
func (e *Engine) Retriever() *retrieval.Retriever {
	return e.retriever
}

// Ingest stores documents for the next build.
func (e *Engine) Ingest(ctx context.Context, docs ...*core.Document) error {
	return e.store.AddDocuments(ctx, docs...)
}

// IngestPath loads documents from a file or directory and stores them.
// It returns the number of documents stored.
func (e *Engine) IngestPath(ctx context.Context, path string) (int, error) {
	docs, err := e.loader.Load(ctx, path)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := e.store.AddDocuments(ctx, docs...); err != nil {
		return 0, err
	}
	e.logger.Info("ingested documents", "path", path, "documents", len(docs))
	return len(docs), nil
}

// Build indexes every stored document, saves the snapshot, and then
// publishes the new index. Queries keep using the previous index until the
// swap. A failed or canceled build leaves the served index untouched.
func (e *Engine) Build(ctx context.Context) (*ingestion.Stats, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	metric, err := e.cfg.Metric()
	if err != nil {
		return nil, err
	}
	kind, err := e.cfg.Kind()
	if err != nil {
		return nil, err
	}

	builderOpts := []ingestion.Option{
		ingestion.WithBatchSize(e.cfg.Build.BatchSize),
		ingestion.WithRetry(e.cfg.Build.MaxAttempts, e.cfg.Build.RetryBaseDelay.Duration),
		ingestion.WithMetric(metric),
		ingestion.WithKind(kind),
		ingestion.WithNormalize(e.cfg.Build.Normalize),
		ingestion.WithLogger(e.base),
	}
	if e.cfg.Build.PoolSize > 0 {
		builderOpts = append(builderOpts, ingestion.WithPoolSize(e.cfg.Build.PoolSize))
	}
	if e.progress != nil {
		builderOpts = append(builderOpts, ingestion.WithProgress(e.progress))
	}

	builder, err := ingestion.NewBuilder(e.chunker, e.embedder, builderOpts...)
	if err != nil {
		return nil, err
	}
	defer builder.Release()

	idx, stats, err := builder.Build(ctx, docs)
	if err != nil {
		return nil, err
	}
	if err := e.publish(ctx, idx); err != nil {
		return nil, err
	}
	return stats, nil
}

// publish saves idx as the snapshot and swaps it in.
func (e *Engine) publish(ctx context.Context, idx *index.Index) error {
	data, err := idx.MarshalBinary()
	if err != nil {
		return err
	}
	if err := e.store.SaveSnapshot(ctx, e.cfg.Storage.Snapshot, data); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	old := e.live.Swap(idx)
	if old != nil {
		e.logger.Info("index swapped", "old_build_id", old.BuildID(), "build_id", idx.BuildID(), "entries", idx.Len())
	}
	return nil
}

// Export writes the served index artifact to w.
func (e *Engine) Export(w io.Writer) error {
	idx := e.live.Load()
	if idx == nil {
		return core.ErrEmptyIndex
	}
	_, err := idx.WriteTo(w)
	return err
}

// Import reads an index artifact from r, saves it as the snapshot, and
// serves it.
func (e *Engine) Import(ctx context.Context, r io.Reader) error {
	idx, err := index.Read(r)
	if err != nil {
		return err
	}
	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	return e.publish(ctx, idx)
}

// Retrieve returns the k passages closest to query; k <= 0 uses top_k.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) (*core.RetrievalResult, error) {
	return e.retriever.Retrieve(ctx, query, k)
}

// Ask answers question from the retrieved context. Retryable generator
// failures are retried up to the configured max_retries.
func (e *Engine) Ask(ctx context.Context, question string) (answer *core.Answer, err error) {
	ctx, span := tracer.Start(ctx, "sitesage.Ask")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	result, err := e.retriever.Retrieve(ctx, question, 0)
	if err != nil {
		return nil, err
	}
	pc, err := e.assembler.Assemble(question, result, e.cfg.Generation.MaxContextSize)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("sitesage.passages", len(pc.Passages)),
		attribute.Int("sitesage.dropped", pc.Dropped),
		attribute.Int("sitesage.context_size", pc.Size),
	)

	rendered := e.assembler.Render(pc)
	var text string
	backoff := ingestion.Backoff{
		Attempts:  e.cfg.Generation.MaxRetries + 1,
		BaseDelay: e.retryDelay,
		Logger:    e.logger,
	}
	err = backoff.Do(ctx, func(ctx context.Context) error {
		var genErr error
		text, genErr = e.generate(ctx, rendered, question)
		if genErr != nil && !core.IsRetryable(genErr) {
			return ingestion.Permanent(genErr)
		}
		return genErr
	})
	if err != nil {
		e.logger.Error("could not produce an answer", "err", err)
		return nil, err
	}

	return &core.Answer{Question: question, Text: text, Context: pc}, nil
}

func (e *Engine) generate(ctx context.Context, rendered, question string) (string, error) {
	if timeout := e.cfg.Generation.Timeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := e.provider.Generator().Generate(ctx, rendered, question)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
		err = fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	if !errors.Is(err, core.ErrGeneratorFailure) {
		err = fmt.Errorf("%w: %w", core.ErrGeneratorFailure, err)
	}
	return "", err
}

// Stats describes the stored documents and the served index.
type Stats struct {
	Documents       int
	Entries         int
	Dimension       int
	Metric          string
	Kind            string
	EmbedderVersion string
	BuildID         string
}

// Stats reports store and index metadata.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	count, err := e.store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Documents: count, Dimension: e.embedder.Dimension(), EmbedderVersion: e.embedder.Version()}
	if idx := e.live.Load(); idx != nil {
		stats.Entries = idx.Len()
		stats.Dimension = idx.Dimension()
		stats.Metric = idx.Metric().String()
		stats.Kind = idx.Kind().String()
		stats.EmbedderVersion = idx.EmbedderVersion()
		stats.BuildID = idx.BuildID().String()
	}
	return stats, nil
}
