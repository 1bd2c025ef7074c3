// Package config loads sitesage settings from a TOML file and the
// environment.
//
// Every field has a default, so an empty or missing file describes a
// working local setup: badger storage under ./sitesage-data, a hashing
// embedder, an exact flat index, and an OpenAI-compatible generator on
// localhost. Secrets are never read from the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/sitesage/ai"
	"github.com/poiesic/sitesage/chunker"
	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/index"
	"github.com/poiesic/sitesage/ingestion"
	"github.com/poiesic/sitesage/loader"
	"github.com/poiesic/sitesage/prompt"
	"github.com/poiesic/sitesage/retrieval"
)

// Environment variables holding the API key, in lookup order.
const (
	EnvAPIKey      = "SITESAGE_API_KEY"
	EnvGroqAPIKey  = "GROQ_API_KEY"
	DefaultFile    = "sitesage.toml"
	DefaultDataDir = "sitesage-data"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Embedding providers.
const (
	ProviderHashing = "hashing"
	ProviderOpenAI  = "openai"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete file configuration.
type Config struct {
	// RequestsPerSecond limits calls to each remote AI service. Zero means unlimited.
	RequestsPerSecond float64 `toml:"requests_per_second"`

	Storage    StorageConfig    `toml:"storage"`
	Chunking   ChunkingConfig   `toml:"chunking"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Index      IndexConfig      `toml:"index"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Generation GenerationConfig `toml:"generation"`
	Build      BuildConfig      `toml:"build"`

	// APIKey comes from the environment only.
	APIKey string `toml:"-"`
}

// StorageConfig selects where documents and index snapshots live.
type StorageConfig struct {
	Backend  string `toml:"backend"`  // "badger" or "sqlite"
	Path     string `toml:"path"`     // badger directory or sqlite file
	Snapshot string `toml:"snapshot"` // slot name of the index snapshot
}

// ChunkingConfig mirrors chunker.Config.
type ChunkingConfig struct {
	MaxSize       int    `toml:"max_size"`
	Overlap       int    `toml:"overlap"`
	Unit          string `toml:"unit"`
	SentenceAware bool   `toml:"sentence_aware"`
	Tolerance     int    `toml:"tolerance"`
}

// EmbeddingConfig selects and tunes the embedder.
type EmbeddingConfig struct {
	Provider       string `toml:"provider"` // "hashing" or "openai"
	Host           string `toml:"host"`
	Model          string `toml:"model"`
	Dimension      int    `toml:"dimension"`
	MaxInputLength int    `toml:"max_input_length"`
}

// IndexConfig picks the similarity metric and index structure.
type IndexConfig struct {
	Metric string `toml:"metric"`
	Kind   string `toml:"kind"`
}

// RetrievalConfig tunes the retriever.
type RetrievalConfig struct {
	TopK            int      `toml:"top_k"`
	MinSimilarity   *float32 `toml:"min_similarity,omitempty"`
	DedupByDocument bool     `toml:"dedup_by_document"`
	MergeAdjacent   bool     `toml:"merge_adjacent"`
	Oversample      int      `toml:"oversample"`
	Timeout         Duration `toml:"timeout"`
}

// GenerationConfig tunes prompt assembly and the answer generator.
type GenerationConfig struct {
	Host           string   `toml:"host"`
	Model          string   `toml:"model"`
	Temperature    float64  `toml:"temperature"`
	MaxTokens      int      `toml:"max_tokens"`
	MaxContextSize int      `toml:"max_context_size"`
	TemplateFile   string   `toml:"template_file"`
	Timeout        Duration `toml:"timeout"`
	MaxRetries     int      `toml:"max_retries"`
}

// BuildConfig tunes index construction.
type BuildConfig struct {
	BatchSize      int      `toml:"batch_size"`
	PoolSize       int      `toml:"pool_size"`
	MaxAttempts    int      `toml:"max_attempts"`
	RetryBaseDelay Duration `toml:"retry_base_delay"`
	Normalize      bool     `toml:"normalize"`
	MinWords       int      `toml:"min_words"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Backend:  BackendBadger,
			Path:     DefaultDataDir,
			Snapshot: "index",
		},
		Chunking: ChunkingConfig{
			MaxSize: chunker.DefaultMaxSize,
			Overlap: chunker.DefaultOverlap,
			Unit:    chunker.UnitWords.String(),
		},
		Embedding: EmbeddingConfig{
			Provider:       ProviderHashing,
			Host:           aiDefaults.EmbeddingHost,
			Model:          aiDefaults.EmbeddingModel,
			Dimension:      aiDefaults.Dimension,
			MaxInputLength: aiDefaults.MaxInputLength,
		},
		Index: IndexConfig{
			Metric: index.Cosine.String(),
			Kind:   index.Flat.String(),
		},
		Retrieval: RetrievalConfig{
			TopK:       retrieval.DefaultK,
			Oversample: retrieval.DefaultOversample,
			Timeout:    Duration{30 * time.Second},
		},
		Generation: GenerationConfig{
			Host:           aiDefaults.GenerationHost,
			Model:          aiDefaults.GenerationModel,
			Temperature:    aiDefaults.Temperature,
			MaxContextSize: prompt.DefaultMaxContextSize,
			Timeout:        Duration{60 * time.Second},
			MaxRetries:     2,
		},
		Build: BuildConfig{
			BatchSize:      ingestion.DefaultBatchSize,
			MaxAttempts:    ingestion.DefaultMaxAttempts,
			RetryBaseDelay: Duration{ingestion.DefaultRetryBaseDelay},
			MinWords:       loader.DefaultMinWords,
		},
	}
}

// Load reads the TOML file at path over the defaults and applies the
// environment. An empty path, or the default file being absent, yields
// the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		cfg.ApplyEnv()
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultFile {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := cfg.Decode(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Decode reads TOML from r over the current values.
func (c *Config) Decode(r io.Reader) error {
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s", core.ErrConfiguration, strings.TrimSpace(strict.String()))
		}
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	return nil
}

// Write encodes the configuration as TOML.
func (c *Config) Write(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}

// ApplyEnv fills the API key from the environment.
func (c *Config) ApplyEnv() {
	for _, name := range []string{EnvAPIKey, EnvGroqAPIKey} {
		if v := os.Getenv(name); v != "" {
			c.APIKey = v
			return
		}
	}
}

// ChunkerConfig converts the chunking section.
func (c *Config) ChunkerConfig() (chunker.Config, error) {
	unit, err := chunker.ParseUnit(c.Chunking.Unit)
	if err != nil {
		return chunker.Config{}, err
	}
	cfg := chunker.Config{
		MaxSize:       c.Chunking.MaxSize,
		Overlap:       c.Chunking.Overlap,
		Unit:          unit,
		SentenceAware: c.Chunking.SentenceAware,
		Tolerance:     c.Chunking.Tolerance,
	}
	return cfg, cfg.Validate()
}

// AIConfig converts the embedding and generation sections.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model, c.Embedding.Dimension),
		ai.WithMaxInputLength(c.Embedding.MaxInputLength),
		ai.WithGenerationHost(c.Generation.Host),
		ai.WithGenerationModel(c.Generation.Model),
		ai.WithTemperature(c.Generation.Temperature),
		ai.WithMaxTokens(c.Generation.MaxTokens),
		ai.WithRequestsPerSecond(c.RequestsPerSecond),
		ai.WithAPIKey(c.APIKey),
	)
}

// Metric parses the index metric.
func (c *Config) Metric() (index.Metric, error) {
	return index.ParseMetric(c.Index.Metric)
}

// Kind parses the index kind.
func (c *Config) Kind() (index.Kind, error) {
	return index.ParseKind(c.Index.Kind)
}

// Template returns the prompt template, reading TemplateFile when set.
func (c *Config) Template() (string, error) {
	if c.Generation.TemplateFile == "" {
		return prompt.DefaultTemplate, nil
	}
	data, err := os.ReadFile(c.Generation.TemplateFile)
	if err != nil {
		return "", fmt.Errorf("%w: reading template: %w", core.ErrConfiguration, err)
	}
	return string(data), nil
}

// minPassageChars is the shortest a full window can be. Word windows hold
// MaxSize words of at least one character joined by single spaces.
func minPassageChars(cfg chunker.Config) int {
	if cfg.Unit == chunker.UnitWords {
		return 2*cfg.MaxSize - 1
	}
	return cfg.MaxSize
}

// Validate checks every section. Component constructors validate again;
// this catches mistakes before any storage is opened.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBadger, BackendSQLite:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", core.ErrConfiguration, c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("%w: storage path is required", core.ErrConfiguration)
	}
	if c.Storage.Snapshot == "" {
		return fmt.Errorf("%w: snapshot name is required", core.ErrConfiguration)
	}

	chunkCfg, err := c.ChunkerConfig()
	if err != nil {
		return err
	}

	switch c.Embedding.Provider {
	case ProviderHashing, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", core.ErrConfiguration, c.Embedding.Provider)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests_per_second must not be negative", core.ErrConfiguration)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", core.ErrConfiguration)
	}
	if c.Embedding.MaxInputLength < 0 {
		return fmt.Errorf("%w: max_input_length must not be negative", core.ErrConfiguration)
	}
	if limit := c.Embedding.MaxInputLength; limit > 0 && minPassageChars(chunkCfg) > limit {
		return fmt.Errorf("%w: a full %d-%s passage is at least %d characters, over embedding max_input_length %d",
			core.ErrConfiguration, chunkCfg.MaxSize, chunkCfg.Unit, minPassageChars(chunkCfg), limit)
	}

	if _, err := c.Metric(); err != nil {
		return err
	}
	if _, err := c.Kind(); err != nil {
		return err
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", core.ErrConfiguration)
	}
	if c.Retrieval.Oversample < 1 {
		return fmt.Errorf("%w: oversample must be at least 1", core.ErrConfiguration)
	}
	if c.Generation.MaxContextSize <= 0 {
		return fmt.Errorf("%w: max_context_size must be positive", core.ErrConfiguration)
	}
	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", core.ErrConfiguration)
	}

	if c.Build.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", core.ErrConfiguration)
	}
	if c.Build.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max_attempts must be positive", core.ErrConfiguration)
	}
	if c.Build.MinWords < 0 {
		return fmt.Errorf("%w: min_words must not be negative", core.ErrConfiguration)
	}
	return nil
}
