package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/sitesage/chunker"
	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/index"
	"github.com/poiesic/sitesage/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, 250, cfg.Chunking.MaxSize)
	assert.Equal(t, 40, cfg.Chunking.Overlap)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Nil(t, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, ProviderHashing, cfg.Embedding.Provider)

	chunkCfg, err := cfg.ChunkerConfig()
	require.NoError(t, err)
	assert.Equal(t, chunker.UnitWords, chunkCfg.Unit)
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvGroqAPIKey, "")

	path := filepath.Join(t.TempDir(), "sitesage.toml")
	content := `
[storage]
backend = "sqlite"
path = "data/sitesage.db"

[chunking]
max_size = 20
overlap = 5
unit = "chars"

[index]
metric = "inner_product"
kind = "tree"

[retrieval]
top_k = 3
min_similarity = 0.25
merge_adjacent = true
timeout = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "index", cfg.Storage.Snapshot, "unset keys keep their defaults")
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	require.NotNil(t, cfg.Retrieval.MinSimilarity)
	assert.InDelta(t, 0.25, *cfg.Retrieval.MinSimilarity, 1e-6)
	assert.True(t, cfg.Retrieval.MergeAdjacent)
	assert.Equal(t, 5*time.Second, cfg.Retrieval.Timeout.Duration)

	chunkCfg, err := cfg.ChunkerConfig()
	require.NoError(t, err)
	assert.Equal(t, chunker.Config{MaxSize: 20, Overlap: 5, Unit: chunker.UnitChars}, chunkCfg)

	metric, err := cfg.Metric()
	require.NoError(t, err)
	assert.Equal(t, index.InnerProduct, metric)
	kind, err := cfg.Kind()
	require.NoError(t, err)
	assert.Equal(t, index.Tree, kind)
}

func TestLoad_Missing(t *testing.T) {
	t.Run("default file may be absent", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := Load(DefaultFile)
		require.NoError(t, err)
		assert.Equal(t, Default().Storage, cfg.Storage)
	})

	t.Run("explicit file must exist", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestValidate_InputLengthBound(t *testing.T) {
	tests := []struct {
		name    string
		unit    string
		maxSize int
		limit   int
		wantErr bool
	}{
		{"chars at the limit", "chars", 512, 512, false},
		{"chars over the limit", "chars", 513, 512, true},
		{"words at the limit", "words", 256, 511, false},
		{"words over the limit", "words", 257, 511, true},
		{"no limit", "chars", 100000, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Chunking = ChunkingConfig{MaxSize: tt.maxSize, Overlap: 10, Unit: tt.unit}
			cfg.Embedding.MaxInputLength = tt.limit
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown key", "[retrieval]\ntopk = 3\n"},
		{"bad duration", "[retrieval]\ntimeout = \"soon\"\n"},
		{"bad syntax", "[retrieval\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Default().Decode(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"backend", func(c *Config) { c.Storage.Backend = "mongo" }},
		{"path", func(c *Config) { c.Storage.Path = "" }},
		{"overlap", func(c *Config) { c.Chunking.Overlap = c.Chunking.MaxSize }},
		{"unit", func(c *Config) { c.Chunking.Unit = "tokens" }},
		{"provider", func(c *Config) { c.Embedding.Provider = "magic" }},
		{"dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"metric", func(c *Config) { c.Index.Metric = "euclid" }},
		{"kind", func(c *Config) { c.Index.Kind = "hnsw" }},
		{"top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"context size", func(c *Config) { c.Generation.MaxContextSize = 0 }},
		{"batch size", func(c *Config) { c.Build.BatchSize = 0 }},
		{"rate", func(c *Config) { c.RequestsPerSecond = -1 }},
		{"negative input length", func(c *Config) { c.Embedding.MaxInputLength = -1 }},
		{"char window over input length", func(c *Config) {
			c.Chunking = ChunkingConfig{MaxSize: 10000, Overlap: 100, Unit: "chars"}
			c.Embedding.MaxInputLength = 8192
		}},
		{"word window over input length", func(c *Config) {
			c.Chunking.MaxSize = 300
			c.Embedding.MaxInputLength = 500
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), core.ErrConfiguration)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Run("sitesage key wins", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "primary")
		t.Setenv(EnvGroqAPIKey, "fallback")
		cfg := Default()
		cfg.ApplyEnv()
		assert.Equal(t, "primary", cfg.APIKey)
	})

	t.Run("groq fallback", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "")
		t.Setenv(EnvGroqAPIKey, "fallback")
		cfg := Default()
		cfg.ApplyEnv()
		assert.Equal(t, "fallback", cfg.APIKey)
		assert.Equal(t, "fallback", cfg.AIConfig().APIKey)
	})
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := Default()
	threshold := float32(0.5)
	cfg.Retrieval.MinSimilarity = &threshold
	cfg.APIKey = "secret"

	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))
	assert.NotContains(t, buf.String(), "secret")

	decoded := Default()
	require.NoError(t, decoded.Decode(&buf))
	assert.Equal(t, cfg.Retrieval, decoded.Retrieval)
	assert.Equal(t, cfg.Build, decoded.Build)
}

func TestTemplate(t *testing.T) {
	cfg := Default()
	tmpl, err := cfg.Template()
	require.NoError(t, err)
	assert.Equal(t, prompt.DefaultTemplate, tmpl)

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Q: {question}\nC: {context}"), 0644))
	cfg.Generation.TemplateFile = path
	tmpl, err = cfg.Template()
	require.NoError(t, err)
	assert.Equal(t, "Q: {question}\nC: {context}", tmpl)

	cfg.Generation.TemplateFile = filepath.Join(t.TempDir(), "missing.txt")
	_, err = cfg.Template()
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
