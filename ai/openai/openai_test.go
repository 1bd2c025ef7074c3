package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/sitesage/ai"
	"github.com/poiesic/sitesage/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer serves the two OpenAI endpoints used by this package.
func fakeServer(t *testing.T, dimension int, chatStatus int, answer string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dimension)
			vec[i%dimension] = 1
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test"})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if chatStatus != http.StatusOK {
			w.WriteHeader(chatStatus)
			fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(host string, dimension int) *ai.Config {
	return ai.NewConfig(
		ai.WithHost(host),
		ai.WithEmbeddingModel("test-embed", dimension),
		ai.WithGenerationModel("test-chat"),
		ai.WithMaxInputLength(50),
	)
}

func TestEmbedder(t *testing.T) {
	srv := fakeServer(t, 4, http.StatusOK, "")

	embedder, err := NewEmbedder(testConfig(srv.URL, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, embedder.Dimension())
	assert.Equal(t, "openai/test-embed@4", embedder.Version())

	t.Run("batch", func(t *testing.T) {
		vectors, err := embedder.EmbedTexts(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Equal(t, []float32{1, 0, 0, 0}, vectors[0])
		assert.Equal(t, []float32{0, 1, 0, 0}, vectors[1])
	})

	t.Run("single", func(t *testing.T) {
		vector, err := embedder.EmbedText(context.Background(), "a")
		require.NoError(t, err)
		assert.Len(t, vector, 4)
	})

	t.Run("empty batch", func(t *testing.T) {
		vectors, err := embedder.EmbedTexts(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})

	t.Run("too long text fails the batch", func(t *testing.T) {
		vectors, err := embedder.EmbedTexts(context.Background(), []string{"ok", strings.Repeat("x", 51)})
		assert.Nil(t, vectors)
		assert.ErrorIs(t, err, core.ErrEmbeddingFailure)
		assert.ErrorIs(t, err, ai.ErrTextTooLong)
	})
}

func TestEmbedderDimensionMismatch(t *testing.T) {
	srv := fakeServer(t, 3, http.StatusOK, "")

	embedder, err := NewEmbedder(testConfig(srv.URL, 8))
	require.NoError(t, err)

	_, err = embedder.EmbedText(context.Background(), "a")
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestGenerator(t *testing.T) {
	t.Run("answer", func(t *testing.T) {
		srv := fakeServer(t, 4, http.StatusOK, "  Paris.  ")
		generator, err := NewGenerator(testConfig(srv.URL, 4))
		require.NoError(t, err)

		answer, err := generator.Generate(context.Background(), "Context: ...", "Where?")
		require.NoError(t, err)
		assert.Equal(t, "Paris.", answer)
	})

	t.Run("empty answer is a failure", func(t *testing.T) {
		srv := fakeServer(t, 4, http.StatusOK, "   ")
		generator, err := NewGenerator(testConfig(srv.URL, 4))
		require.NoError(t, err)

		_, err = generator.Generate(context.Background(), "Context", "Where?")
		assert.ErrorIs(t, err, core.ErrGeneratorFailure)
		assert.ErrorIs(t, err, ai.ErrEmptyResponse)
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := fakeServer(t, 4, http.StatusTooManyRequests, "")
		generator, err := NewGenerator(testConfig(srv.URL, 4))
		require.NoError(t, err)

		_, err = generator.Generate(context.Background(), "Context", "Where?")
		assert.ErrorIs(t, err, core.ErrGeneratorFailure)
		assert.ErrorIs(t, err, core.ErrRateLimited)
		assert.True(t, core.IsRetryable(err))
	})
}

func TestProvider(t *testing.T) {
	provider, err := NewProvider(testConfig("http://localhost:11434", 4))
	require.NoError(t, err)
	defer provider.Close()

	assert.NotNil(t, provider.Embedder())
	assert.NotNil(t, provider.Generator())

	_, err = NewProvider(ai.NewConfig(ai.WithEmbeddingModel("", 4)))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", context.DeadlineExceeded, core.ErrTimeout},
		{"rate limit", errors.New("API returned unexpected status code: 429"), core.ErrRateLimited},
		{"bad request", errors.New("API returned unexpected status code: 400: bad"), ai.ErrInvalidRequest},
		{"invalid request type", errors.New(`{"error":{"type":"invalid_request_error"}}`), ai.ErrInvalidRequest},
		{"too many requests", errors.New("429 Too Many Requests"), core.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(ctx, tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	t.Run("expired context", func(t *testing.T) {
		expired, cancel := context.WithTimeout(ctx, time.Nanosecond)
		defer cancel()
		<-expired.Done()
		assert.ErrorIs(t, classify(expired, errors.New("read tcp: closed")), core.ErrTimeout)
	})

	unclassified := []struct {
		name string
		err  error
	}{
		{"unknown", errors.New("boom")},
		{"bare number in message", errors.New("context length exceeds the limit of 4000 tokens")},
		{"number in model name", errors.New("model text-embedding-400m is loading")},
		{"server error", errors.New("API returned unexpected status code: 500: internal")},
		{"longer number after status", errors.New("API returned unexpected status code: 4000")},
	}
	for _, tt := range unclassified {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.err, classify(ctx, tt.err))
		})
	}
}

func TestLimiter(t *testing.T) {
	assert.Nil(t, newLimiter(0))
	require.NoError(t, wait(context.Background(), nil))

	limiter := newLimiter(2.5)
	require.NotNil(t, limiter)
	assert.Equal(t, 3, limiter.Burst())
}

func TestToken(t *testing.T) {
	assert.Equal(t, "none", token(""))
	assert.Equal(t, "key", token("key"))
}
