package openai

import (
	"context"
	"math"
	"net/http"

	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// token returns the bearer token for a client.
// Local OpenAI-compatible services accept any value.
func token(apiKey string) string {
	if apiKey == "" {
		return "none"
	}
	return apiKey
}

func clientOptions(host, apiKey string, httpClient *http.Client, extra ...openai.Option) []openai.Option {
	opts := append([]openai.Option{
		openai.WithBaseURL(host),
		openai.WithToken(token(apiKey)),
	}, extra...)
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}
	return opts
}

// newLimiter returns nil when rps disables limiting.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), int(math.Max(1, math.Ceil(rps))))
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
