// Package mock holds in-process doubles for the ai interfaces.
//
// MockEmbedder hashes text into unit vectors, so equal texts embed equally
// and a test can compute the expected vector with GenerateDeterministicVector.
// MockGenerator echoes the question and records the last prompt; set
// GenerateFunc to script failures such as rate limits:
//
//	provider := mock.NewMockProvider()
//	gen := provider.GetMockGenerator()
//	gen.GenerateFunc = func(ctx context.Context, prompt, query string) (string, error) {
//	    return "", fmt.Errorf("%w: %w", core.ErrGeneratorFailure, core.ErrRateLimited)
//	}
package mock
