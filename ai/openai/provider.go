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

package openai

import (
	"log/slog"
	"net/http"

	"github.com/poiesic/sitesage/ai"
)

// Provider pairs an embedder and a generator that share one HTTP client.
type Provider struct {
	httpClient *http.Client
	embedder   *Embedder
	generator  *Generator
	logger     *slog.Logger
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider validates config and builds both services.
// Request deadlines come from the caller's context, so the shared client
// sets no timeout of its own.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}

	embedder, err := newEmbedder(config, httpClient)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(config, httpClient)
	if err != nil {
		return nil, err
	}

	return &Provider{
		httpClient: httpClient,
		embedder:   embedder,
		generator:  generator,
		logger:     slog.Default().With("component", "openai-provider"),
	}, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close drops idle connections held by the shared client.
func (p *Provider) Close() error {
	p.logger.Debug("closing provider connections")
	p.httpClient.CloseIdleConnections()
	return nil
}
