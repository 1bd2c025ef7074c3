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

// Package openai talks to OpenAI-compatible HTTP APIs through langchaingo.
//
// Embeddings and chat completions may point at different hosts, for example
// a local Ollama for vectors and Groq for answers. Both services share one
// HTTP client, and each may be throttled with a token bucket
// (ai.Config.RequestsPerSecond). Client errors are classified into the core
// error kinds, so callers can tell a rate limit from a timeout:
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithEmbeddingHost("http://localhost:11434"),
//	    ai.WithEmbeddingModel("all-minilm", 384),
//	    ai.WithGenerationHost("https://api.groq.com/openai/v1"),
//	    ai.WithGenerationModel("llama-3.1-8b-instant"),
//	    ai.WithAPIKey(os.Getenv("GROQ_API_KEY")),
//	))
package openai
