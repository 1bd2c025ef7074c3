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

// Package ai provides abstractions for the AI services used by sitesage.
//
// The package defines the capability interfaces the retrieval core depends on:
//
//   - Embedder: maps text to fixed-dimension vectors
//   - Generator: answers a question from an assembled prompt
//   - AIProvider: aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (Ollama, vLLM, Groq, OpenAI) via langchaingo
//   - ai/hashing: offline feature-hashing embedder with no remote dependency
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Implementations are selected at configuration time. Public constructors
// return interface types; test utility constructors return concrete types so
// tests can reach configuration fields and call counters.
//
// # Errors
//
// Embedders wrap failures in core.ErrEmbeddingFailure, report wrong vector
// sizes as core.ErrDimensionMismatch and deadlines as core.ErrTimeout.
// Generators wrap failures in core.ErrGeneratorFailure and keep the cause
// (core.ErrRateLimited, ErrInvalidRequest, core.ErrTimeout) visible to
// errors.Is. Nothing in this package retries; callers own retry policy.
package ai
