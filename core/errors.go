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

package core

import "errors"

// Retrieval error taxonomy
var (
	// ErrConfiguration indicates invalid chunking, index, or assembly parameters.
	// Detected at setup and never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmbeddingFailure indicates text was too long for the embedder or the
	// embedding computation failed. Callers may retry at a smaller granularity.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrDimensionMismatch indicates vectors of the wrong dimension or from a
	// different embedder version. The index must be rebuilt.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmptyIndex indicates a query against an index holding no entries.
	ErrEmptyIndex = errors.New("index is empty")

	// ErrTimeout indicates a stage exceeded its time budget. Retryable with backoff.
	ErrTimeout = errors.New("timeout")

	// ErrGeneratorFailure indicates the generator could not produce an answer.
	ErrGeneratorFailure = errors.New("could not produce an answer")

	// ErrRateLimited indicates a remote service rejected the call for rate reasons.
	ErrRateLimited = errors.New("rate limited")
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidPassage indicates a Passage failed validation.
	ErrInvalidPassage = errors.New("invalid passage")

	// ErrEmptySource indicates the Source field is empty.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrInvalidOffsets indicates passage offsets are out of order.
	ErrInvalidOffsets = errors.New("invalid passage offsets")
)

// IsRetryable reports whether err is an operational failure that a caller
// may retry with backoff.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrEmbeddingFailure) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
