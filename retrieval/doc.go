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

// Package retrieval answers text queries against a vector index.
//
// The Retriever embeds the query, asks the serving index for the nearest
// passages and optionally post-processes them:
//   - a minimum similarity cutoff
//   - deduplication to the best passage per document
//   - merging passages of one document whose spans overlap or touch
//
// When a post-filter is enabled the index is asked for more candidates than
// requested and the result is truncated afterwards.
package retrieval
