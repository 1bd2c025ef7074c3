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

// Package index provides an in-memory vector index over passage embeddings.
//
// An Index holds IndexEntry values of a fixed dimension produced by a single
// embedder version. Queries rank entries by cosine similarity or inner
// product, fixed at construction, and break score ties by insertion order.
//
// # Layouts
//
// Two layouts are available:
//
//   - Flat scans every entry. It is exact and is the default.
//   - Tree organizes entries in a vantage-point tree over angular distance.
//     Inner-product indexes are lifted into angular space by appending one
//     coordinate, so the same tree serves both metrics. Subtrees are pruned
//     with a slack margin and survivors are scored with the Flat scoring
//     function, so a Tree returns exactly the results a Flat index would.
//
// # Concurrency
//
// Every write publishes a new immutable snapshot through an atomic pointer.
// Queries load one snapshot and never observe a partially applied write.
// Writers are serialized. Live adds the same swap semantics one level up so
// a whole rebuilt index can replace the serving one.
//
// # Persistence
//
// MarshalBinary and WriteTo produce a self-contained artifact holding the
// metric, layout, dimension, embedder version, build id and every entry.
// Restoring it yields an index whose query results are identical.
package index
