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

// Package storage declares where crawled documents and built index
// snapshots live between runs.
//
// A Store holds two things: the document catalog keyed by source, which a
// build reads in full, and named snapshot slots holding serialized index
// artifacts. Backends:
//
//   - storage/badger: a BadgerDB directory. Large snapshots are split into
//     parts and published by rewriting a small manifest.
//   - storage/sqlite: a single SQLite file with embedded migrations.
//
// Both pass the shared suite in storage/storagetest.
//
//	store, err := sqlite.Open("sitesage-data/sitesage.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if err := store.AddDocuments(ctx, docs...); err != nil {
//	    return err
//	}
//	data, err := store.LoadSnapshot(ctx, "index")
//
// Implementations are safe for concurrent use and honor context
// cancellation between records.
package storage
