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

// Package sitesage answers questions about a crawled website from a vector
// index of its pages.
//
// An Engine ties the pieces together: documents are ingested into a store,
// built into an index by chunking and embedding them, and served to the
// retriever through a live handle that rebuilds swap atomically. Ask runs
// the full retrieve, assemble, generate flow.
//
//	cfg, _ := config.Load("sitesage.toml")
//	engine, err := sitesage.NewEngine(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if _, err := engine.IngestPath(ctx, "scraped_data/site.json"); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := engine.Build(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	answer, err := engine.Ask(ctx, "What does the starter plan cost?")
package sitesage
