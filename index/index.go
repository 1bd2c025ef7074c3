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

package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/poiesic/sitesage/core"
)

// scanCheckInterval is how many entries a query scores between context checks.
const scanCheckInterval = 1024

// Options fixes the shape of an index at construction.
type Options struct {
	Dimension       int
	Metric          Metric
	Kind            Kind
	EmbedderVersion string
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.Dimension <= 0 {
		return fmt.Errorf("%w: index dimension must be positive, got %d", core.ErrConfiguration, o.Dimension)
	}
	if !o.Metric.valid() {
		return fmt.Errorf("%w: %w: %d", core.ErrConfiguration, ErrUnknownMetric, o.Metric)
	}
	if !o.Kind.valid() {
		return fmt.Errorf("%w: %w: %d", core.ErrConfiguration, ErrUnknownKind, o.Kind)
	}
	return nil
}

// Index is a vector index over passage embeddings.
// It is safe for concurrent use by multiple readers and writers.
type Index struct {
	opts    Options
	buildID uuid.UUID

	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

// snapshot is an immutable view of the index contents.
type snapshot struct {
	entries []core.IndexEntry // ascending Seq
	norms   []float32
	byID    map[core.ID]int
	nextSeq uint64

	treeOnce sync.Once
	tree     *vpTree
}

// New creates an empty index.
func New(opts Options) (*Index, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	idx := &Index{opts: opts, buildID: uuid.New()}
	idx.snap.Store(newSnapshot(nil, 0))
	return idx, nil
}

func newSnapshot(entries []core.IndexEntry, nextSeq uint64) *snapshot {
	s := &snapshot{
		entries: entries,
		norms:   make([]float32, len(entries)),
		byID:    make(map[core.ID]int, len(entries)),
		nextSeq: nextSeq,
	}
	for i, e := range entries {
		s.norms[i] = magnitude(e.Vector)
		s.byID[e.Passage.ID] = i
	}
	return s
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	return len(idx.snap.Load().entries)
}

// Dimension returns the fixed vector dimension.
func (idx *Index) Dimension() int {
	return idx.opts.Dimension
}

// Metric returns the similarity metric.
func (idx *Index) Metric() Metric {
	return idx.opts.Metric
}

// Kind returns the index layout.
func (idx *Index) Kind() Kind {
	return idx.opts.Kind
}

// EmbedderVersion returns the version of the embedder that produced the vectors.
func (idx *Index) EmbedderVersion() string {
	return idx.opts.EmbedderVersion
}

// BuildID identifies this index across serialization round trips.
func (idx *Index) BuildID() uuid.UUID {
	return idx.buildID
}

// Options returns the construction options.
func (idx *Index) Options() Options {
	return idx.opts
}

// Entries returns the entries in insertion order.
// The returned vectors are shared with the index and must not be modified.
func (idx *Index) Entries() []core.IndexEntry {
	s := idx.snap.Load()
	out := make([]core.IndexEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry for a passage id.
func (idx *Index) Get(id core.ID) (core.IndexEntry, bool) {
	s := idx.snap.Load()
	i, ok := s.byID[id]
	if !ok {
		return core.IndexEntry{}, false
	}
	return s.entries[i], true
}

// Insert adds a single entry.
func (idx *Index) Insert(entry core.IndexEntry) error {
	return idx.InsertBatch([]core.IndexEntry{entry})
}

// InsertBatch adds entries in order. The batch is rejected as a whole if any
// vector has the wrong dimension. An entry whose passage id is already present
// replaces the existing entry and keeps its insertion position.
func (idx *Index) InsertBatch(entries []core.IndexEntry) error {
	for i, e := range entries {
		if len(e.Vector) != idx.opts.Dimension {
			return fmt.Errorf("%w: entry %d has dimension %d, index expects %d",
				core.ErrDimensionMismatch, i, len(e.Vector), idx.opts.Dimension)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	old := idx.snap.Load()
	next := make([]core.IndexEntry, len(old.entries), len(old.entries)+len(entries))
	copy(next, old.entries)
	positions := make(map[core.ID]int, len(entries))
	seq := old.nextSeq

	for _, e := range entries {
		entry := core.IndexEntry{
			Passage: e.Passage,
			Vector:  append([]float32(nil), e.Vector...),
		}
		if i, ok := old.byID[e.Passage.ID]; ok {
			entry.Seq = next[i].Seq
			next[i] = entry
			continue
		}
		if i, ok := positions[e.Passage.ID]; ok {
			entry.Seq = next[i].Seq
			next[i] = entry
			continue
		}
		entry.Seq = seq
		seq++
		positions[e.Passage.ID] = len(next)
		next = append(next, entry)
	}

	idx.snap.Store(newSnapshot(next, seq))
	return nil
}

// Remove deletes the entry for a passage id and reports whether it existed.
func (idx *Index) Remove(id core.ID) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old := idx.snap.Load()
	i, ok := old.byID[id]
	if !ok {
		return false
	}
	next := make([]core.IndexEntry, 0, len(old.entries)-1)
	next = append(next, old.entries[:i]...)
	next = append(next, old.entries[i+1:]...)
	idx.snap.Store(newSnapshot(next, old.nextSeq))
	return true
}

// Query returns up to k entries ranked by descending similarity to vector,
// ties broken by earliest insertion. k larger than the index size returns
// every entry; k <= 0 returns an empty result.
func (idx *Index) Query(ctx context.Context, vector []float32, k int) (*core.RetrievalResult, error) {
	if len(vector) != idx.opts.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			core.ErrDimensionMismatch, len(vector), idx.opts.Dimension)
	}
	result := &core.RetrievalResult{Passages: []core.ScoredPassage{}}
	s := idx.snap.Load()
	if k <= 0 || len(s.entries) == 0 {
		return result, nil
	}

	top := newTopK(min(k, len(s.entries)))
	qm := magnitude(vector)

	var err error
	if idx.opts.Kind == Tree && qm > 0 {
		err = s.searchTree(ctx, idx.opts.Metric, vector, qm, top)
	} else {
		err = s.scan(ctx, idx.opts.Metric, vector, qm, top)
	}
	if err != nil {
		return nil, err
	}

	for _, c := range top.sorted() {
		result.Passages = append(result.Passages, core.ScoredPassage{
			Passage: s.entries[c.pos].Passage,
			Score:   c.score,
		})
	}
	return result, nil
}

// scan scores every entry.
func (s *snapshot) scan(ctx context.Context, metric Metric, q []float32, qm float32, top *topK) error {
	for i, e := range s.entries {
		if i%scanCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		top.offer(candidate{
			pos:   i,
			seq:   e.Seq,
			score: similarity(metric, q, qm, e.Vector, s.norms[i]),
		})
	}
	return nil
}
