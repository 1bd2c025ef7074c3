package index

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/poiesic/sitesage/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(source string, seq int, vector ...float32) core.IndexEntry {
	return core.IndexEntry{
		Passage: core.Passage{
			ID:         core.PassageID(source, seq),
			DocumentID: core.IDFromContent(source),
			Source:     source,
			Seq:        seq,
			Text:       fmt.Sprintf("%s passage %d", source, seq),
		},
		Vector: vector,
	}
}

func newIndex(t *testing.T, dim int, metric Metric, kind Kind) *Index {
	t.Helper()
	idx, err := New(Options{Dimension: dim, Metric: metric, Kind: kind, EmbedderVersion: "test@" + fmt.Sprint(dim)})
	require.NoError(t, err)
	return idx
}

func ids(r *core.RetrievalResult) []core.ID {
	out := make([]core.ID, 0, r.Len())
	for _, p := range r.Passages {
		out = append(out, p.Passage.ID)
	}
	return out
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"zero dimension", Options{}},
		{"negative dimension", Options{Dimension: -1}},
		{"bad metric", Options{Dimension: 2, Metric: 9}},
		{"bad kind", Options{Dimension: 2, Kind: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestQueryOrthogonalExample(t *testing.T) {
	for _, kind := range []Kind{Flat, Tree} {
		t.Run(kind.String(), func(t *testing.T) {
			idx := newIndex(t, 2, Cosine, kind)
			first := entry("a", 0, 1, 0)
			second := entry("b", 0, 0, 1)
			require.NoError(t, idx.InsertBatch([]core.IndexEntry{first, second}))

			result, err := idx.Query(context.Background(), []float32{1, 0}, 2)
			require.NoError(t, err)
			require.Equal(t, 2, result.Len())
			assert.Equal(t, first.Passage.ID, result.Passages[0].Passage.ID)
			assert.InDelta(t, 1.0, result.Passages[0].Score, 1e-6)
			assert.Equal(t, second.Passage.ID, result.Passages[1].Passage.ID)
			assert.InDelta(t, 0.0, result.Passages[1].Score, 1e-6)
		})
	}
}

func TestQueryBounds(t *testing.T) {
	idx := newIndex(t, 2, Cosine, Flat)
	ctx := context.Background()

	empty, err := idx.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	require.NoError(t, idx.Insert(entry("a", 0, 1, 0)))
	require.NoError(t, idx.Insert(entry("a", 1, 1, 1)))

	result, err := idx.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Len(), "k beyond size returns everything")

	result, err = idx.Query(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Len())

	_, err = idx.Query(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestTiesBreakByInsertionOrder(t *testing.T) {
	for _, kind := range []Kind{Flat, Tree} {
		t.Run(kind.String(), func(t *testing.T) {
			idx := newIndex(t, 2, Cosine, kind)
			var want []core.ID
			for i := range 20 {
				e := entry("tie", i, 2, 2)
				want = append(want, e.Passage.ID)
				require.NoError(t, idx.Insert(e))
			}

			result, err := idx.Query(context.Background(), []float32{1, 1}, 5)
			require.NoError(t, err)
			assert.Equal(t, want[:5], ids(result))
		})
	}
}

func TestInsertDimensionMismatchIsAtomic(t *testing.T) {
	idx := newIndex(t, 2, Cosine, Flat)
	err := idx.InsertBatch([]core.IndexEntry{entry("a", 0, 1, 0), entry("a", 1, 1, 0, 0)})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Equal(t, 0, idx.Len())
}

func TestReinsertKeepsPosition(t *testing.T) {
	idx := newIndex(t, 2, Cosine, Flat)
	require.NoError(t, idx.InsertBatch([]core.IndexEntry{entry("a", 0, 1, 0), entry("b", 0, 1, 0)}))

	replaced := entry("a", 0, 1, 0)
	replaced.Passage.Text = "updated"
	require.NoError(t, idx.Insert(replaced))
	assert.Equal(t, 2, idx.Len())

	result, err := idx.Query(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, "updated", result.Passages[0].Passage.Text)
	assert.Equal(t, replaced.Passage.ID, result.Passages[0].Passage.ID)
}

func TestInsertCopiesVector(t *testing.T) {
	idx := newIndex(t, 2, Cosine, Flat)
	e := entry("a", 0, 1, 0)
	require.NoError(t, idx.Insert(e))
	e.Vector[0] = -1

	got, ok := idx.Get(e.Passage.ID)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, got.Vector)
}

func TestRemove(t *testing.T) {
	idx := newIndex(t, 2, Cosine, Tree)
	a, b := entry("a", 0, 1, 0), entry("b", 0, 0.9, 0.1)
	require.NoError(t, idx.InsertBatch([]core.IndexEntry{a, b}))

	assert.True(t, idx.Remove(a.Passage.ID))
	assert.False(t, idx.Remove(a.Passage.ID))
	assert.Equal(t, 1, idx.Len())

	result, err := idx.Query(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{b.Passage.ID}, ids(result))
}

func randomEntries(rng *rand.Rand, n, dim int) []core.IndexEntry {
	entries := make([]core.IndexEntry, n)
	for i := range entries {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		if i%37 == 0 && i > 0 {
			// duplicates exercise tie-breaks inside the tree
			copy(v, entries[i-1].Vector)
		}
		entries[i] = entry(fmt.Sprintf("doc-%d", i/10), i, v...)
	}
	entries[n/2].Vector = make([]float32, dim)
	return entries
}

func TestTreeMatchesFlat(t *testing.T) {
	for _, metric := range []Metric{Cosine, InnerProduct} {
		t.Run(metric.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			const dim = 16
			entries := randomEntries(rng, 600, dim)

			flat := newIndex(t, dim, metric, Flat)
			tree := newIndex(t, dim, metric, Tree)
			require.NoError(t, flat.InsertBatch(entries))
			require.NoError(t, tree.InsertBatch(entries))

			ctx := context.Background()
			for q := range 50 {
				query := make([]float32, dim)
				for j := range query {
					query[j] = float32(rng.NormFloat64())
				}
				if q == 0 {
					query = make([]float32, dim)
				}
				for _, k := range []int{1, 7, 40} {
					want, err := flat.Query(ctx, query, k)
					require.NoError(t, err)
					got, err := tree.Query(ctx, query, k)
					require.NoError(t, err)
					require.Equal(t, want.Passages, got.Passages, "query %d k %d", q, k)
				}
			}
		})
	}
}

func TestResultsSortedByScore(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	idx := newIndex(t, 8, Cosine, Tree)
	require.NoError(t, idx.InsertBatch(randomEntries(rng, 200, 8)))

	result, err := idx.Query(context.Background(), []float32{1, 2, 3, 4, 5, 6, 7, 8}, 25)
	require.NoError(t, err)
	require.Equal(t, 25, result.Len())
	for i := 1; i < result.Len(); i++ {
		prev, cur := result.Passages[i-1], result.Passages[i]
		assert.GreaterOrEqual(t, prev.Score, cur.Score)
	}
}

func TestInnerProductRanksByMagnitude(t *testing.T) {
	for _, kind := range []Kind{Flat, Tree} {
		t.Run(kind.String(), func(t *testing.T) {
			idx := newIndex(t, 2, InnerProduct, kind)
			short, long := entry("a", 0, 1, 0), entry("b", 0, 3, 1)
			require.NoError(t, idx.InsertBatch([]core.IndexEntry{short, long}))

			result, err := idx.Query(context.Background(), []float32{1, 0}, 2)
			require.NoError(t, err)
			assert.Equal(t, []core.ID{long.Passage.ID, short.Passage.ID}, ids(result))
			assert.InDelta(t, 3.0, result.Passages[0].Score, 1e-6)
		})
	}
}

func TestQueryHonoursCancellation(t *testing.T) {
	idx := newIndex(t, 2, Cosine, Flat)
	require.NoError(t, idx.Insert(entry("a", 0, 1, 0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := idx.Query(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentQueriesDuringWrites(t *testing.T) {
	idx := newIndex(t, 4, Cosine, Tree)
	require.NoError(t, idx.Insert(entry("seed", 0, 1, 0, 0, 0)))

	var wg sync.WaitGroup
	for r := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				result, err := idx.Query(context.Background(), []float32{1, 0, 0, float32(r)}, 3)
				if !assert.NoError(t, err) {
					return
				}
				assert.LessOrEqual(t, result.Len(), 3)
			}
		}()
	}
	for i := 1; i < 100; i++ {
		require.NoError(t, idx.Insert(entry("w", i, float32(i), 1, 0, 0)))
		if i%3 == 0 {
			idx.Remove(core.PassageID("w", i-1))
		}
	}
	wg.Wait()
}

func TestParse(t *testing.T) {
	m, err := ParseMetric("Inner_Product")
	require.NoError(t, err)
	assert.Equal(t, InnerProduct, m)
	_, err = ParseMetric("euclid")
	assert.ErrorIs(t, err, ErrUnknownMetric)

	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Flat, k)
	_, err = ParseKind("hnsw")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestLiveSwap(t *testing.T) {
	first := newIndex(t, 2, Cosine, Flat)
	second := newIndex(t, 2, Cosine, Flat)
	live := NewLive(first)

	held := live.Load()
	assert.Same(t, first, live.Swap(second))
	assert.Same(t, second, live.Load())
	assert.Same(t, first, held, "readers keep the index they loaded")
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, kind := range []Kind{Flat, Tree} {
		t.Run(kind.String(), func(t *testing.T) {
			idx := newIndex(t, 12, InnerProduct, kind)
			require.NoError(t, idx.InsertBatch(randomEntries(rng, 120, 12)))
			idx.Remove(core.PassageID("doc-0", 3))

			var buf bytes.Buffer
			_, err := idx.WriteTo(&buf)
			require.NoError(t, err)

			restored, err := Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, idx.Options(), restored.Options())
			assert.Equal(t, idx.BuildID(), restored.BuildID())
			assert.Equal(t, idx.Entries(), restored.Entries())

			for range 20 {
				q := make([]float32, 12)
				for j := range q {
					q[j] = float32(rng.NormFloat64())
				}
				want, err := idx.Query(context.Background(), q, 10)
				require.NoError(t, err)
				got, err := restored.Query(context.Background(), q, 10)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}

			// Insertion order continues after restore.
			require.NoError(t, restored.Insert(entry("late", 0, make([]float32, 12)...)))
			late, ok := restored.Get(core.PassageID("late", 0))
			require.True(t, ok)
			assert.Greater(t, late.Seq, idx.Entries()[idx.Len()-1].Seq)
		})
	}
}

func TestDecodeCorrupt(t *testing.T) {
	idx := newIndex(t, 2, Cosine, Flat)
	require.NoError(t, idx.InsertBatch([]core.IndexEntry{entry("a", 0, 1, 0), entry("b", 0, 0, 1)}))
	data, err := idx.MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), data[4:]...)},
		{"truncated", data[:len(data)-3]},
		{"trailing", append(append([]byte(nil), data...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

func TestDecodeIntoInitializedIndex(t *testing.T) {
	src := newIndex(t, 2, Cosine, Flat)
	require.NoError(t, src.Insert(entry("a", 0, 1, 0)))
	data, err := src.MarshalBinary()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	tests := []struct {
		name string
		idx  *Index
	}{
		{"built by New", newIndex(t, 3, InnerProduct, Tree)},
		{"already decoded", decoded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.idx.Options()
			beforeID := tt.idx.BuildID()
			beforeLen := tt.idx.Len()

			assert.ErrorIs(t, tt.idx.UnmarshalBinary(data), ErrIndexInUse)
			_, err := tt.idx.ReadFrom(bytes.NewReader(data))
			assert.ErrorIs(t, err, ErrIndexInUse)

			assert.Equal(t, before, tt.idx.Options())
			assert.Equal(t, beforeID, tt.idx.BuildID())
			assert.Equal(t, beforeLen, tt.idx.Len())
		})
	}

	t.Run("each decode is independent", func(t *testing.T) {
		other, err := Decode(data)
		require.NoError(t, err)
		require.NoError(t, other.Insert(entry("b", 0, 0, 1)))
		assert.Equal(t, 1, decoded.Len())
		assert.Equal(t, 2, other.Len())
	})
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		q, v []float32
		want float32
	}{
		{"same direction", []float32{1, 2, 2}, []float32{2, 4, 4}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 3, 0}, 0},
		{"opposite", []float32{1, 1, 0}, []float32{-2, -2, 0}, -1},
		{"scaled", []float32{3, 4, 0}, []float32{4, 3, 0}, 24.0 / 25},
		{"zero query", []float32{0, 0, 0}, []float32{1, 0, 0}, 0},
		{"zero entry", []float32{1, 0, 0}, []float32{0, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := similarity(Cosine, tt.q, magnitude(tt.q), tt.v, magnitude(tt.v))
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}
