package index

import (
	"container/heap"
	"slices"
)

// candidate is a scored entry during a query.
type candidate struct {
	pos   int     // position in the snapshot
	seq   uint64  // insertion order, for tie-breaks
	score float32 // similarity
	dist  float64 // angular distance, tree search only
}

// better reports whether a ranks ahead of b.
func better(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.seq < b.seq
}

// candidates is a heap with the worst-ranked candidate on top.
type candidates []candidate

func (h candidates) Len() int           { return len(h) }
func (h candidates) Less(i, j int) bool { return better(h[j], h[i]) }
func (h candidates) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidates) Push(x any) { *h = append(*h, x.(candidate)) }

func (h *candidates) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

// topK keeps the k best candidates seen so far.
type topK struct {
	k    int
	heap candidates
}

func newTopK(k int) *topK {
	return &topK{k: k, heap: make(candidates, 0, k)}
}

func (t *topK) full() bool {
	return len(t.heap) >= t.k
}

// worst returns the lowest-ranked kept candidate. Only valid when full.
func (t *topK) worst() candidate {
	return t.heap[0]
}

func (t *topK) offer(c candidate) {
	if !t.full() {
		heap.Push(&t.heap, c)
		return
	}
	if better(c, t.heap[0]) {
		t.heap[0] = c
		heap.Fix(&t.heap, 0)
	}
}

// sorted returns the kept candidates best first.
func (t *topK) sorted() []candidate {
	out := slices.Clone(t.heap)
	slices.SortFunc(out, func(a, b candidate) int {
		switch {
		case better(a, b):
			return -1
		case better(b, a):
			return 1
		}
		return 0
	})
	return out
}
