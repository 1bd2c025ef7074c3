package index

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/poiesic/sitesage/core"
)

const (
	// leafSize is the largest node stored as a flat bucket.
	leafSize = 8

	// pruneSlack widens the pruning radius in radians. It absorbs the
	// difference between float32 scores and float64 angles, keeping tree
	// results identical to a flat scan.
	pruneSlack = 0.02

	treeCheckInterval = 64
)

// vpTree is a vantage-point tree over unit vectors under angular distance.
type vpTree struct {
	points [][]float64 // lifted unit vectors by snapshot position; nil for loose entries
	loose  []int       // zero vectors, scored on every query
	scale  float64     // InnerProduct only: largest entry norm
	root   *vpNode
}

type vpNode struct {
	vp      int
	radius  float64 // median distance from vp
	inside  *vpNode // distance <= radius
	outside *vpNode // distance >= radius
	bucket  []int   // leaf entries
}

// vptree returns the snapshot's tree, building it on first use.
func (s *snapshot) vptree(metric Metric) *vpTree {
	s.treeOnce.Do(func() {
		s.tree = buildTree(metric, s.entries)
	})
	return s.tree
}

func buildTree(metric Metric, entries []core.IndexEntry) *vpTree {
	t := &vpTree{points: make([][]float64, len(entries))}

	norms := make([]float64, len(entries))
	for i, e := range entries {
		norms[i] = norm64(e.Vector)
		t.scale = math.Max(t.scale, norms[i])
	}

	items := make([]int, 0, len(entries))
	for i, e := range entries {
		if norms[i] == 0 {
			t.loose = append(t.loose, i)
			continue
		}
		t.points[i] = t.lift(metric, e.Vector, norms[i])
		items = append(items, i)
	}
	t.root = t.build(items)
	return t
}

// lift maps an entry onto the unit sphere. Cosine normalizes. InnerProduct
// scales by the largest norm and appends sqrt(1 - (|x|/M)^2), which makes the
// angle to a lifted query monotone in the raw dot product.
func (t *vpTree) lift(metric Metric, v []float32, norm float64) []float64 {
	if metric == Cosine {
		return unit(v, norm, 0)
	}
	p := unit(v, t.scale, 1)
	r := norm / t.scale
	p[len(v)] = math.Sqrt(math.Max(0, 1-r*r))
	return p
}

func unit(v []float32, div float64, extra int) []float64 {
	p := make([]float64, len(v)+extra)
	for i, x := range v {
		p[i] = float64(x) / div
	}
	return p
}

func norm64(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// build takes items in ascending position order so each node's vantage
// point is its earliest inserted entry.
func (t *vpTree) build(items []int) *vpNode {
	if len(items) == 0 {
		return nil
	}
	if len(items) <= leafSize {
		return &vpNode{vp: -1, bucket: items}
	}

	type spread struct {
		pos  int
		dist float64
	}
	vp := items[0]
	rest := make([]spread, len(items)-1)
	for i, pos := range items[1:] {
		rest[i] = spread{pos: pos, dist: angle(t.points[vp], t.points[pos])}
	}
	slices.SortFunc(rest, func(a, b spread) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})

	m := len(rest) / 2
	inside := make([]int, 0, m)
	outside := make([]int, 0, len(rest)-m)
	for i, sp := range rest {
		if i < m {
			inside = append(inside, sp.pos)
		} else {
			outside = append(outside, sp.pos)
		}
	}
	slices.Sort(inside)
	slices.Sort(outside)

	return &vpNode{
		vp:      vp,
		radius:  rest[m].dist,
		inside:  t.build(inside),
		outside: t.build(outside),
	}
}

// searchTree answers a query with a non-zero vector from the tree.
func (s *snapshot) searchTree(ctx context.Context, metric Metric, q []float32, qm float32, top *topK) error {
	t := s.vptree(metric)
	extra := 0
	if metric == InnerProduct {
		extra = 1
	}

	ts := &treeSearch{
		ctx:    ctx,
		snap:   s,
		tree:   t,
		metric: metric,
		q:      q,
		qm:     qm,
		qp:     unit(q, norm64(q), extra),
		top:    top,
	}
	for _, pos := range t.loose {
		// A zero vector scores 0, which is a right angle to any query.
		ts.offer(pos, math.Pi/2)
	}
	return ts.visit(t.root)
}

type treeSearch struct {
	ctx     context.Context
	snap    *snapshot
	tree    *vpTree
	metric  Metric
	q       []float32
	qm      float32
	qp      []float64
	top     *topK
	visited int
}

func (ts *treeSearch) offer(pos int, dist float64) {
	e := ts.snap.entries[pos]
	ts.top.offer(candidate{
		pos:   pos,
		seq:   e.Seq,
		score: similarity(ts.metric, ts.q, ts.qm, e.Vector, ts.snap.norms[pos]),
		dist:  dist,
	})
}

func (ts *treeSearch) consider(pos int) float64 {
	d := angle(ts.qp, ts.tree.points[pos])
	ts.offer(pos, d)
	return d
}

// reach is the distance beyond which a subtree cannot hold a better candidate.
func (ts *treeSearch) reach() float64 {
	if !ts.top.full() {
		return math.Inf(1)
	}
	return ts.top.worst().dist + pruneSlack
}

func (ts *treeSearch) visit(n *vpNode) error {
	if n == nil {
		return nil
	}
	ts.visited++
	if ts.visited%treeCheckInterval == 0 {
		if err := ts.ctx.Err(); err != nil {
			return err
		}
	}

	if n.bucket != nil {
		for _, pos := range n.bucket {
			ts.consider(pos)
		}
		return nil
	}

	d := ts.consider(n.vp)
	if d <= n.radius {
		if err := ts.visit(n.inside); err != nil {
			return err
		}
		if n.radius-d <= ts.reach() {
			return ts.visit(n.outside)
		}
		return nil
	}
	if err := ts.visit(n.outside); err != nil {
		return err
	}
	if d-n.radius <= ts.reach() {
		return ts.visit(n.inside)
	}
	return nil
}
