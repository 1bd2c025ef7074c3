package index

import (
	"fmt"
	"math"
	"strings"

	"github.com/viant/vec/search"
)

// Metric is the similarity function an index ranks by.
type Metric uint8

const (
	// Cosine ranks by the cosine of the angle between vectors.
	Cosine Metric = iota
	// InnerProduct ranks by the raw dot product.
	InnerProduct
)

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case InnerProduct:
		return "inner_product"
	default:
		return fmt.Sprintf("metric(%d)", uint8(m))
	}
}

func (m Metric) valid() bool {
	return m == Cosine || m == InnerProduct
}

// ParseMetric converts a configuration value into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "inner_product", "inner-product", "dot", "ip":
		return InnerProduct, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// Kind selects the internal layout of an index.
type Kind uint8

const (
	// Flat is an exact linear scan.
	Flat Kind = iota
	// Tree is a vantage-point tree with exact results.
	Tree
)

func (k Kind) String() string {
	switch k {
	case Flat:
		return "flat"
	case Tree:
		return "tree"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k == Flat || k == Tree
}

// ParseKind converts a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return Flat, nil
	case "tree", "vptree":
		return Tree, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// magnitude returns the Euclidean norm of v.
func magnitude(v []float32) float32 {
	return search.Float32s(v).Magnitude()
}

// similarity scores an entry against a query. Both Flat and Tree layouts
// rank with this function. Zero vectors score 0 under Cosine.
func similarity(metric Metric, q []float32, qm float32, v []float32, vm float32) float32 {
	if metric == InnerProduct {
		return dot(q, v)
	}
	if qm == 0 || vm == 0 {
		return 0
	}
	return dot(q, v) / (qm * vm)
}

// dot accumulates in float64 so scores do not depend on vector length.
func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// angle is the angular distance between two unit vectors. It satisfies the
// triangle inequality, which the tree relies on for pruning.
func angle(a, b []float64) float64 {
	var c float64
	for i := range a {
		c += a[i] * b[i]
	}
	return math.Acos(math.Max(-1, math.Min(1, c)))
}
