package ingestion

import "github.com/viant/vec/search"

// normalize scales v to unit length in place. It reports false, leaving v
// untouched, when v has no direction.
func normalize(v []float32) bool {
	m := search.Float32s(v).Magnitude()
	if m == 0 {
		return false
	}
	for i := range v {
		v[i] /= m
	}
	return true
}
