package index

import "sync/atomic"

// Live is the serving handle for an index that is rebuilt while queries run.
// Readers that loaded the previous index keep using it until they finish.
type Live struct {
	current atomic.Pointer[Index]
}

// NewLive creates a handle serving idx, which may be nil.
func NewLive(idx *Index) *Live {
	l := &Live{}
	l.current.Store(idx)
	return l
}

// Load returns the index currently being served.
func (l *Live) Load() *Index {
	return l.current.Load()
}

// Swap publishes a new index and returns the one it replaced.
func (l *Live) Swap(idx *Index) *Index {
	return l.current.Swap(idx)
}
