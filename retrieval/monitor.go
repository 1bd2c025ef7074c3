package retrieval

import "github.com/poiesic/sitesage/core"

// Monitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results.
type Monitor interface {
	Start(query string, k int)
	AfterEmbedding(vector []float32)
	AfterIndexQuery(hits []core.ScoredPassage)
	AfterFilter(kept []core.ScoredPassage)
	Finish(result *core.RetrievalResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)                 {}
func (n *noopMonitor) AfterEmbedding(_ []float32)            {}
func (n *noopMonitor) AfterIndexQuery(_ []core.ScoredPassage) {}
func (n *noopMonitor) AfterFilter(_ []core.ScoredPassage)     {}
func (n *noopMonitor) Finish(_ *core.RetrievalResult)         {}
