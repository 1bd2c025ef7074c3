package ingestion

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultProgressInterval is the minimum time between two progress lines.
const DefaultProgressInterval = 500 * time.Millisecond

// Progress keeps one carriage-return status line for a build stage.
type Progress struct {
	w     io.Writer
	label string
	total int
	every time.Duration
	now   func() time.Time

	mu      sync.Mutex
	done    int
	started time.Time
	printed time.Time
}

// NewProgress starts the clock for label with total items.
func NewProgress(w io.Writer, label string, total int) *Progress {
	p := &Progress{w: w, label: label, total: total, every: DefaultProgressInterval, now: time.Now}
	p.started = p.now()
	return p
}

// Add records n finished items. Lines are throttled to one per interval,
// except the one reaching total.
func (p *Progress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = min(p.done+n, p.total)
	now := p.now()
	if p.done < p.total && !p.printed.IsZero() && now.Sub(p.printed) < p.every {
		return
	}
	p.printed = now
	p.line(now)
}

// Done prints the final count and ends the line.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line(p.now())
	fmt.Fprintln(p.w)
}

func (p *Progress) line(now time.Time) {
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) * 100 / float64(p.total)
	}
	var rate float64
	if secs := now.Sub(p.started).Seconds(); secs > 0 {
		rate = float64(p.done) / secs
	}
	fmt.Fprintf(p.w, "\r%s: %d/%d (%.0f%%) %.1f/s", p.label, p.done, p.total, pct, rate)
}
