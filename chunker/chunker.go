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

package chunker

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/sitesage/core"
)

const (
	// DefaultMaxSize is the default window size in words.
	DefaultMaxSize = 250
	// DefaultOverlap is the default number of words shared by consecutive passages.
	DefaultOverlap = 40
)

// Unit selects how passage size is measured.
type Unit int

const (
	// UnitWords measures size in whitespace-separated words.
	UnitWords Unit = iota
	// UnitChars measures size in characters (runes).
	UnitChars
)

// String returns the configuration name of the unit.
func (u Unit) String() string {
	switch u {
	case UnitWords:
		return "words"
	case UnitChars:
		return "chars"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// ParseUnit converts a configuration name into a Unit.
func ParseUnit(name string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "words", "word":
		return UnitWords, nil
	case "chars", "char", "characters":
		return UnitChars, nil
	default:
		return 0, fmt.Errorf("%w: unknown chunk unit %q", core.ErrConfiguration, name)
	}
}

// Config holds chunking parameters.
type Config struct {
	MaxSize       int  // Upper bound on passage size, in units
	Overlap       int  // Units repeated between consecutive passages
	Unit          Unit // How size is measured
	SentenceAware bool // Retract window ends to sentence boundaries
	Tolerance     int  // Maximum retraction in units; <= 0 selects half a step
}

// DefaultConfig returns the default chunking parameters.
func DefaultConfig() Config {
	return Config{
		MaxSize: DefaultMaxSize,
		Overlap: DefaultOverlap,
		Unit:    UnitWords,
	}
}

// Validate checks the parameters and returns a core.ErrConfiguration on failure.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: chunk max size must be positive, got %d", core.ErrConfiguration, c.MaxSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", core.ErrConfiguration, c.Overlap)
	}
	if c.Overlap >= c.MaxSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than max size %d", core.ErrConfiguration, c.Overlap, c.MaxSize)
	}
	if c.Unit != UnitWords && c.Unit != UnitChars {
		return fmt.Errorf("%w: unknown chunk unit %d", core.ErrConfiguration, int(c.Unit))
	}
	if c.SentenceAware && c.Tolerance >= c.MaxSize-c.Overlap {
		return fmt.Errorf("%w: sentence tolerance %d must be smaller than the window step %d",
			core.ErrConfiguration, c.Tolerance, c.MaxSize-c.Overlap)
	}
	return nil
}

func (c Config) tolerance() int {
	if !c.SentenceAware {
		return 0
	}
	if c.Tolerance > 0 {
		return c.Tolerance
	}
	return (c.MaxSize - c.Overlap) / 2
}

// Chunker splits documents into overlapping, bounded-size passages.
// A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a Chunker after validating cfg.
func New(cfg Config, opts ...Option) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Chunker{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Config returns the chunking parameters.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk splits a document into passages in document order.
//
// The window advances by MaxSize-Overlap units over the normalized text and
// stops once it reaches the end, so the final passage may be shorter than
// MaxSize. With SentenceAware set, a window end that would cut a sentence is
// retracted to the closest sentence boundary within the tolerance; otherwise
// the cut is hard. Passage offsets are rune offsets into Normalize(doc.Text).
// An empty document yields no passages.
func (c *Chunker) Chunk(doc *core.Document) ([]core.Passage, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	text := []rune(Normalize(doc.Text))
	units := segment(text, c.cfg.Unit)
	if len(units) == 0 {
		return nil, nil
	}

	docID := doc.ID()
	tol := c.cfg.tolerance()
	passages := make([]core.Passage, 0, len(units)/(c.cfg.MaxSize-c.cfg.Overlap)+1)

	for first, seq := 0, 0; ; seq++ {
		last := min(first+c.cfg.MaxSize, len(units))
		if tol > 0 && last < len(units) {
			for p := last; p > first && p >= last-tol; p-- {
				if endsSentence(text, units[p-1]) {
					last = p
					break
				}
			}
		}

		start, end := units[first].start, units[last-1].end
		passages = append(passages, core.Passage{
			ID:         core.PassageID(doc.Source, seq),
			DocumentID: docID,
			Source:     doc.Source,
			Seq:        seq,
			Text:       string(text[start:end]),
			Start:      start,
			End:        end,
			Length:     last - first,
		})

		if last == len(units) {
			break
		}
		first = max(last-c.cfg.Overlap, first+1)
	}

	c.logger.Debug("chunked document", "source", doc.Source, "passages", len(passages))
	return passages, nil
}

// span is a [start, end) rune range covering one unit.
type span struct {
	start, end int
}

func segment(text []rune, unit Unit) []span {
	if unit == UnitChars {
		units := make([]span, len(text))
		for i := range text {
			units[i] = span{i, i + 1}
		}
		return units
	}

	var units []span
	start := -1
	for i, r := range text {
		if r == ' ' {
			if start >= 0 {
				units = append(units, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		units = append(units, span{start, len(text)})
	}
	return units
}

// endsSentence reports whether a sentence ends with unit u.
func endsSentence(text []rune, u span) bool {
	switch text[u.end-1] {
	case '.', '!', '?':
	default:
		return false
	}
	return u.end == len(text) || text[u.end] == ' '
}
