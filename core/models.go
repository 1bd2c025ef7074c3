package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// PassageID returns the identifier of the window at index seq of the document
// identified by source.
func PassageID(source string, seq int) ID {
	return IDFromContent(source + "#" + strconv.Itoa(seq))
}

// Document is a unit of crawled content handed to the core read-only.
type Document struct {
	Source    string            // URL or path; the document's identity
	Title     string
	Text      string            // Raw, un-normalized text
	Metadata  map[string]string // Optional metadata (e.g. "headings", "site")
	CrawledAt time.Time
}

// ID returns the content-derived identifier of the document's source.
func (d *Document) ID() ID {
	return IDFromContent(d.Source)
}

// Passage is a bounded contiguous span of a document's normalized text.
type Passage struct {
	ID         ID
	DocumentID ID
	Source     string
	Seq        int // Window index within the document
	Text       string
	Start      int // Rune offset into the normalized document text, inclusive
	End        int // Rune offset into the normalized document text, exclusive
	Length     int // Size in chunking units
}

// IndexEntry binds a passage to its embedding inside a vector index.
// Seq is assigned by the index and records insertion order.
type IndexEntry struct {
	Passage Passage
	Vector  []float32
	Seq     uint64
}

// ScoredPassage is a passage with its similarity to a query.
type ScoredPassage struct {
	Passage Passage
	Score   float32
}

// RetrievalResult holds passages ordered by descending similarity.
type RetrievalResult struct {
	Query    string
	Passages []ScoredPassage
}

// Len returns the number of passages in the result.
func (r *RetrievalResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Passages)
}

// PromptContext is the bounded context handed to a generator.
type PromptContext struct {
	Query    string
	Passages []ScoredPassage // Included passages, in rank order
	Dropped  int             // Passages left out because of the budget
	MaxSize  int
	Size     int    // Cumulative size of the included passage texts
	Rendered string // Tagged context block
}

// Answer is a generated response together with the context that grounded it.
type Answer struct {
	Question string
	Text     string
	Context  *PromptContext
}
