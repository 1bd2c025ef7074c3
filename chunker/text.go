package chunker

import (
	"strings"

	"github.com/poiesic/sitesage/core"
)

// Normalize collapses every whitespace run into a single space and trims the
// ends. Passage offsets refer to the normalized text.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Reassemble joins the passages of one document, in Seq order, with their
// overlaps removed. For passages produced by Chunk the result equals the
// normalized document text.
func Reassemble(passages []core.Passage) string {
	var (
		b   strings.Builder
		end int
	)
	for i, p := range passages {
		if i == 0 {
			b.WriteString(p.Text)
			end = p.End
			continue
		}
		if p.Start >= end {
			// word windows without overlap are separated by a single space
			b.WriteString(strings.Repeat(" ", p.Start-end))
			b.WriteString(p.Text)
		} else if skip := end - p.Start; skip < p.End-p.Start {
			b.WriteString(string([]rune(p.Text)[skip:]))
		}
		end = max(end, p.End)
	}
	return b.String()
}
