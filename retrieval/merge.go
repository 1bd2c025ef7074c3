package retrieval

import (
	"strings"

	"github.com/poiesic/sitesage/chunker"
	"github.com/poiesic/sitesage/core"
)

// adjacent reports whether two passages of the same document overlap or
// touch. A gap, even of one unit, keeps them apart: its text is not part of
// either passage.
func adjacent(a, b core.Passage) bool {
	if a.DocumentID != b.DocumentID {
		return false
	}
	if a.Start > b.Start {
		a, b = b, a
	}
	return b.Start <= a.End
}

// mergePassages combines two adjacent passages into one covering both spans.
// The better-ranked passage keeps its identity.
func mergePassages(better, worse core.Passage) core.Passage {
	first, second := better, worse
	if second.Start < first.Start || (second.Start == first.Start && second.End < first.End) {
		first, second = second, first
	}

	merged := better
	merged.Text = chunker.Reassemble([]core.Passage{first, second})
	merged.Start = min(first.Start, second.Start)
	merged.End = max(first.End, second.End)
	merged.Seq = min(first.Seq, second.Seq)
	merged.Length = mergedLength(first, second, merged)
	return merged
}

// mergedLength keeps the unit of the inputs: character passages have a
// Length equal to their span, word passages do not.
func mergedLength(a, b, merged core.Passage) int {
	if a.Length == a.End-a.Start && b.Length == b.End-b.Start {
		return merged.End - merged.Start
	}
	return len(strings.Fields(merged.Text))
}

// mergeAdjacent repeatedly folds adjacent passages into the better-ranked
// one until no pair is left. hits must be in rank order; the output is too.
func mergeAdjacent(hits []core.ScoredPassage) []core.ScoredPassage {
	out := append([]core.ScoredPassage(nil), hits...)
	for {
		i, j, found := findAdjacent(out)
		if !found {
			return out
		}
		out[i] = core.ScoredPassage{
			Passage: mergePassages(out[i].Passage, out[j].Passage),
			Score:   max(out[i].Score, out[j].Score),
		}
		out = append(out[:j], out[j+1:]...)
	}
}

func findAdjacent(hits []core.ScoredPassage) (int, int, bool) {
	for i := range hits {
		for j := i + 1; j < len(hits); j++ {
			if adjacent(hits[i].Passage, hits[j].Passage) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// dedupByDocument keeps the best-ranked passage of each document.
func dedupByDocument(hits []core.ScoredPassage) []core.ScoredPassage {
	seen := make(map[core.ID]bool, len(hits))
	out := make([]core.ScoredPassage, 0, len(hits))
	for _, h := range hits {
		if seen[h.Passage.DocumentID] {
			continue
		}
		seen[h.Passage.DocumentID] = true
		out = append(out, h)
	}
	return out
}
