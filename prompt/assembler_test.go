package prompt

import (
	"strings"
	"testing"

	"github.com/poiesic/sitesage/chunker"
	"github.com/poiesic/sitesage/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(source, text string, score float32) core.ScoredPassage {
	return core.ScoredPassage{Passage: core.Passage{Source: source, Text: text}, Score: score}
}

func TestAssembleBudgetDropsWholePassage(t *testing.T) {
	c, err := chunker.New(chunker.Config{MaxSize: 20, Overlap: 5, Unit: chunker.UnitChars})
	require.NoError(t, err)
	passages, err := c.Chunk(&core.Document{Source: "doc", Text: "Sentence one. Sentence two. Sentence three."})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(passages), 2)

	result := &core.RetrievalResult{Passages: []core.ScoredPassage{
		{Passage: passages[0], Score: 0.9},
		{Passage: passages[1], Score: 0.8},
	}}

	a, err := NewAssembler()
	require.NoError(t, err)
	pc, err := a.Assemble("what?", result, 25)
	require.NoError(t, err)

	require.Len(t, pc.Passages, 1)
	assert.Equal(t, passages[0].ID, pc.Passages[0].Passage.ID)
	assert.Equal(t, 1, pc.Dropped)
	assert.Equal(t, 20, pc.Size)
	assert.Equal(t, 25, pc.MaxSize)
	assert.Equal(t, "[1] (source: doc)\n"+passages[0].Text, pc.Rendered)
	assert.NotContains(t, pc.Rendered, passages[1].Text)
}

func TestAssemble(t *testing.T) {
	a, err := NewAssembler()
	require.NoError(t, err)

	tests := []struct {
		name         string
		passages     []core.ScoredPassage
		max          int
		wantIncluded int
		wantDropped  int
		wantRendered string
	}{
		{
			name:         "everything fits",
			passages:     []core.ScoredPassage{scored("a", "alpha", 0.9), scored("b", "beta", 0.5)},
			max:          100,
			wantIncluded: 2,
			wantRendered: "[1] (source: a)\nalpha\n\n[2] (source: b)\nbeta",
		},
		{
			name:         "exact fit",
			passages:     []core.ScoredPassage{scored("a", "alpha", 0.9), scored("b", "beta", 0.5)},
			max:          9,
			wantIncluded: 2,
			wantRendered: "[1] (source: a)\nalpha\n\n[2] (source: b)\nbeta",
		},
		{
			name:         "stops at first overflow",
			passages:     []core.ScoredPassage{scored("a", "alpha", 0.9), scored("b", "much longer text", 0.5), scored("c", "c", 0.1)},
			max:          10,
			wantIncluded: 1,
			wantDropped:  2,
			wantRendered: "[1] (source: a)\nalpha",
		},
		{
			name:         "first passage too large",
			passages:     []core.ScoredPassage{scored("a", "alphabet soup", 0.9)},
			max:          5,
			wantDropped:  1,
			wantRendered: "",
		},
		{
			name:         "budget counts characters not bytes",
			passages:     []core.ScoredPassage{scored("a", "héllo", 0.9)},
			max:          5,
			wantIncluded: 1,
			wantRendered: "[1] (source: a)\nhéllo",
		},
		{
			name: "empty result",
			max:  10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := a.Assemble("q", &core.RetrievalResult{Passages: tt.passages}, tt.max)
			require.NoError(t, err)
			assert.Len(t, pc.Passages, tt.wantIncluded)
			assert.Equal(t, tt.wantDropped, pc.Dropped)
			assert.Equal(t, tt.wantRendered, pc.Rendered)
			assert.LessOrEqual(t, pc.Size, tt.max)
		})
	}
}

func TestAssembleNilResult(t *testing.T) {
	a, err := NewAssembler()
	require.NoError(t, err)
	pc, err := a.Assemble("q", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, pc.Passages)
	assert.Equal(t, 0, pc.Dropped)
}

func TestAssembleInvalidBudget(t *testing.T) {
	a, err := NewAssembler()
	require.NoError(t, err)
	for _, budget := range []int{0, -1} {
		_, err := a.Assemble("q", &core.RetrievalResult{}, budget)
		assert.ErrorIs(t, err, core.ErrConfiguration)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	a, err := NewAssembler()
	require.NoError(t, err)
	result := &core.RetrievalResult{Passages: []core.ScoredPassage{
		scored("https://example.com/a", "first", 0.9),
		scored("https://example.com/b", "second", 0.8),
	}}

	first, err := a.Assemble("q", result, 100)
	require.NoError(t, err)
	second, err := a.Assemble("q", result, 100)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, a.Render(first), a.Render(second))
}

func TestRender(t *testing.T) {
	a, err := NewAssembler()
	require.NoError(t, err)
	pc, err := a.Assemble("When are you open?", &core.RetrievalResult{Passages: []core.ScoredPassage{
		scored("https://example.com/hours", "Open 9 to 5 {question}", 1),
	}}, 100)
	require.NoError(t, err)

	out := a.Render(pc)
	assert.True(t, strings.HasPrefix(out, "You are a helpful AI assistant."))
	assert.Contains(t, out, "Context:\n[1] (source: https://example.com/hours)\nOpen 9 to 5 {question}\n")
	assert.Contains(t, out, "Question:\nWhen are you open?\n")
	assert.Contains(t, out, `"I don't know about this"`)
}

func TestWithTemplate(t *testing.T) {
	_, err := NewAssembler(WithTemplate("no placeholders"))
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	a, err := NewAssembler(WithTemplate("Q={question} C={context}"), WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, "Q=why C=", a.Render(&core.PromptContext{Query: "why"}))
}
