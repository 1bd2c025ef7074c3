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

package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/sitesage/core"
)

// DefaultMaxContextSize is the default budget in characters of passage text.
const DefaultMaxContextSize = 6000

const (
	contextPlaceholder  = "{context}"
	questionPlaceholder = "{question}"
)

// DefaultTemplate instructs the generator to answer only from the context.
const DefaultTemplate = `You are a helpful AI assistant.
Use the context below to answer the question.

- If the context contains partial information, infer a helpful answer.
- Do NOT copy headings verbatim.
- Explain in clear sentences.
- Do not list the context references.
- If the answer is not present at all, say:
  "I don't know about this"

Context:
{context}

Question:
{question}

Answer (in your own words):
`

// ErrInvalidTemplate is returned when a template lacks a placeholder.
var ErrInvalidTemplate = errors.New("template must contain {context} and {question}")

// Assembler builds prompt contexts.
type Assembler struct {
	template string
	logger   *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// WithTemplate replaces DefaultTemplate. The template must contain the
// {context} and {question} placeholders.
func WithTemplate(template string) Option {
	return func(a *Assembler) error {
		if !strings.Contains(template, contextPlaceholder) || !strings.Contains(template, questionPlaceholder) {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, ErrInvalidTemplate)
		}
		a.template = template
		return nil
	}
}

// NewAssembler creates an assembler.
func NewAssembler(opts ...Option) (*Assembler, error) {
	a := &Assembler{
		template: DefaultTemplate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "assembler")
	return a, nil
}

// Assemble selects passages from result, best first, while their combined
// text fits in maxContextSize characters. The first passage that does not
// fit is dropped whole along with every passage ranked after it.
func (a *Assembler) Assemble(query string, result *core.RetrievalResult, maxContextSize int) (*core.PromptContext, error) {
	if maxContextSize <= 0 {
		return nil, fmt.Errorf("%w: max context size must be positive, got %d", core.ErrConfiguration, maxContextSize)
	}

	pc := &core.PromptContext{
		Query:    query,
		Passages: []core.ScoredPassage{},
		MaxSize:  maxContextSize,
	}
	total := result.Len()
	for i := 0; i < total; i++ {
		p := result.Passages[i]
		size := utf8.RuneCountInString(p.Passage.Text)
		if pc.Size+size > maxContextSize {
			break
		}
		pc.Passages = append(pc.Passages, p)
		pc.Size += size
	}
	pc.Dropped = total - len(pc.Passages)
	pc.Rendered = renderPassages(pc.Passages)

	if pc.Dropped > 0 {
		a.logger.Debug("context budget reached", "included", len(pc.Passages), "dropped", pc.Dropped, "size", pc.Size, "max", maxContextSize)
	}
	return pc, nil
}

// Render fills the template with the tagged context and the query.
func (a *Assembler) Render(pc *core.PromptContext) string {
	r := strings.NewReplacer(contextPlaceholder, pc.Rendered, questionPlaceholder, pc.Query)
	return r.Replace(a.template)
}

// renderPassages tags each passage with its rank and source.
func renderPassages(passages []core.ScoredPassage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] (source: ")
		b.WriteString(p.Passage.Source)
		b.WriteString(")\n")
		b.WriteString(p.Passage.Text)
	}
	return b.String()
}
