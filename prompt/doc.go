// Package prompt turns a retrieval result into a bounded generator prompt.
//
// The Assembler selects passages in rank order until the next one would
// exceed the context budget, tags each with its source and renders the
// result into the answer template. Assembly is a pure function of its
// inputs.
package prompt
