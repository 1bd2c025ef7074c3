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

package core

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Source must not be empty
//   - CrawledAt must not be in the future
//
// NOT validated:
//   - Text (an empty document chunks to zero passages)
//   - Title and Metadata (optional)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptySource)
	}

	if !IsValidTimestamp(doc.CrawledAt) {
		return fmt.Errorf("%w: crawl timestamp is in the future", ErrInvalidDocument)
	}

	return nil
}

// ValidatePassage validates a Passage produced by a chunker.
//
// Validation rules:
//   - Source must not be empty
//   - 0 <= Start <= End
//   - End - Start equals the rune length of Text
func ValidatePassage(p *Passage) error {
	if p == nil {
		return fmt.Errorf("%w: passage is nil", ErrInvalidPassage)
	}

	if p.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPassage, ErrEmptySource)
	}

	if p.Start < 0 || p.End < p.Start {
		return fmt.Errorf("%w: %w: [%d, %d)", ErrInvalidPassage, ErrInvalidOffsets, p.Start, p.End)
	}

	if n := utf8.RuneCountInString(p.Text); n != p.End-p.Start {
		return fmt.Errorf("%w: %w: span %d does not match text length %d",
			ErrInvalidPassage, ErrInvalidOffsets, p.End-p.Start, n)
	}

	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
