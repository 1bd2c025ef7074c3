// Package chunker splits documents into overlapping passages.
//
// A Chunker slides a fixed-size window across the normalized text of a
// document. Size is measured in words or characters and consecutive windows
// share Overlap units. Passage identifiers depend only on the document source
// and window index, so chunking the same document with the same Config always
// yields the same passages.
package chunker
