package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/sitesage/core"
)

// Key prefixes for different data types
const (
	documentPrefix     = "doc"
	snapshotPrefix     = "snap"
	snapshotPartPrefix = "snappart"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeSnapshotKey generates the key of a snapshot manifest.
func makeSnapshotKey(name string) []byte {
	return []byte(snapshotPrefix + ":" + name)
}

// makeSnapshotPartKey generates a key for one part of a snapshot generation.
// Format: prefix:name:generation:part
func makeSnapshotPartKey(name string, generation uint64, part int) []byte {
	prefix := snapshotPartPrefix + ":" + name + ":"
	buf := make([]byte, len(prefix)+16) // 8 bytes generation + 8 bytes part
	offset := copy(buf, prefix)
	// BigEndian keeps parts in lexicographic order
	binary.BigEndian.PutUint64(buf[offset:], generation)
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(part))
	return buf
}
