package index

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/sitesage/core"
)

// formatVersion is bumped whenever the artifact layout changes.
const formatVersion = 1

var magic = [4]byte{'S', 'S', 'V', 'X'}

// MarshalBinary encodes the index as a self-contained artifact.
func (idx *Index) MarshalBinary() ([]byte, error) {
	s := idx.snap.Load()

	size := len(magic) +
		varint.Int.Size(formatVersion) +
		varint.Int.Size(int(idx.opts.Metric)) +
		varint.Int.Size(int(idx.opts.Kind)) +
		varint.Int.Size(idx.opts.Dimension) +
		ord.String.Size(idx.opts.EmbedderVersion) +
		len(idx.buildID) +
		varint.Uint64.Size(s.nextSeq) +
		varint.Int.Size(len(s.entries))
	for _, e := range s.entries {
		size += core.IndexEntryMUS.Size(e)
	}

	bs := make([]byte, size)
	n := copy(bs, magic[:])
	n += varint.Int.Marshal(formatVersion, bs[n:])
	n += varint.Int.Marshal(int(idx.opts.Metric), bs[n:])
	n += varint.Int.Marshal(int(idx.opts.Kind), bs[n:])
	n += varint.Int.Marshal(idx.opts.Dimension, bs[n:])
	n += ord.String.Marshal(idx.opts.EmbedderVersion, bs[n:])
	n += copy(bs[n:], idx.buildID[:])
	n += varint.Uint64.Marshal(s.nextSeq, bs[n:])
	n += varint.Int.Marshal(len(s.entries), bs[n:])
	for _, e := range s.entries {
		n += core.IndexEntryMUS.Marshal(e, bs[n:])
	}
	return bs[:n], nil
}

// UnmarshalBinary decodes an artifact into a zero Index. Options and build
// ID are read without locking, so an index created by New or already
// decoded is refused with ErrIndexInUse. Use Decode to get a fresh index.
func (idx *Index) UnmarshalBinary(data []byte) error {
	opts, buildID, snap, err := decode(data)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.snap.Load() != nil {
		return ErrIndexInUse
	}
	idx.opts = opts
	idx.buildID = buildID
	idx.snap.Store(snap)
	return nil
}

// WriteTo writes the artifact to w.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	data, err := idx.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadFrom decodes an artifact read from r into a zero Index, with the same
// restriction as UnmarshalBinary.
func (idx *Index) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), err
	}
	return int64(len(data)), idx.UnmarshalBinary(data)
}

// Decode restores an index from MarshalBinary output.
func Decode(data []byte) (*Index, error) {
	idx := &Index{}
	if err := idx.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return idx, nil
}

// Read restores an index from a stream written by WriteTo.
func Read(r io.Reader) (*Index, error) {
	idx := &Index{}
	if _, err := idx.ReadFrom(r); err != nil {
		return nil, err
	}
	return idx, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}

func decode(data []byte) (opts Options, buildID uuid.UUID, snap *snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = corrupt("%v", r)
		}
	}()

	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic[:]) {
		return opts, buildID, nil, corrupt("bad magic")
	}
	n := len(magic)

	var n1, version, metric, kind, count int
	version, n1, err = varint.Int.Unmarshal(data[n:])
	if err != nil {
		return opts, buildID, nil, corrupt("version: %v", err)
	}
	n += n1
	if version != formatVersion {
		return opts, buildID, nil, corrupt("unsupported format version %d", version)
	}

	metric, n1, err = varint.Int.Unmarshal(data[n:])
	if err != nil {
		return opts, buildID, nil, corrupt("metric: %v", err)
	}
	n += n1
	kind, n1, err = varint.Int.Unmarshal(data[n:])
	if err != nil {
		return opts, buildID, nil, corrupt("kind: %v", err)
	}
	n += n1
	opts.Metric, opts.Kind = Metric(metric), Kind(kind)

	opts.Dimension, n1, err = varint.Int.Unmarshal(data[n:])
	if err != nil {
		return opts, buildID, nil, corrupt("dimension: %v", err)
	}
	n += n1
	opts.EmbedderVersion, n1, err = ord.String.Unmarshal(data[n:])
	if err != nil {
		return opts, buildID, nil, corrupt("embedder version: %v", err)
	}
	n += n1
	if err = opts.Validate(); err != nil {
		return opts, buildID, nil, corrupt("%v", err)
	}

	if len(data)-n < len(buildID) {
		return opts, buildID, nil, corrupt("build id truncated")
	}
	n += copy(buildID[:], data[n:])

	var nextSeq uint64
	nextSeq, n1, err = varint.Uint64.Unmarshal(data[n:])
	if err != nil {
		return opts, buildID, nil, corrupt("next seq: %v", err)
	}
	n += n1
	count, n1, err = varint.Int.Unmarshal(data[n:])
	if err != nil {
		return opts, buildID, nil, corrupt("count: %v", err)
	}
	n += n1
	if count < 0 || count > len(data)-n {
		return opts, buildID, nil, corrupt("entry count %d", count)
	}

	entries := make([]core.IndexEntry, count)
	seen := make(map[core.ID]struct{}, count)
	for i := range entries {
		entries[i], n1, err = core.IndexEntryMUS.Unmarshal(data[n:])
		if err != nil {
			return opts, buildID, nil, corrupt("entry %d: %v", i, err)
		}
		n += n1
		e := entries[i]
		if len(e.Vector) != opts.Dimension {
			return opts, buildID, nil, corrupt("entry %d has dimension %d", i, len(e.Vector))
		}
		if e.Seq >= nextSeq || (i > 0 && e.Seq <= entries[i-1].Seq) {
			return opts, buildID, nil, corrupt("entry %d is out of order", i)
		}
		if _, dup := seen[e.Passage.ID]; dup {
			return opts, buildID, nil, corrupt("duplicate passage %d", e.Passage.ID)
		}
		seen[e.Passage.ID] = struct{}{}
	}
	if n != len(data) {
		return opts, buildID, nil, corrupt("%d trailing bytes", len(data)-n)
	}
	return opts, buildID, newSnapshot(entries, nextSeq), nil
}
