package core

import (
	"errors"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// ErrTruncatedRecord is returned when an encoded record ends early or
// declares a negative length.
var ErrTruncatedRecord = errors.New("truncated record")

// Serializers for the persisted domain types. Each follows the mus
// Marshal/Unmarshal/Size/Skip shape so they compose with the primitive
// serializers from mus-go.
var (
	IDMUS         = idMUS{}
	TimeMUS       = timeMUS{}
	StringMapMUS  = stringMapMUS{}
	VectorMUS     = vectorMUS{}
	DocumentMUS   = documentMUS{}
	PassageMUS    = passageMUS{}
	IndexEntryMUS = indexEntryMUS{}
)

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return raw.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := raw.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (idMUS) Size(v ID) (size int) {
	return raw.Uint64.Size(uint64(v))
}

func (s idMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// timeMUS encodes a presence flag followed by UTC microseconds.
type timeMUS struct{}

func (timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	if v.IsZero() {
		return ord.Bool.Marshal(false, bs)
	}
	n = ord.Bool.Marshal(true, bs)
	n += varint.Int64.Marshal(v.UnixMicro(), bs[n:])
	return
}

func (timeMUS) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	micros, n1, err := varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v = time.UnixMicro(micros).UTC()
	return
}

func (timeMUS) Size(v time.Time) (size int) {
	size = ord.Bool.Size(true)
	if !v.IsZero() {
		size += varint.Int64.Size(v.UnixMicro())
	}
	return
}

func (s timeMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// stringMapMUS writes entries in key order so equal maps encode identically.
type stringMapMUS struct{}

func (stringMapMUS) Marshal(v map[string]string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v[k], bs[n:])
	}
	return
}

func (stringMapMUS) Unmarshal(bs []byte) (v map[string]string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 {
		err = ErrTruncatedRecord
		return
	}
	if length == 0 {
		return
	}
	v = make(map[string]string, length)
	var (
		key, val string
		n1       int
	)
	for range length {
		key, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		val, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		v[key] = val
	}
	return
}

func (stringMapMUS) Size(v map[string]string) (size int) {
	size = varint.Int.Size(len(v))
	for k, val := range v {
		size += ord.String.Size(k) + ord.String.Size(val)
	}
	return
}

func (s stringMapMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// vectorMUS stores a length prefix followed by fixed-width float32 values.
type vectorMUS struct{}

func (vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return
}

func (vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 || len(bs)-n < length*4 {
		err = ErrTruncatedRecord
		return
	}
	v = make([]float32, length)
	var n1 int
	for i := range v {
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (vectorMUS) Size(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return
}

func (s vectorMUS) Skip(bs []byte) (n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 || len(bs)-n < length*4 {
		return n, ErrTruncatedRecord
	}
	return n + length*4, nil
}

type documentMUS struct{}

func (documentMUS) Marshal(v Document, bs []byte) (n int) {
	n = ord.String.Marshal(v.Source, bs)
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += StringMapMUS.Marshal(v.Metadata, bs[n:])
	n += TimeMUS.Marshal(v.CrawledAt, bs[n:])
	return
}

func (documentMUS) Unmarshal(bs []byte) (v Document, n int, err error) {
	var n1 int
	v.Source, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Title, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata, n1, err = StringMapMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CrawledAt, n1, err = TimeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (documentMUS) Size(v Document) (size int) {
	size = ord.String.Size(v.Source)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.Text)
	size += StringMapMUS.Size(v.Metadata)
	return size + TimeMUS.Size(v.CrawledAt)
}

func (s documentMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type passageMUS struct{}

func (passageMUS) Marshal(v Passage, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += IDMUS.Marshal(v.DocumentID, bs[n:])
	n += ord.String.Marshal(v.Source, bs[n:])
	n += varint.Int.Marshal(v.Seq, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += varint.Int.Marshal(v.Start, bs[n:])
	n += varint.Int.Marshal(v.End, bs[n:])
	n += varint.Int.Marshal(v.Length, bs[n:])
	return
}

func (passageMUS) Unmarshal(bs []byte) (v Passage, n int, err error) {
	var n1 int
	v.ID, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.DocumentID, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Source, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Seq, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Start, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.End, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return
}

func (passageMUS) Size(v Passage) (size int) {
	size = IDMUS.Size(v.ID)
	size += IDMUS.Size(v.DocumentID)
	size += ord.String.Size(v.Source)
	size += varint.Int.Size(v.Seq)
	size += ord.String.Size(v.Text)
	size += varint.Int.Size(v.Start)
	size += varint.Int.Size(v.End)
	return size + varint.Int.Size(v.Length)
}

func (s passageMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type indexEntryMUS struct{}

func (indexEntryMUS) Marshal(v IndexEntry, bs []byte) (n int) {
	n = varint.Uint64.Marshal(v.Seq, bs)
	n += PassageMUS.Marshal(v.Passage, bs[n:])
	n += VectorMUS.Marshal(v.Vector, bs[n:])
	return
}

func (indexEntryMUS) Unmarshal(bs []byte) (v IndexEntry, n int, err error) {
	var n1 int
	v.Seq, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Passage, n1, err = PassageMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = VectorMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (indexEntryMUS) Size(v IndexEntry) (size int) {
	size = varint.Uint64.Size(v.Seq)
	size += PassageMUS.Size(v.Passage)
	return size + VectorMUS.Size(v.Vector)
}

func (s indexEntryMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}
