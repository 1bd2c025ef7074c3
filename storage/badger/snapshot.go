package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/sitesage/storage"
)

// snapshotPartSize keeps every stored value under the inline value
// threshold and each write well inside the transaction size limit.
const snapshotPartSize = 256 << 10

// manifest points readers at the complete generation of a snapshot.
type manifest struct {
	generation uint64
	parts      int
	size       int
}

func (m manifest) marshal() []byte {
	bs := make([]byte, varint.Uint64.Size(m.generation)+varint.Int.Size(m.parts)+varint.Int.Size(m.size))
	n := varint.Uint64.Marshal(m.generation, bs)
	n += varint.Int.Marshal(m.parts, bs[n:])
	varint.Int.Marshal(m.size, bs[n:])
	return bs
}

func unmarshalManifest(bs []byte) (m manifest, err error) {
	var n, n1 int
	if m.generation, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return m, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	if m.parts, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return m, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	n += n1
	if m.size, _, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return m, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return m, nil
}

// SaveSnapshot writes data as a new generation of the named snapshot.
// Parts are written first and the manifest swap publishes them, so
// readers see either the old or the new snapshot in full.
func (s *Store) SaveSnapshot(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return storage.ErrInvalidSnapshotName
	}

	previous, found, err := s.readManifest(name)
	if err != nil {
		return err
	}
	next := manifest{
		generation: previous.generation + 1,
		parts:      (len(data) + snapshotPartSize - 1) / snapshotPartSize,
		size:       len(data),
	}

	err = s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for part := 0; part < next.parts; part++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min((part+1)*snapshotPartSize, len(data))
			if err := wb.Set(makeSnapshotPartKey(name, next.generation, part), data[part*snapshotPartSize:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeSnapshotKey(name), next.marshal()); err != nil {
			return err
		}
		return nil
	}, true)
	if err != nil {
		return err
	}

	if found {
		if err := s.deleteParts(name, previous); err != nil {
			s.backend.logger.Warn("failed to delete stale snapshot parts", "name", name, "generation", previous.generation, "err", err)
		}
	}
	return nil
}

// LoadSnapshot reads the current generation of the named snapshot.
func (s *Store) LoadSnapshot(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		return nil, storage.ErrInvalidSnapshotName
	}

	var buf bytes.Buffer
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		m, found, err := getManifest(tx, name)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}
		buf.Grow(m.size)
		for part := 0; part < m.parts; part++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := tx.Get(makeSnapshotPartKey(name, m.generation, part))
			if err != nil {
				return fmt.Errorf("snapshot %q part %d: %w", name, part, err)
			}
			if err := item.Value(func(val []byte) error {
				buf.Write(val)
				return nil
			}); err != nil {
				return err
			}
		}
		if buf.Len() != m.size {
			return fmt.Errorf("%w: snapshot %q has %d bytes, want %d", storage.ErrSerializationFailed, name, buf.Len(), m.size)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Store) readManifest(name string) (m manifest, found bool, err error) {
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		m, found, err = getManifest(tx, name)
		return err
	}, false)
	return m, found, err
}

func (s *Store) deleteParts(name string, m manifest) error {
	return s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for part := 0; part < m.parts; part++ {
			if err := wb.Delete(makeSnapshotPartKey(name, m.generation, part)); err != nil {
				return err
			}
		}
		return nil
	})
}

func getManifest(tx *badger.Txn, name string) (m manifest, found bool, err error) {
	item, err := tx.Get(makeSnapshotKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return m, false, nil
	}
	if err != nil {
		return m, false, err
	}
	err = item.Value(func(val []byte) error {
		m, err = unmarshalManifest(val)
		return err
	})
	return m, err == nil, err
}
