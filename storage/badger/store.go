package badger

import (
	"github.com/poiesic/sitesage/storage"
)

// Store implements storage.Store on top of a Backend.
type Store struct {
	backend *Backend
	owned   bool
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store over an existing backend. The caller keeps
// ownership of the backend.
func NewStore(backend *Backend) (*Store, error) {
	if backend == nil || backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return &Store{backend: backend}, nil
}

// Open opens a persistent store in the directory at path.
func Open(path string, opts ...BackendOption) (storage.Store, error) {
	backend, err := OpenBackend(path, opts...)
	if err != nil {
		return nil, err
	}
	return &Store{backend: backend, owned: true}, nil
}

// Close closes the store and its backend when the store opened it.
func (s *Store) Close() error {
	if !s.owned || s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}

func errClosed() error {
	return storage.ErrStorageClosed
}
