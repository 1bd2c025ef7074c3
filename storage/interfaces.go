package storage

import (
	"context"

	"github.com/poiesic/sitesage/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository stores the crawled documents an index is built from.
type DocumentRepository interface {
	Repository
	// AddDocuments stores documents keyed by their source.
	// A document whose source is already stored replaces the old one.
	// Documents failing core.ValidateDocument are rejected and nothing is stored.
	AddDocuments(ctx context.Context, docs ...*core.Document) error

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns every document ordered by source.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// DeleteDocument removes a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int, error)
}

// SnapshotRepository stores serialized index artifacts under a name.
type SnapshotRepository interface {
	Repository
	// SaveSnapshot stores data under name, replacing any previous snapshot.
	SaveSnapshot(ctx context.Context, name string, data []byte) error

	// LoadSnapshot retrieves the snapshot stored under name.
	// Returns ErrNotFound if no snapshot exists.
	LoadSnapshot(ctx context.Context, name string) ([]byte, error)
}

// Store combines document and snapshot storage in one backend.
type Store interface {
	DocumentRepository
	SnapshotRepository
}
