package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/storage"
	"github.com/poiesic/sitesage/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := OpenMemory()
		require.NoError(t, err)
		return store
	})
}

func TestStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sitesage.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.(*Store).Path())

	doc := &core.Document{Source: "https://example.com", Text: "body", Metadata: map[string]string{"k": "v"}}
	require.NoError(t, store.AddDocuments(ctx, doc))
	require.NoError(t, store.SaveSnapshot(ctx, "index", []byte{1, 2, 3}))
	require.NoError(t, store.Close())

	// Reopening must not reapply migrations.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetDocument(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, got.Metadata)

	data, err := store.LoadSnapshot(ctx, "index")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
