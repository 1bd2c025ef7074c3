// Package storagetest holds behavior tests shared by every storage.Store
// implementation.
package storagetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, empty store.
type Opener func(t *testing.T) storage.Store

// Run exercises the document and snapshot contracts of storage.Store.
func Run(t *testing.T, open Opener) {
	t.Run("documents", func(t *testing.T) { testDocuments(t, open(t)) })
	t.Run("upsert", func(t *testing.T) { testUpsert(t, open(t)) })
	t.Run("invalid document", func(t *testing.T) { testInvalidDocument(t, open(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("snapshots", func(t *testing.T) { testSnapshots(t, open(t)) })
	t.Run("large snapshot", func(t *testing.T) { testLargeSnapshot(t, open(t)) })
}

func sampleDocs() []*core.Document {
	crawled := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*core.Document{
		{
			Source:    "https://example.com/b",
			Title:     "B",
			Text:      "Second page body.",
			Metadata:  map[string]string{"site": "example.com"},
			CrawledAt: crawled,
		},
		{
			Source:    "https://example.com/a",
			Title:     "A",
			Text:      "First page body.",
			CrawledAt: crawled,
		},
	}
}

func testDocuments(t *testing.T, store storage.Store) {
	defer store.Close()
	ctx := context.Background()

	count, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	docs := sampleDocs()
	require.NoError(t, store.AddDocuments(ctx, docs...))

	count, err = store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := store.GetDocument(ctx, docs[0].ID())
	require.NoError(t, err)
	assert.Equal(t, docs[0].Source, got.Source)
	assert.Equal(t, docs[0].Title, got.Title)
	assert.Equal(t, docs[0].Text, got.Text)
	assert.Equal(t, docs[0].Metadata, got.Metadata)
	assert.True(t, docs[0].CrawledAt.Equal(got.CrawledAt))

	listed, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "https://example.com/a", listed[0].Source)
	assert.Equal(t, "https://example.com/b", listed[1].Source)

	_, err = store.GetDocument(ctx, core.IDFromContent("missing"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpsert(t *testing.T, store storage.Store) {
	defer store.Close()
	ctx := context.Background()

	docs := sampleDocs()
	require.NoError(t, store.AddDocuments(ctx, docs...))

	updated := *docs[1]
	updated.Text = "Rewritten body."
	require.NoError(t, store.AddDocuments(ctx, &updated))

	count, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := store.GetDocument(ctx, updated.ID())
	require.NoError(t, err)
	assert.Equal(t, "Rewritten body.", got.Text)
}

func testInvalidDocument(t *testing.T, store storage.Store) {
	defer store.Close()
	ctx := context.Background()

	docs := sampleDocs()
	err := store.AddDocuments(ctx, docs[0], &core.Document{Title: "no source"})
	assert.ErrorIs(t, err, core.ErrInvalidDocument)

	count, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "a rejected batch stores nothing")
}

func testDelete(t *testing.T, store storage.Store) {
	defer store.Close()
	ctx := context.Background()

	docs := sampleDocs()
	require.NoError(t, store.AddDocuments(ctx, docs...))

	require.NoError(t, store.DeleteDocument(ctx, docs[0].ID()))
	_, err := store.GetDocument(ctx, docs[0].ID())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.DeleteDocument(ctx, docs[0].ID()), storage.ErrNotFound)

	count, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testSnapshots(t *testing.T, store storage.Store) {
	defer store.Close()
	ctx := context.Background()

	_, err := store.LoadSnapshot(ctx, "index")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.SaveSnapshot(ctx, "", []byte("x")), storage.ErrInvalidSnapshotName)
	_, err = store.LoadSnapshot(ctx, "")
	assert.ErrorIs(t, err, storage.ErrInvalidSnapshotName)

	require.NoError(t, store.SaveSnapshot(ctx, "index", []byte("first")))
	require.NoError(t, store.SaveSnapshot(ctx, "other", []byte("unrelated")))
	require.NoError(t, store.SaveSnapshot(ctx, "index", []byte("second")))

	data, err := store.LoadSnapshot(ctx, "index")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	data, err = store.LoadSnapshot(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, []byte("unrelated"), data)

	require.NoError(t, store.SaveSnapshot(ctx, "empty", nil))
	data, err = store.LoadSnapshot(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func testLargeSnapshot(t *testing.T, store storage.Store) {
	defer store.Close()
	ctx := context.Background()

	data := bytes.Repeat([]byte("0123456789abcdef"), 200_000) // 3.2 MB
	require.NoError(t, store.SaveSnapshot(ctx, "index", data))

	got, err := store.LoadSnapshot(ctx, "index")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	smaller := data[:1000]
	require.NoError(t, store.SaveSnapshot(ctx, "index", smaller))
	got, err = store.LoadSnapshot(ctx, "index")
	require.NoError(t, err)
	assert.Equal(t, smaller, got)
}
