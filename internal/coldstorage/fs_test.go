package coldstorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFSStoreArchiveRetrieveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Archive(ctx, "img-123", []byte("bytes")))
	got, err := store.Retrieve(ctx, "img-123")
	require.NoError(t, err)
	require.Equal(t, []byte("bytes"), got)

	// idempotent re-archive
	require.NoError(t, store.Archive(ctx, "img-123", []byte("bytes")))
}

func TestFSStoreRetrieveMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Retrieve(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreCleanupPrunesByAge(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFSStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Archive(ctx, "old-image", []byte("stale")))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.pathFor("old-image"), old, old))

	require.NoError(t, store.Archive(ctx, "fresh-image", []byte("new")))

	removed, err := store.Cleanup(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.Retrieve(ctx, "old-image")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Retrieve(ctx, "fresh-image")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Dir(store.pathFor("fresh-image")))
	require.NoError(t, err)
}
