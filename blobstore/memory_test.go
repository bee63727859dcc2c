package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainStore hides the optional capabilities of a MemoryStore.
type plainStore struct{ BlobStore }

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	w, err := store.Create(ctx, "x/1")
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data := []byte("def")
	require.NoError(t, store.Put(ctx, "x/2", data))
	data[0] = 'z'

	got, err := ReadAll(ctx, store, "x/2")
	require.NoError(t, err)
	assert.Equal(t, "def", string(got))

	names, err := store.List(ctx, "x/")
	require.NoError(t, err)
	assert.Equal(t, []string{"x/1", "x/2"}, names)

	ok, err := Exists(ctx, store, "x/3")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Rename(ctx, "x/1", "y"))
	assert.ErrorIs(t, store.Rename(ctx, "x/1", "y"), ErrNotFound)
	assert.Equal(t, 2, store.Len())
}

func TestCopyRename_Fallback(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	store := plainStore{mem}
	require.NoError(t, store.Put(ctx, "src", []byte("data")))

	require.NoError(t, Copy(ctx, store, "src", "copy"))
	require.NoError(t, Rename(ctx, store, "src", "moved"))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"copy", "moved"}, names)

	assert.ErrorIs(t, Copy(ctx, store, "src", "again"), ErrNotFound)
}
