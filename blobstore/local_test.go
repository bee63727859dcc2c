package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)

	ctx := context.Background()

	// 1. Create a blob in a nested directory
	blobName := "run/data-001.bin"
	data := []byte("hello world, this is a test blob for spill")

	w, err := store.Create(ctx, blobName)
	require.NoError(t, err)

	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	// Invisible until closed.
	ok, err := Exists(ctx, store, blobName)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), os.ErrClosed)

	_, err = os.Stat(filepath.Join(tmpDir, "run", "data-001.bin"))
	require.NoError(t, err)

	// 2. Open and ReadAt
	blob, err := store.Open(ctx, blobName)
	require.NoError(t, err)

	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err = blob.ReadAt(ctx, buf, 6) // "world"
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	// 3. ReadRange survives Close
	rangeReader, err := blob.ReadRange(ctx, 13, 4)
	require.NoError(t, err)
	require.NoError(t, blob.Close())

	rangeContent, err := io.ReadAll(rangeReader)
	require.NoError(t, err)
	require.Equal(t, "this", string(rangeContent))

	// 4. List
	require.NoError(t, store.Put(ctx, "data-002.bin", []byte("x")))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"data-002.bin", blobName}, names)

	names, err = store.List(ctx, "run/")
	require.NoError(t, err)
	require.Equal(t, []string{blobName}, names)

	// 5. Delete, twice
	require.NoError(t, store.Delete(ctx, blobName))
	require.NoError(t, store.Delete(ctx, blobName))

	_, err = store.Open(ctx, blobName)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBlobStore_ReadRange_Boundaries(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "boundary.bin", []byte("0123456789")))

	blob, err := store.Open(ctx, "boundary.bin")
	require.NoError(t, err)
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 8, 5)
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "89", string(content))

	_, err = blob.ReadRange(ctx, 20, 5)
	require.ErrorIs(t, err, io.EOF)
}

func TestLocalBlobStore_CopyRename(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", []byte("payload")))

	require.NoError(t, Copy(ctx, store, "a", "dir/b"))
	require.NoError(t, Rename(ctx, store, "a", "other/c"))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/b", "other/c"}, names)

	data, err := ReadAll(ctx, store, "other/c")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	assert.ErrorIs(t, store.Copy(ctx, "missing", "x"), ErrNotFound)
}

func TestLocalBlobStore_Empty(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "not-yet"))
	ctx := context.Background()

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.Put(ctx, "zero", nil))
	data, err := ReadAll(ctx, store, "zero")
	require.NoError(t, err)
	assert.Empty(t, data)
}
