package mmap

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestMapping(t *testing.T) {
	content := []byte("block payload")
	m, err := Open(writeTemp(t, content))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Len())
	assert.Equal(t, content, m.Bytes())
	assert.NoError(t, m.Advise(AdviceSequential))

	buf := make([]byte, 7)
	n, err := m.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))

	n, err = m.ReadAt(buf, 10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, n)

	r, err := m.Range(0, 5)
	require.NoError(t, err)
	assert.Equal(t, "block", string(r))

	r, err = m.Range(6, 100)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(r))

	_, err = m.Range(-1, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMapping_Empty(t *testing.T) {
	m, err := Open(writeTemp(t, nil))
	require.NoError(t, err)

	assert.Zero(t, m.Len())
	assert.NoError(t, m.Advise(AdviceWillNeed))
	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, m.Close())
}

func TestMapping_Close(t *testing.T) {
	m, err := Open(writeTemp(t, []byte("x")))
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())

	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Range(0, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Advise(AdviceNormal), ErrClosed)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = Open(t.TempDir())
	assert.Error(t, err)
}
