package backing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hupe1980/spill"
	"github.com/hupe1980/spill/blobstore"
	"github.com/hupe1980/spill/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMatrix(t *testing.T) *block.Matrix {
	t.Helper()
	m, err := block.NewDenseFrom(2, 3, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	return m
}

func writeOpts(m *block.Matrix) spill.WriteOptions {
	rows, cols, nnz := m.Dims()
	return spill.WriteOptions{
		Replication: 2,
		Props:       map[string]string{"owner": "etl"},
		Meta:        spill.Meta{Rows: rows, Cols: cols, NNZ: nnz},
	}
}

func TestStore_WriteRead(t *testing.T) {
	ctx := context.Background()
	m := sampleMatrix(t)

	for _, format := range block.MatrixFormats() {
		t.Run(format, func(t *testing.T) {
			blobs := blobstore.NewMemoryStore()
			s := NewMatrixStore(blobs)

			require.NoError(t, s.Write(ctx, "out/m", format, writeOpts(m), m))

			got, err := s.Read(ctx, "out/m", -1, -1)
			require.NoError(t, err)
			assert.True(t, m.Equal(got))

			meta, ok, err := s.ReadMeta(ctx, "out/m")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, format, meta.Format)
			assert.Equal(t, int64(2), meta.Rows)
			assert.Equal(t, int64(6), meta.NNZ)
			assert.Equal(t, 2, meta.Replication)
			assert.Equal(t, "etl", meta.Props["owner"])

			// A shape that contradicts the data is rejected.
			_, err = s.Read(ctx, "out/m", 5, -1)
			assert.ErrorIs(t, err, block.ErrDimensionMismatch)
		})
	}
}

func TestStore_SidecarLayout(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := NewMatrixStore(blobs)
	m := sampleMatrix(t)

	require.NoError(t, s.Write(ctx, "m", block.FormatCSV, writeOpts(m), m))

	raw, err := blobstore.ReadAll(ctx, blobs, "m"+MetaSuffix)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "csv", fields["format"])
	assert.EqualValues(t, 3, fields["cols"])

	data, err := blobstore.ReadAll(ctx, blobs, "m")
	require.NoError(t, err)
	assert.Equal(t, "1,2,3\n4,5,6\n", string(data))
}

func TestStore_ReadWithoutSidecar(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, "raw.csv", []byte("1,0\n0,1\n")))

	s := NewMatrixStore(blobs, WithDefaultFormat(block.FormatCSV))
	got, err := s.Read(ctx, "raw.csv", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Get(1, 1))

	_, err = NewMatrixStore(blobs).Read(ctx, "raw.csv", -1, -1)
	assert.ErrorIs(t, err, block.ErrCorrupt)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := NewMatrixStore(blobs)
	m := sampleMatrix(t)

	_, err := s.Read(ctx, "missing", -1, -1)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Write(ctx, "m", block.FormatJSONL, writeOpts(m), m), block.ErrUnknownFormat)
	assert.ErrorIs(t, s.WriteMeta(ctx, "m", "parquet", spill.WriteOptions{}), block.ErrUnknownFormat)
	assert.Zero(t, blobs.Len())

	require.NoError(t, blobs.Put(ctx, "bad"+MetaSuffix, []byte("{")))
	_, err = s.Read(ctx, "bad", -1, -1)
	assert.Error(t, err)

	assert.ErrorIs(t, s.Copy(ctx, "missing", "x"), ErrNotFound)
	assert.ErrorIs(t, s.Rename(ctx, "missing", "x"), ErrNotFound)
}

func TestStore_CopyRenameDelete(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := NewMatrixStore(blobs)
	m := sampleMatrix(t)

	require.NoError(t, s.Write(ctx, "a", block.FormatBinary, writeOpts(m), m))

	require.NoError(t, s.Copy(ctx, "a", "b"))
	require.NoError(t, s.Rename(ctx, "b", "c"))

	names, err := blobs.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.mtd", "c", "c.mtd"}, names)

	ok, err := s.Exists(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)

	// Data without a sidecar copies fine.
	require.NoError(t, blobs.Put(ctx, "plain", []byte{1}))
	require.NoError(t, s.Copy(ctx, "plain", "plain2"))
	require.NoError(t, s.Rename(ctx, "plain2", "plain3"))

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))
	ok, err = s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.ReadMeta(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFrameStore_JSONL(t *testing.T) {
	ctx := context.Background()
	s := NewFrameStore(blobstore.NewMemoryStore())

	f := block.NewFrame("id", "user/name")
	require.NoError(t, f.AppendRow("1", "ada"))

	rows, cols, nnz := f.Dims()
	opts := spill.WriteOptions{Meta: spill.Meta{Rows: rows, Cols: cols, NNZ: nnz}}
	require.NoError(t, s.Write(ctx, "f", block.FormatJSONL, opts, f))

	got, err := s.Read(ctx, "f", -1, -1)
	require.NoError(t, err)
	assert.True(t, f.Equal(got))
}

func TestStore_Local(t *testing.T) {
	ctx := context.Background()
	s := NewMatrixStore(blobstore.NewLocalStore(t.TempDir()))
	m := sampleMatrix(t)

	require.NoError(t, s.Write(ctx, "dir/m", block.FormatBinary, writeOpts(m), m))
	require.NoError(t, s.Rename(ctx, "dir/m", "other/m"))

	got, err := s.Read(ctx, "other/m", 2, 3)
	require.NoError(t, err)
	assert.True(t, m.Equal(got))
}
