package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_SetGet(t *testing.T) {
	for _, m := range []*Matrix{NewDense(3, 4), NewSparse(3, 4)} {
		m.Set(1, 2, 5)
		m.Set(0, 0, -1)
		m.Set(2, 3, 7)
		assert.Equal(t, 5.0, m.Get(1, 2))
		assert.Equal(t, -1.0, m.Get(0, 0))
		assert.Zero(t, m.Get(1, 1))
		assert.Equal(t, 3, m.NNZ())

		// Storing zero removes a sparse entry.
		m.Set(1, 2, 0)
		assert.Zero(t, m.Get(1, 2))
		assert.Equal(t, 2, m.NNZ())
		assert.Equal(t, 7.0, m.Get(2, 3))
	}
}

func TestMatrix_OutOfRange(t *testing.T) {
	m := NewDense(2, 2)
	assert.Panics(t, func() { m.Get(2, 0) })
	assert.Panics(t, func() { m.Set(0, -1, 1) })
}

func TestNewDenseFrom(t *testing.T) {
	m, err := NewDenseFrom(2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.Get(1, 0))

	_, err = NewDenseFrom(2, 3, []float64{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMatrix_CompactEmpty(t *testing.T) {
	t.Run("AllZero", func(t *testing.T) {
		m := NewDense(10, 10)
		before := m.InMemorySize()
		m.CompactEmpty()
		assert.Less(t, m.InMemorySize(), before)
		assert.Zero(t, m.Get(5, 5))

		// Writes after compaction reallocate.
		m.Set(5, 5, 1)
		assert.Equal(t, 1.0, m.Get(5, 5))
	})

	t.Run("DenseToSparse", func(t *testing.T) {
		m := NewDense(10, 10)
		m.Set(3, 4, 2)
		m.CompactEmpty()
		assert.True(t, m.IsSparse())
		assert.Equal(t, 2.0, m.Get(3, 4))
		assert.Less(t, m.InMemorySize(), int64(matrixHeaderBytes+100*8))
	})

	t.Run("SparseToDense", func(t *testing.T) {
		m := NewSparse(2, 2)
		m.Set(0, 0, 1)
		m.Set(1, 1, 1)
		m.CompactEmpty()
		assert.False(t, m.IsSparse())
		assert.Equal(t, 1.0, m.Get(1, 1))
	})

	t.Run("KeepsDense", func(t *testing.T) {
		m, err := NewDenseFrom(1, 2, []float64{1, 2})
		require.NoError(t, err)
		m.CompactEmpty()
		assert.False(t, m.IsSparse())
	})
}

func TestMatrix_Dims(t *testing.T) {
	m := NewSparse(4, 5)
	m.Set(0, 1, 1)
	rows, cols, nnz := m.Dims()
	assert.Equal(t, int64(4), rows)
	assert.Equal(t, int64(5), cols)
	assert.Equal(t, int64(1), nnz)
}

func TestMatrix_Equal(t *testing.T) {
	a := NewDense(2, 2)
	b := NewSparse(2, 2)
	a.Set(1, 0, 3)
	b.Set(1, 0, 3)
	assert.True(t, a.Equal(b))

	b.Set(0, 1, 1)
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(NewDense(2, 3)))
}

func TestFrame(t *testing.T) {
	f := NewFrame("id", "name")
	require.NoError(t, f.AppendRow("1", "ada"))
	require.NoError(t, f.AppendRow("2", ""))
	assert.ErrorIs(t, f.AppendRow("3"), ErrDimensionMismatch)

	assert.Equal(t, 2, f.Rows())
	assert.Equal(t, 2, f.Cols())
	assert.Equal(t, 1, f.Column("name"))
	assert.Equal(t, -1, f.Column("missing"))
	assert.Equal(t, []string{"2", ""}, f.Row(1))

	f.Set(1, 1, "bob")
	assert.Equal(t, "bob", f.Get(1, 1))

	rows, cols, nnz := f.Dims()
	assert.Equal(t, []int64{2, 2, 4}, []int64{rows, cols, nnz})

	// Names are copied out.
	f.Names()[0] = "changed"
	assert.Equal(t, "id", f.Names()[0])

	f.CompactEmpty()
	assert.Positive(t, f.InMemorySize())
}
