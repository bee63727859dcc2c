package block

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrDimensionMismatch is returned when data does not fit the declared shape.
var ErrDimensionMismatch = errors.New("block: dimension mismatch")

// SparsityThreshold is the density below which CompactEmpty switches a
// dense matrix to sparse form, and above which a sparse one turns dense.
const SparsityThreshold = 0.4

const matrixHeaderBytes = 64

// Matrix is a float64 matrix. It is not safe for concurrent mutation.
type Matrix struct {
	rows, cols int

	// dense holds rows*cols values in row-major order. nil means all zeros.
	dense []float64

	sparse bool
	rowPtr []int
	colIdx []int
	vals   []float64
}

// NewDense returns a zero rows×cols dense matrix.
func NewDense(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, dense: make([]float64, rows*cols)}
}

// NewDenseFrom wraps data, row-major, without copying.
func NewDenseFrom(rows, cols int, data []float64) (*Matrix, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrDimensionMismatch, len(data), rows, cols)
	}
	return &Matrix{rows: rows, cols: cols, dense: data}, nil
}

// NewSparse returns an empty rows×cols sparse matrix.
func NewSparse(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, sparse: true, rowPtr: make([]int, rows+1)}
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// IsSparse reports whether m is stored in CSR form.
func (m *Matrix) IsSparse() bool { return m.sparse }

// Get returns the value at (i, j).
func (m *Matrix) Get(i, j int) float64 {
	m.check(i, j)
	if m.sparse {
		lo, hi := m.rowPtr[i], m.rowPtr[i+1]
		if k, ok := slices.BinarySearch(m.colIdx[lo:hi], j); ok {
			return m.vals[lo+k]
		}
		return 0
	}
	if m.dense == nil {
		return 0
	}
	return m.dense[i*m.cols+j]
}

// Set stores v at (i, j).
func (m *Matrix) Set(i, j int, v float64) {
	m.check(i, j)
	if !m.sparse {
		if m.dense == nil {
			if v == 0 {
				return
			}
			m.dense = make([]float64, m.rows*m.cols)
		}
		m.dense[i*m.cols+j] = v
		return
	}

	lo, hi := m.rowPtr[i], m.rowPtr[i+1]
	k, ok := slices.BinarySearch(m.colIdx[lo:hi], j)
	pos := lo + k
	switch {
	case ok && v != 0:
		m.vals[pos] = v
	case ok:
		m.colIdx = slices.Delete(m.colIdx, pos, pos+1)
		m.vals = slices.Delete(m.vals, pos, pos+1)
		for r := i + 1; r <= m.rows; r++ {
			m.rowPtr[r]--
		}
	case v != 0:
		m.colIdx = slices.Insert(m.colIdx, pos, j)
		m.vals = slices.Insert(m.vals, pos, v)
		for r := i + 1; r <= m.rows; r++ {
			m.rowPtr[r]++
		}
	}
}

func (m *Matrix) check(i, j int) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("block: index (%d, %d) out of range for %dx%d matrix", i, j, m.rows, m.cols))
	}
}

// NNZ returns the number of non-zero values.
func (m *Matrix) NNZ() int {
	if m.sparse {
		return len(m.vals)
	}
	n := 0
	for _, v := range m.dense {
		if v != 0 {
			n++
		}
	}
	return n
}

// InMemorySize estimates the heap footprint in bytes.
func (m *Matrix) InMemorySize() int64 {
	if m.sparse {
		return matrixHeaderBytes + int64(cap(m.vals))*8 + int64(cap(m.colIdx))*8 + int64(cap(m.rowPtr))*8
	}
	return matrixHeaderBytes + int64(cap(m.dense))*8
}

// Dims returns rows, columns and non-zeros.
func (m *Matrix) Dims() (rows, cols, nnz int64) {
	return int64(m.rows), int64(m.cols), int64(m.NNZ())
}

// CompactEmpty drops storage for an all-zero matrix and otherwise picks
// the smaller of the dense and sparse representations.
func (m *Matrix) CompactEmpty() {
	nnz := m.NNZ()
	if nnz == 0 {
		if m.sparse {
			m.colIdx, m.vals = nil, nil
		} else {
			m.dense = nil
		}
		return
	}

	cells := float64(m.rows) * float64(m.cols)
	density := float64(nnz) / cells
	switch {
	case !m.sparse && density < SparsityThreshold:
		m.toSparse()
	case m.sparse && density >= SparsityThreshold:
		m.toDense()
	case m.sparse:
		m.colIdx = slices.Clip(m.colIdx)
		m.vals = slices.Clip(m.vals)
	}
}

func (m *Matrix) toSparse() {
	nnz := m.NNZ()
	rowPtr := make([]int, m.rows+1)
	colIdx := make([]int, 0, nnz)
	vals := make([]float64, 0, nnz)
	for i := range m.rows {
		for j := range m.cols {
			if v := m.dense[i*m.cols+j]; v != 0 {
				colIdx = append(colIdx, j)
				vals = append(vals, v)
			}
		}
		rowPtr[i+1] = len(vals)
	}
	m.dense = nil
	m.sparse, m.rowPtr, m.colIdx, m.vals = true, rowPtr, colIdx, vals
}

func (m *Matrix) toDense() {
	dense := make([]float64, m.rows*m.cols)
	for i := range m.rows {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			dense[i*m.cols+m.colIdx[k]] = m.vals[k]
		}
	}
	m.sparse, m.rowPtr, m.colIdx, m.vals = false, nil, nil, nil
	m.dense = dense
}

// Equal reports whether m and o have the same shape and values,
// regardless of representation.
func (m *Matrix) Equal(o *Matrix) bool {
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for i := range m.rows {
		for j := range m.cols {
			a, b := m.Get(i, j), o.Get(i, j)
			if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
				return false
			}
		}
	}
	return true
}
