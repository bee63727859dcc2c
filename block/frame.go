package block

import (
	"fmt"
	"slices"
)

const frameCellBytes = 16

// Frame is a table of string cells with named columns, stored column-wise.
type Frame struct {
	names []string
	cols  [][]string
	rows  int
}

// NewFrame returns an empty frame with the given column names.
func NewFrame(names ...string) *Frame {
	return &Frame{
		names: slices.Clone(names),
		cols:  make([][]string, len(names)),
	}
}

// Names returns the column names.
func (f *Frame) Names() []string { return slices.Clone(f.names) }

// Rows returns the number of rows.
func (f *Frame) Rows() int { return f.rows }

// Cols returns the number of columns.
func (f *Frame) Cols() int { return len(f.names) }

// Column returns the index of the named column, or -1.
func (f *Frame) Column(name string) int {
	return slices.Index(f.names, name)
}

// AppendRow adds a row. It needs one value per column.
func (f *Frame) AppendRow(values ...string) error {
	if len(values) != len(f.names) {
		return fmt.Errorf("%w: row has %d values, frame has %d columns",
			ErrDimensionMismatch, len(values), len(f.names))
	}
	for j, v := range values {
		f.cols[j] = append(f.cols[j], v)
	}
	f.rows++
	return nil
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []string {
	row := make([]string, len(f.cols))
	for j := range f.cols {
		row[j] = f.cols[j][i]
	}
	return row
}

// Get returns the cell at row i, column j.
func (f *Frame) Get(i, j int) string { return f.cols[j][i] }

// Set stores v at row i, column j.
func (f *Frame) Set(i, j int, v string) { f.cols[j][i] = v }

// InMemorySize estimates the heap footprint in bytes.
func (f *Frame) InMemorySize() int64 {
	size := int64(matrixHeaderBytes)
	for j, col := range f.cols {
		size += int64(len(f.names[j])) + frameCellBytes
		size += int64(cap(col)) * frameCellBytes
		for _, v := range col {
			size += int64(len(v))
		}
	}
	return size
}

// CompactEmpty trims spare column capacity.
func (f *Frame) CompactEmpty() {
	for j := range f.cols {
		f.cols[j] = slices.Clip(f.cols[j])
	}
}

// Dims returns rows, columns and the number of non-empty cells.
func (f *Frame) Dims() (rows, cols, nnz int64) {
	for _, col := range f.cols {
		for _, v := range col {
			if v != "" {
				nnz++
			}
		}
	}
	return int64(f.rows), int64(len(f.names)), nnz
}

// Equal reports whether f and o have the same columns and cells.
func (f *Frame) Equal(o *Frame) bool {
	if f.rows != o.rows || !slices.Equal(f.names, o.names) {
		return false
	}
	for j := range f.cols {
		if !slices.Equal(f.cols[j], o.cols[j]) {
			return false
		}
	}
	return true
}
