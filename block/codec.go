package block

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorrupt is returned when a binary payload cannot be decoded.
var ErrCorrupt = errors.New("block: corrupt payload")

const (
	kindZero   byte = 0
	kindDense  byte = 1
	kindSparse byte = 2
	kindFrame  byte = 3
)

// MatrixCodec is the binary encoding of a Matrix.
//
// Layout (little endian): kind u8, rows u32, cols u32, then for dense
// matrices rows*cols float64 values, and for sparse matrices nnz u64,
// rows+1 row offsets u64, nnz column indexes u32 and nnz float64 values.
// An all-zero matrix stores no values.
type MatrixCodec struct{}

// Marshal encodes m.
func (MatrixCodec) Marshal(m *Matrix) ([]byte, error) {
	if m == nil {
		return nil, errors.New("block: marshal nil matrix")
	}
	if m.rows > math.MaxUint32 || m.cols > math.MaxUint32 {
		return nil, fmt.Errorf("block: matrix %dx%d too large", m.rows, m.cols)
	}

	switch {
	case m.sparse:
		nnz := len(m.vals)
		buf := make([]byte, 0, 9+8+8*(m.rows+1)+12*nnz)
		buf = appendShape(buf, kindSparse, m.rows, m.cols)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(nnz))
		for _, p := range m.rowPtr {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(p))
		}
		for _, c := range m.colIdx {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(c))
		}
		for _, v := range m.vals {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		return buf, nil

	case m.dense == nil:
		return appendShape(make([]byte, 0, 9), kindZero, m.rows, m.cols), nil

	default:
		buf := make([]byte, 0, 9+8*len(m.dense))
		buf = appendShape(buf, kindDense, m.rows, m.cols)
		for _, v := range m.dense {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		return buf, nil
	}
}

// Unmarshal decodes a payload produced by Marshal. The result never
// aliases data.
func (MatrixCodec) Unmarshal(data []byte) (*Matrix, error) {
	r := reader{buf: data}
	kind := r.u8()
	rows, cols := int(r.u32()), int(r.u32())
	if r.err != nil {
		return nil, r.err
	}

	switch kind {
	case kindZero:
		return &Matrix{rows: rows, cols: cols}, r.done()

	case kindDense:
		if r.remaining() != rows*cols*8 {
			return nil, fmt.Errorf("%w: dense payload of %d bytes for %dx%d", ErrCorrupt, r.remaining(), rows, cols)
		}
		dense := make([]float64, rows*cols)
		for i := range dense {
			dense[i] = math.Float64frombits(r.u64())
		}
		return &Matrix{rows: rows, cols: cols, dense: dense}, r.done()

	case kindSparse:
		nnz := int(r.u64())
		if r.err == nil && r.remaining() != 8*(rows+1)+12*nnz {
			return nil, fmt.Errorf("%w: sparse payload of %d bytes for %d non-zeros", ErrCorrupt, r.remaining(), nnz)
		}
		m := &Matrix{
			rows:   rows,
			cols:   cols,
			sparse: true,
			rowPtr: make([]int, rows+1),
			colIdx: make([]int, nnz),
			vals:   make([]float64, nnz),
		}
		for i := range m.rowPtr {
			m.rowPtr[i] = int(r.u64())
		}
		for i := range m.colIdx {
			m.colIdx[i] = int(r.u32())
		}
		for i := range m.vals {
			m.vals[i] = math.Float64frombits(r.u64())
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		if m.rowPtr[rows] != nnz {
			return nil, fmt.Errorf("%w: row offsets end at %d, want %d", ErrCorrupt, m.rowPtr[rows], nnz)
		}
		return m, nil

	default:
		return nil, fmt.Errorf("%w: unknown matrix kind %d", ErrCorrupt, kind)
	}
}

// FrameCodec is the binary encoding of a Frame.
//
// Layout: kind u8, rows u32, cols u32, then the column names and every
// cell column by column, each as a uvarint length followed by its bytes.
type FrameCodec struct{}

// Marshal encodes f.
func (FrameCodec) Marshal(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, errors.New("block: marshal nil frame")
	}
	size := 9
	for j, col := range f.cols {
		size += binary.MaxVarintLen64 + len(f.names[j])
		for _, v := range col {
			size += binary.MaxVarintLen64 + len(v)
		}
	}

	buf := appendShape(make([]byte, 0, size), kindFrame, f.rows, len(f.names))
	for _, name := range f.names {
		buf = appendString(buf, name)
	}
	for _, col := range f.cols {
		for _, v := range col {
			buf = appendString(buf, v)
		}
	}
	return buf, nil
}

// Unmarshal decodes a payload produced by Marshal.
func (FrameCodec) Unmarshal(data []byte) (*Frame, error) {
	r := reader{buf: data}
	if kind := r.u8(); r.err == nil && kind != kindFrame {
		return nil, fmt.Errorf("%w: unknown frame kind %d", ErrCorrupt, kind)
	}
	rows, cols := int(r.u32()), int(r.u32())
	if r.err != nil {
		return nil, r.err
	}

	f := &Frame{names: make([]string, cols), cols: make([][]string, cols), rows: rows}
	for j := range f.names {
		f.names[j] = r.str()
	}
	for j := range f.cols {
		if r.err != nil {
			break
		}
		f.cols[j] = make([]string, rows)
		for i := range f.cols[j] {
			f.cols[j][i] = r.str()
		}
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return f, nil
}

func appendShape(buf []byte, kind byte, rows, cols int) []byte {
	buf = append(buf, kind)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rows))
	return binary.LittleEndian.AppendUint32(buf, uint32(cols))
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// reader decodes little-endian values, remembering the first error.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrCorrupt, n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	n, k := binary.Uvarint(r.buf[r.off:])
	if k <= 0 {
		r.err = fmt.Errorf("%w: bad string length at offset %d", ErrCorrupt, r.off)
		return ""
	}
	r.off += k
	return string(r.take(int(n)))
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf)-r.off)
	}
	return nil
}
