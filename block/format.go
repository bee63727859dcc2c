package block

import (
	"errors"
	"fmt"
	"io"
	"slices"
)

var (
	// ErrUnknownFormat is returned for a format name that is not registered
	// for the requested block type.
	ErrUnknownFormat = errors.New("block: unknown format")

	// ErrSchemaMismatch is returned when persisted rows disagree on their
	// columns, or a column layout cannot be represented by the format.
	ErrSchemaMismatch = errors.New("block: schema mismatch")
)

// Format names.
const (
	FormatBinary = "binary"
	FormatCSV    = "csv"
	FormatJSONL  = "jsonl"
)

// Format reads and writes a block type in one persisted layout.
//
// Decode receives the dimensions recorded in the metadata sidecar; a
// non-positive value means unknown. Known dimensions are verified against
// the decoded block.
type Format[T any] interface {
	Name() string
	Encode(w io.Writer, b T) error
	Decode(r io.Reader, rows, cols int64) (T, error)
}

// MatrixFormats lists the format names available for matrices.
func MatrixFormats() []string { return []string{FormatBinary, FormatCSV} }

// FrameFormats lists the format names available for frames.
func FrameFormats() []string { return []string{FormatBinary, FormatCSV, FormatJSONL} }

// MatrixFormat returns the matrix format called name.
func MatrixFormat(name string) (Format[*Matrix], error) {
	switch name {
	case FormatBinary:
		return binaryFormat[*Matrix]{codec: MatrixCodec{}, shape: matrixShape}, nil
	case FormatCSV:
		return matrixCSV{}, nil
	}
	return nil, fmt.Errorf("%w: %q for matrix (have %v)", ErrUnknownFormat, name, MatrixFormats())
}

// FrameFormat returns the frame format called name.
func FrameFormat(name string) (Format[*Frame], error) {
	switch name {
	case FormatBinary:
		return binaryFormat[*Frame]{codec: FrameCodec{}, shape: frameShape}, nil
	case FormatCSV:
		return frameCSV{}, nil
	case FormatJSONL:
		return frameJSONL{}, nil
	}
	return nil, fmt.Errorf("%w: %q for frame (have %v)", ErrUnknownFormat, name, FrameFormats())
}

// IsMatrixFormat reports whether name is a matrix format.
func IsMatrixFormat(name string) bool { return slices.Contains(MatrixFormats(), name) }

// IsFrameFormat reports whether name is a frame format.
func IsFrameFormat(name string) bool { return slices.Contains(FrameFormats(), name) }

type codec[T any] interface {
	Marshal(T) ([]byte, error)
	Unmarshal([]byte) (T, error)
}

// binaryFormat persists the eviction payload as is.
type binaryFormat[T any] struct {
	codec codec[T]
	shape func(T) (rows, cols int)
}

func (binaryFormat[T]) Name() string { return FormatBinary }

func (f binaryFormat[T]) Encode(w io.Writer, b T) error {
	data, err := f.codec.Marshal(b)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (f binaryFormat[T]) Decode(r io.Reader, rows, cols int64) (T, error) {
	var zero T
	data, err := io.ReadAll(r)
	if err != nil {
		return zero, err
	}
	b, err := f.codec.Unmarshal(data)
	if err != nil {
		return zero, err
	}
	gotRows, gotCols := f.shape(b)
	if err := checkShape(rows, cols, gotRows, gotCols); err != nil {
		return zero, err
	}
	return b, nil
}

func matrixShape(m *Matrix) (int, int) { return m.rows, m.cols }

func frameShape(f *Frame) (int, int) { return f.rows, len(f.names) }

func checkShape(wantRows, wantCols int64, rows, cols int) error {
	if wantRows > 0 && int64(rows) != wantRows {
		return fmt.Errorf("%w: read %d rows, metadata says %d", ErrDimensionMismatch, rows, wantRows)
	}
	if wantCols > 0 && int64(cols) != wantCols {
		return fmt.Errorf("%w: read %d columns, metadata says %d", ErrDimensionMismatch, cols, wantCols)
	}
	return nil
}
