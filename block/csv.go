package block

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// matrixCSV writes one line per row with no header.
type matrixCSV struct{}

func (matrixCSV) Name() string { return FormatCSV }

func (matrixCSV) Encode(w io.Writer, m *Matrix) error {
	cw := csv.NewWriter(w)
	record := make([]string, m.cols)
	for i := range m.rows {
		for j := range m.cols {
			record[j] = strconv.FormatFloat(m.Get(i, j), 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (matrixCSV) Decode(r io.Reader, rows, cols int64) (*Matrix, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		// An all-empty file only carries a shape through its metadata.
		if rows < 0 || cols < 0 {
			return nil, fmt.Errorf("%w: empty csv without dimensions", ErrDimensionMismatch)
		}
		return NewDense(int(rows), int(cols)), nil
	}

	n, c := len(records), len(records[0])
	if err := checkShape(rows, cols, n, c); err != nil {
		return nil, err
	}
	data := make([]float64, 0, n*c)
	for i, rec := range records {
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("block: csv cell (%d,%d): %w", i, j, err)
			}
			data = append(data, v)
		}
	}
	m, err := NewDenseFrom(n, c, data)
	if err != nil {
		return nil, err
	}
	m.CompactEmpty()
	return m, nil
}

// frameCSV writes a header line with the column names.
type frameCSV struct{}

func (frameCSV) Name() string { return FormatCSV }

func (frameCSV) Encode(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.names); err != nil {
		return err
	}
	for i := range f.rows {
		if err := cw.Write(f.Row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (frameCSV) Decode(r io.Reader, rows, cols int64) (*Frame, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: csv frame without header", ErrSchemaMismatch)
	}

	f := NewFrame(records[0]...)
	for _, rec := range records[1:] {
		if err := f.AppendRow(rec...); err != nil {
			return nil, err
		}
	}
	if err := checkShape(rows, cols, f.rows, len(f.names)); err != nil {
		return nil, err
	}
	return f, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	records, err := csv.NewReader(r).ReadAll()
	if errors.Is(err, csv.ErrFieldCount) {
		return nil, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}
	return records, err
}
