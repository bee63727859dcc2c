package block

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PathSeparator splits a jsonl column name into nested object keys.
const PathSeparator = "/"

// frameJSONL writes one JSON object per row. Object keys keep the column
// order of the frame.
type frameJSONL struct{}

func (frameJSONL) Name() string { return FormatJSONL }

func (frameJSONL) Encode(w io.Writer, f *Frame) error {
	root, err := buildTree(f.names)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	for i := range f.rows {
		if err := root.write(bw, f, i); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (frameJSONL) Decode(r io.Reader, rows, cols int64) (*Frame, error) {
	br := bufio.NewReader(r)

	var (
		f     *Frame
		index map[string]int
		line  int
	)
	for {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, readErr
		}
		line++

		if raw = bytes.TrimSpace(raw); len(raw) > 0 {
			names, values, err := parseRow(raw)
			if err != nil {
				return nil, fmt.Errorf("block: jsonl line %d: %w", line, err)
			}
			if f == nil {
				f = NewFrame(names...)
				index = make(map[string]int, len(names))
				for j, name := range names {
					index[name] = j
				}
			}
			row, err := align(index, names, values)
			if err != nil {
				return nil, fmt.Errorf("block: jsonl line %d: %w", line, err)
			}
			if err := f.AppendRow(row...); err != nil {
				return nil, err
			}
		}

		if readErr != nil {
			break
		}
	}

	if f == nil {
		f = NewFrame()
	}
	if err := checkShape(rows, cols, f.rows, len(f.names)); err != nil {
		return nil, err
	}
	return f, nil
}

// align orders values by the column layout of the first row.
func align(index map[string]int, names, values []string) ([]string, error) {
	if len(names) != len(index) {
		return nil, fmt.Errorf("%w: row has %d fields, want %d", ErrSchemaMismatch, len(names), len(index))
	}
	row := make([]string, len(index))
	for k, name := range names {
		j, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: unexpected field %q", ErrSchemaMismatch, name)
		}
		row[j] = values[k]
	}
	return row, nil
}

// parseRow flattens one JSON object into column paths and cell values.
func parseRow(raw []byte) (names, values []string, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	seen := make(map[string]struct{})
	emit := func(name, value string) error {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate field %q", ErrSchemaMismatch, name)
		}
		seen[name] = struct{}{}
		names = append(names, name)
		values = append(values, value)
		return nil
	}

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("%w: row is not an object", ErrSchemaMismatch)
	}
	if err := parseObject(dec, "", emit); err != nil {
		return nil, nil, err
	}
	if dec.More() {
		return nil, nil, fmt.Errorf("%w: trailing data after object", ErrSchemaMismatch)
	}
	return names, values, nil
}

// parseObject consumes an object whose opening brace was already read.
func parseObject(dec *json.Decoder, prefix string, emit func(name, value string) error) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected object key, got %v", ErrSchemaMismatch, tok)
		}
		name := key
		if prefix != "" {
			name = prefix + PathSeparator + key
		}

		tok, err = dec.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case json.Delim:
			if v != '{' {
				return fmt.Errorf("%w: field %q holds an array", ErrSchemaMismatch, name)
			}
			if err := parseObject(dec, name, emit); err != nil {
				return err
			}
		case string:
			err = emit(name, v)
		case json.Number:
			err = emit(name, v.String())
		case bool:
			err = emit(name, strconv.FormatBool(v))
		case nil:
			err = emit(name, "")
		}
		if err != nil {
			return err
		}
	}
	// Closing brace.
	_, err := dec.Token()
	return err
}

// node is one level of the nested object layout. A leaf has col >= 0.
type node struct {
	col      int
	keys     []string
	children map[string]*node
}

func buildTree(names []string) (*node, error) {
	root := &node{col: -1, children: map[string]*node{}}
	for j, name := range names {
		parts := strings.Split(name, PathSeparator)
		cur := root
		for k, part := range parts {
			if part == "" {
				return nil, fmt.Errorf("%w: column %q has an empty path segment", ErrSchemaMismatch, name)
			}
			if cur.col >= 0 {
				return nil, fmt.Errorf("%w: column %q nests under a value column", ErrSchemaMismatch, name)
			}
			child, ok := cur.children[part]
			last := k == len(parts)-1
			switch {
			case !ok:
				child = &node{col: -1, children: map[string]*node{}}
				if last {
					child.col = j
				}
				cur.children[part] = child
				cur.keys = append(cur.keys, part)
			case last:
				return nil, fmt.Errorf("%w: column %q collides with another column", ErrSchemaMismatch, name)
			}
			cur = child
		}
	}
	return root, nil
}

func (n *node) write(w *bufio.Writer, f *Frame, row int) error {
	if n.col >= 0 {
		return writeJSONString(w, f.cols[n.col][row])
	}
	w.WriteByte('{')
	for k, key := range n.keys {
		if k > 0 {
			w.WriteByte(',')
		}
		if err := writeJSONString(w, key); err != nil {
			return err
		}
		w.WriteByte(':')
		if err := n.children[key].write(w, f, row); err != nil {
			return err
		}
	}
	return w.WriteByte('}')
}

func writeJSONString(w *bufio.Writer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
