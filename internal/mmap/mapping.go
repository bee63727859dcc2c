package mmap

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned by reads on a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrOutOfRange is returned for offsets outside the mapping.
	ErrOutOfRange = errors.New("mmap: offset out of range")
)

// Advice is an access hint for the kernel.
type Advice int

const (
	AdviceNormal Advice = iota
	// AdviceSequential suits decoders that read a file front to back.
	AdviceSequential
	AdviceWillNeed
	AdviceDontNeed
)

// Mapping is a read-only memory-mapped file. Reads are safe for concurrent
// use; slices returned by Bytes and Range are invalid after Close.
type Mapping struct {
	data   []byte
	closed atomic.Bool
	unmap  func() error
}

// Open maps the file at path. An empty file yields an empty mapping.
// A missing file returns an error satisfying errors.Is(err, fs.ErrNotExist).
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: errors.New("is a directory")}
	}
	if fi.Size() == 0 {
		return &Mapping{}, nil
	}

	data, unmap, err := osMap(f, int(fi.Size()))
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}
	return &Mapping{data: data, unmap: unmap}, nil
}

// Close unmaps the file. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.unmap == nil {
		return nil
	}
	return m.unmap()
}

// Len returns the mapped size in bytes.
func (m *Mapping) Len() int { return len(m.data) }

// Bytes returns the whole mapping, or nil once closed.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Range returns up to n bytes starting at off. The result is shorter than
// n at the end of the mapping.
func (m *Mapping) Range(off, n int64) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 || off > int64(len(m.data)) {
		return nil, ErrOutOfRange
	}
	end := min(off+n, int64(len(m.data)))
	return m.data[off:end], nil
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrOutOfRange
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Advise passes an access hint for the whole mapping to the kernel.
func (m *Mapping) Advise(a Advice) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.data) == 0 {
		return nil
	}
	return osAdvise(m.data, a)
}
