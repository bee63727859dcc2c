package backing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hupe1980/spill"
	"github.com/hupe1980/spill/blobstore"
	"github.com/hupe1980/spill/block"
	"github.com/hupe1980/spill/codec"
)

// ErrNotFound is returned when a read finds no data object at a path.
var ErrNotFound = errors.New("backing: not found")

// FormatFunc resolves a format name for one block type.
type FormatFunc[T spill.Block] func(name string) (block.Format[T], error)

// Store implements spill.Backend over a blob store.
type Store[T spill.Block] struct {
	blobs         blobstore.BlobStore
	formats       FormatFunc[T]
	defaultFormat string
	codec         codec.Codec
	log           *slog.Logger
}

var _ spill.Backend[*block.Matrix] = (*Store[*block.Matrix])(nil)

// Option configures a Store.
type Option func(*options)

type options struct {
	defaultFormat string
	codec         codec.Codec
	logger        *slog.Logger
}

// WithDefaultFormat sets the format used to read data that has no sidecar.
// Defaults to binary.
func WithDefaultFormat(name string) Option {
	return func(o *options) { o.defaultFormat = name }
}

// WithMetaCodec sets the sidecar codec. Defaults to codec.Default.
func WithMetaCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a Store persisting blocks of type T to blobs.
func New[T spill.Block](blobs blobstore.BlobStore, formats FormatFunc[T], optFns ...Option) *Store[T] {
	o := options{
		defaultFormat: block.FormatBinary,
		codec:         codec.Default,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return &Store[T]{
		blobs:         blobs,
		formats:       formats,
		defaultFormat: o.defaultFormat,
		codec:         o.codec,
		log:           o.logger.With("component", "backing"),
	}
}

// NewMatrixStore creates a Store for matrices.
func NewMatrixStore(blobs blobstore.BlobStore, optFns ...Option) *Store[*block.Matrix] {
	return New(blobs, block.MatrixFormat, optFns...)
}

// NewFrameStore creates a Store for frames.
func NewFrameStore(blobs blobstore.BlobStore, optFns ...Option) *Store[*block.Frame] {
	return New(blobs, block.FrameFormat, optFns...)
}

// Blobs returns the underlying blob store.
func (s *Store[T]) Blobs() blobstore.BlobStore { return s.blobs }

// Read loads the block at path. Known dimensions are checked against the
// decoded block; unknown ones are taken from the sidecar.
func (s *Store[T]) Read(ctx context.Context, path string, rows, cols int64) (T, error) {
	var zero T

	format := s.defaultFormat
	meta, ok, err := s.ReadMeta(ctx, path)
	if err != nil {
		return zero, err
	}
	if ok {
		if meta.Format != "" {
			format = meta.Format
		}
		if rows <= 0 {
			rows = meta.Rows
		}
		if cols <= 0 {
			cols = meta.Cols
		}
	}

	f, err := s.formats(format)
	if err != nil {
		return zero, err
	}

	data, err := blobstore.ReadAll(ctx, s.blobs, path)
	if errors.Is(err, blobstore.ErrNotFound) {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return zero, err
	}

	b, err := f.Decode(bytes.NewReader(data), rows, cols)
	if err != nil {
		return zero, fmt.Errorf("backing: decode %s as %s: %w", path, format, err)
	}
	s.log.DebugContext(ctx, "read", "path", path, "format", format, "size", humanize.IBytes(uint64(len(data))))
	return b, nil
}

// Write stores b at path in format and rewrites its sidecar.
func (s *Store[T]) Write(ctx context.Context, path, format string, opts spill.WriteOptions, b T) error {
	f, err := s.formats(format)
	if err != nil {
		return err
	}

	start := time.Now()
	var buf bytes.Buffer
	if err := f.Encode(&buf, b); err != nil {
		return fmt.Errorf("backing: encode %s as %s: %w", path, format, err)
	}
	if err := s.blobs.Put(ctx, path, buf.Bytes()); err != nil {
		return err
	}
	if err := s.WriteMeta(ctx, path, format, opts); err != nil {
		return err
	}

	s.log.DebugContext(ctx, "written",
		"path", path,
		"format", format,
		"size", humanize.IBytes(uint64(buf.Len())),
		"duration", time.Since(start),
	)
	return nil
}

// WriteMeta rewrites the sidecar of path.
func (s *Store[T]) WriteMeta(ctx context.Context, path, format string, opts spill.WriteOptions) error {
	if _, err := s.formats(format); err != nil {
		return err
	}
	data, err := s.codec.Marshal(newMetadata(format, opts))
	if err != nil {
		return err
	}
	return s.blobs.Put(ctx, path+MetaSuffix, data)
}

// ReadMeta returns the sidecar of path. ok is false when there is none.
func (s *Store[T]) ReadMeta(ctx context.Context, path string) (meta Metadata, ok bool, err error) {
	data, err := blobstore.ReadAll(ctx, s.blobs, path+MetaSuffix)
	if errors.Is(err, blobstore.ErrNotFound) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, err
	}
	if err := s.codec.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false, fmt.Errorf("backing: sidecar %s%s: %w", path, MetaSuffix, err)
	}
	return meta, true, nil
}

// Copy duplicates the data object and sidecar at src to dst.
func (s *Store[T]) Copy(ctx context.Context, src, dst string) error {
	if err := blobstore.Copy(ctx, s.blobs, src, dst); err != nil {
		return s.notFound(err, src)
	}
	err := blobstore.Copy(ctx, s.blobs, src+MetaSuffix, dst+MetaSuffix)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}
	return err
}

// Rename moves the data object and sidecar at src to dst.
func (s *Store[T]) Rename(ctx context.Context, src, dst string) error {
	if err := blobstore.Rename(ctx, s.blobs, src, dst); err != nil {
		return s.notFound(err, src)
	}
	err := blobstore.Rename(ctx, s.blobs, src+MetaSuffix, dst+MetaSuffix)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}
	return err
}

// Delete removes path and its sidecar.
func (s *Store[T]) Delete(ctx context.Context, path string) error {
	return errors.Join(
		s.blobs.Delete(ctx, path),
		s.blobs.Delete(ctx, path+MetaSuffix),
	)
}

// Exists reports whether a data object is stored at path.
func (s *Store[T]) Exists(ctx context.Context, path string) (bool, error) {
	return blobstore.Exists(ctx, s.blobs, path)
}

func (s *Store[T]) notFound(err error, path string) error {
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return err
}
