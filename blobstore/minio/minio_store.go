package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/spill/blobstore"
)

var (
	_ blobstore.BlobStore = (*Store)(nil)
	_ blobstore.Copier    = (*Store)(nil)
)

// DefaultPartSize is the multipart chunk used for streamed block uploads.
const DefaultPartSize = 16 << 20

const blockContentType = "application/octet-stream"

// Store keeps blobs in one bucket of a MinIO or S3-compatible server.
type Store struct {
	client   *minio.Client
	bucket   string
	prefix   string
	partSize uint64
	meta     map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix places every blob under prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = strings.Trim(prefix, "/") }
}

// WithPartSize sets the multipart chunk of streamed uploads.
func WithPartSize(n uint64) Option {
	return func(s *Store) {
		if n > 0 {
			s.partSize = n
		}
	}
}

// WithUserMetadata attaches x-amz-meta-* headers to every object written.
func WithUserMetadata(meta map[string]string) Option {
	return func(s *Store) { s.meta = meta }
}

// NewStore returns a store over an existing client.
func NewStore(client *minio.Client, bucket string, optFns ...Option) *Store {
	s := &Store{client: client, bucket: bucket, partSize: DefaultPartSize}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// Dial connects to endpoint with static credentials.
func Dial(endpoint, accessKey, secretKey string, secure bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return strings.TrimPrefix(name, "/")
	}
	return path.Join(s.prefix, name)
}

func (s *Store) putOptions() minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:  blockContentType,
		UserMetadata: s.meta,
		PartSize:     s.partSize,
	}
}

func notFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func wrap(err error) error {
	if err != nil && notFound(err) {
		return blobstore.ErrNotFound
	}
	return err
}

// Open stats name and returns a blob that reads it with range requests.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, wrap(err)
	}
	return &blob{store: s, key: key, size: info.Size}, nil
}

// Put uploads data in a single request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), s.putOptions())
	return err
}

// Create starts a streamed upload. The object appears on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	pr, pw := io.Pipe()
	w := &writer{pw: pw, done: make(chan error, 1)}

	key, opts := s.key(name), s.putOptions()
	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, key, pr, -1, opts)
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// Delete removes name. A missing object is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !notFound(err) {
		return err
	}
	return nil
}

// Copy duplicates src to dst on the server.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: s.key(dst)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: s.key(src)},
	)
	return wrap(err)
}

// List returns the sorted names under prefix, relative to the store prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.key("")
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, root), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

type blob struct {
	store *Store
	key   string
	size  int64
}

func (b *blob) Size() int64 { return b.size }

func (b *blob) get(ctx context.Context, off, n int64) (*minio.Object, int64, error) {
	if off >= b.size {
		return nil, 0, io.EOF
	}
	end := min(off+n, b.size) - 1
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, end); err != nil {
		return nil, 0, err
	}
	obj, err := b.store.client.GetObject(ctx, b.store.bucket, b.key, opts)
	if err != nil {
		return nil, 0, wrap(err)
	}
	return obj, end - off + 1, nil
}

func (b *blob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	obj, n, err := b.get(ctx, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	read, err := io.ReadFull(obj, p[:n])
	if err == nil && read < len(p) {
		err = io.EOF
	}
	return read, err
}

func (b *blob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	obj, _, err := b.get(ctx, off, length)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (b *blob) Close() error { return nil }

type writer struct {
	pw     *io.PipeWriter
	done   chan error
	closed atomic.Bool
}

func (w *writer) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return errors.New("minio: upload already finished")
	}
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (w *writer) Abort() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := w.pw.CloseWithError(errors.New("minio: upload aborted"))
	<-w.done
	return err
}

func (w *writer) Sync() error { return nil }
