package writebuffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/hupe1980/spill/internal/evictfile"
	"github.com/hupe1980/spill/internal/fs"
	"github.com/hupe1980/spill/internal/resource"
)

// Config configures a Buffer.
type Config struct {
	// LimitBytes is the staging budget. Payloads larger than the whole
	// budget bypass the queue. Must be positive.
	LimitBytes int64

	// Policy selects the flush order. Defaults to FIFO.
	Policy Policy

	// Compression applied to eviction files on flush.
	Compression evictfile.Compression

	// FS is the filesystem eviction files are written to. Defaults to fs.Default.
	FS fs.FileSystem

	// Resources, if set, is charged for queued bytes and throttles flush IO.
	Resources *resource.Controller

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// OnFlush, if set, is called after every disk write with its outcome.
	OnFlush func(path string, bytes int, d time.Duration, err error)
}

// Stats is a snapshot of buffer counters.
type Stats struct {
	Entries      int
	Bytes        int64
	LimitBytes   int64
	Writes       int64
	Flushes      int64
	FlushedBytes int64
	DirectWrites int64
	Hits         int64
	Misses       int64
	Deletes      int64
}

// Buffer is the write-back staging area. It is safe for concurrent use.
type Buffer struct {
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	queue *simplelru.LRU[string, []byte]
	size  int64

	writes       atomic.Int64
	flushes      atomic.Int64
	flushedBytes atomic.Int64
	directWrites atomic.Int64
	hits         atomic.Int64
	misses       atomic.Int64
	deletes      atomic.Int64
}

// New creates a Buffer.
func New(cfg Config) (*Buffer, error) {
	if cfg.LimitBytes <= 0 {
		return nil, fmt.Errorf("writebuffer: limit must be positive, got %d", cfg.LimitBytes)
	}
	if cfg.FS == nil {
		cfg.FS = fs.Default
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	// Entry count is unbounded; only bytes count against the budget.
	queue, err := simplelru.NewLRU[string, []byte](math.MaxInt32, nil)
	if err != nil {
		return nil, err
	}

	return &Buffer{
		cfg:   cfg,
		log:   log.With("component", "writebuffer"),
		queue: queue,
	}, nil
}

// WriteBlock stages data for path. The buffer takes ownership of data.
// If staging pushes the total over budget, the oldest entries are flushed
// to disk before WriteBlock returns.
func (b *Buffer) WriteBlock(ctx context.Context, path string, data []byte) error {
	n := int64(len(data))
	b.writes.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeLocked(path)

	if n > b.cfg.LimitBytes {
		b.directWrites.Add(1)
		return b.flushLocked(ctx, path, data)
	}

	for b.size+n > b.cfg.LimitBytes {
		oldPath, oldData, ok := b.queue.GetOldest()
		if !ok {
			break
		}
		if err := b.flushLocked(ctx, oldPath, oldData); err != nil {
			return err
		}
		b.removeLocked(oldPath)
	}

	if err := b.cfg.Resources.AcquireMemory(n); err != nil {
		// No room to stage under the process memory ceiling.
		b.directWrites.Add(1)
		return b.flushLocked(ctx, path, data)
	}

	b.queue.Add(path, data)
	b.size += n
	return nil
}

// ReadBlock returns the staged payload for path without touching disk.
// The returned slice must not be modified.
func (b *Buffer) ReadBlock(path string) ([]byte, bool) {
	b.mu.Lock()
	var (
		data []byte
		ok   bool
	)
	if b.cfg.Policy == LRU {
		data, ok = b.queue.Get(path)
	} else {
		data, ok = b.queue.Peek(path)
	}
	b.mu.Unlock()

	if ok {
		b.hits.Add(1)
	} else {
		b.misses.Add(1)
	}
	return data, ok
}

// ReadFile reads and validates the flushed eviction file at path.
func (b *Buffer) ReadFile(path string) ([]byte, error) {
	raw, err := fs.ReadFile(b.cfg.FS, path)
	if err != nil {
		return nil, err
	}
	return evictfile.Decode(raw)
}

// Load returns the payload for path from the queue, falling back to disk.
func (b *Buffer) Load(path string) ([]byte, error) {
	if data, ok := b.ReadBlock(path); ok {
		return data, nil
	}
	return b.ReadFile(path)
}

// Contains reports whether path is staged, without affecting order or stats.
func (b *Buffer) Contains(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Contains(path)
}

// DeleteBlock drops the staged entry for path and removes its file.
func (b *Buffer) DeleteBlock(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeLocked(path)
	b.deletes.Add(1)

	if _, err := fs.RemoveIfExists(b.cfg.FS, path); err != nil {
		return fmt.Errorf("writebuffer: delete %s: %w", path, err)
	}
	return nil
}

// Cleanup flushes every staged entry to disk, oldest first. Entries that
// fail to flush stay queued; their errors are joined.
func (b *Buffer) Cleanup(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, path := range b.queue.Keys() {
		data, ok := b.queue.Peek(path)
		if !ok {
			continue
		}
		if err := b.flushLocked(ctx, path, data); err != nil {
			errs = append(errs, err)
			continue
		}
		b.removeLocked(path)
	}

	if len(errs) > 0 {
		b.log.WarnContext(ctx, "cleanup left entries queued", "failed", len(errs), "remaining", b.queue.Len())
	}
	return errors.Join(errs...)
}

// Size returns the staged byte total.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Len returns the number of staged entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// Limit returns the staging budget.
func (b *Buffer) Limit() int64 {
	return b.cfg.LimitBytes
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	entries, size := b.queue.Len(), b.size
	b.mu.Unlock()

	return Stats{
		Entries:      entries,
		Bytes:        size,
		LimitBytes:   b.cfg.LimitBytes,
		Writes:       b.writes.Load(),
		Flushes:      b.flushes.Load(),
		FlushedBytes: b.flushedBytes.Load(),
		DirectWrites: b.directWrites.Load(),
		Hits:         b.hits.Load(),
		Misses:       b.misses.Load(),
		Deletes:      b.deletes.Load(),
	}
}

// removeLocked drops path from the queue and returns its bytes to the budget.
func (b *Buffer) removeLocked(path string) {
	data, ok := b.queue.Peek(path)
	if !ok {
		return
	}
	b.queue.Remove(path)
	n := int64(len(data))
	b.size -= n
	b.cfg.Resources.ReleaseMemory(n)
}

func (b *Buffer) flushLocked(ctx context.Context, path string, data []byte) error {
	start := time.Now()

	err := b.writeFile(ctx, path, data)
	d := time.Since(start)
	if b.cfg.OnFlush != nil {
		b.cfg.OnFlush(path, len(data), d, err)
	}
	if err != nil {
		b.log.ErrorContext(ctx, "flush failed", "path", path, "bytes", len(data), "error", err)
		return fmt.Errorf("writebuffer: flush %s: %w", path, err)
	}

	b.flushes.Add(1)
	b.flushedBytes.Add(int64(len(data)))
	b.log.DebugContext(ctx, "flushed", "path", path, "bytes", len(data), "duration", d)
	return nil
}

func (b *Buffer) writeFile(ctx context.Context, path string, data []byte) error {
	enc, err := evictfile.Encode(data, b.cfg.Compression)
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(b.cfg.FS, path, enc, func(w io.Writer) io.Writer {
		return resource.LimitWriter(ctx, w, b.cfg.Resources)
	})
}
