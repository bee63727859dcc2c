package spill

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hupe1980/spill/internal/evictfile"
	"github.com/hupe1980/spill/internal/fs"
	"github.com/hupe1980/spill/internal/writebuffer"
)

// Policy selects the order in which the write-back buffer flushes
// staged blocks to disk.
type Policy = writebuffer.Policy

const (
	// PolicyFIFO flushes the oldest staged block first.
	PolicyFIFO = writebuffer.FIFO
	// PolicyLRU flushes the least recently read block first.
	PolicyLRU = writebuffer.LRU
)

// ParsePolicy parses "FIFO" or "LRU" (case-insensitive).
func ParsePolicy(s string) (Policy, error) { return writebuffer.ParsePolicy(s) }

// Compression selects the eviction file payload codec.
type Compression = evictfile.Compression

const (
	CompressionNone = evictfile.CompressionNone
	CompressionLZ4  = evictfile.CompressionLZ4
	CompressionZSTD = evictfile.CompressionZSTD
)

// ParseCompression parses "none", "lz4" or "zstd" (case-insensitive).
func ParseCompression(s string) (Compression, error) { return evictfile.ParseCompression(s) }

const (
	// DefaultWriteBufferFraction is the share of the memory ceiling given
	// to the write-back buffer.
	DefaultWriteBufferFraction = 0.15

	// DefaultEvictionPrefix prefixes every eviction file name.
	DefaultEvictionPrefix = "cache"

	// DefaultEvictionExtension is appended to every eviction file name.
	DefaultEvictionExtension = ".dat"

	// MinThreshold is the smallest caching threshold in bytes.
	MinThreshold = 4 * 1024

	// ThresholdFraction of the memory ceiling is the default caching threshold
	// when it exceeds MinThreshold.
	ThresholdFraction = 0.00001
)

type options struct {
	cacheRoot        string
	prefix           string
	extension        string
	threshold        int64
	bufferFraction   float64
	bufferBytes      int64
	policy           Policy
	asyncCleanup     bool
	compression      Compression
	softCacheBytes   int64
	memoryCeiling    int64
	ioLimit          int64
	cleanupWorkers   int
	writeCacheOnRead bool
	eagerDeviceFree  bool
	metricsCollector MetricsCollector
	logger           *Logger
	fs               fs.FileSystem
}

func defaultOptions() options {
	return options{
		cacheRoot:        filepath.Join(os.TempDir(), "spill"),
		prefix:           DefaultEvictionPrefix,
		extension:        DefaultEvictionExtension,
		bufferFraction:   DefaultWriteBufferFraction,
		policy:           PolicyFIFO,
		asyncCleanup:     true,
		compression:      CompressionLZ4,
		cleanupWorkers:   4,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		fs:               fs.Default,
	}
}

// Option configures a Manager.
type Option func(*options)

// WithCacheRoot sets the directory under which each run creates its
// scratch directory. Defaults to $TMPDIR/spill.
func WithCacheRoot(dir string) Option {
	return func(o *options) {
		o.cacheRoot = dir
	}
}

// WithEvictionPrefix sets the file name prefix of eviction files.
// CleanupCacheDir only removes files carrying this prefix.
func WithEvictionPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithEvictionExtension sets the file name extension of eviction files.
func WithEvictionExtension(ext string) Option {
	return func(o *options) {
		o.extension = ext
	}
}

// WithThreshold sets the caching threshold in bytes. Blocks at or below it
// are never pinned, evicted or soft-cached.
//
// If threshold <= 0, the default max(4 KiB, 1e-5 × memory ceiling) is used.
func WithThreshold(threshold int64) Option {
	return func(o *options) {
		o.threshold = threshold
	}
}

// WithWriteBufferFraction sizes the write-back buffer as a fraction of the
// memory ceiling. Ignored when WithWriteBufferBytes is set.
func WithWriteBufferFraction(f float64) Option {
	return func(o *options) {
		o.bufferFraction = f
	}
}

// WithWriteBufferBytes sizes the write-back buffer in absolute bytes.
func WithWriteBufferBytes(n int64) Option {
	return func(o *options) {
		o.bufferBytes = n
	}
}

// WithPolicy sets the write-back buffer flush order.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithAsyncCleanup makes CleanupCacheDir delete eviction files with
// CleanupWorkers goroutines instead of one at a time.
func WithAsyncCleanup(enabled bool) Option {
	return func(o *options) {
		o.asyncCleanup = enabled
	}
}

// WithCleanupWorkers bounds the number of concurrent deletions during
// CleanupCacheDir.
func WithCleanupWorkers(n int) Option {
	return func(o *options) {
		o.cleanupWorkers = n
	}
}

// WithCompression sets the eviction file compression. Defaults to LZ4.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSoftCacheBytes bounds the soft cache. Defaults to a quarter of the
// memory ceiling. A negative value disables the bound.
func WithSoftCacheBytes(n int64) Option {
	return func(o *options) {
		o.softCacheBytes = n
	}
}

// WithMemoryCeiling overrides the detected process memory ceiling used to
// derive the threshold, the write-back buffer size and the soft cache size.
func WithMemoryCeiling(n int64) Option {
	return func(o *options) {
		o.memoryCeiling = n
	}
}

// WithIOLimit throttles eviction file writes to n bytes per second.
// Zero disables throttling.
func WithIOLimit(n int64) Option {
	return func(o *options) {
		o.ioLimit = n
	}
}

// WithWriteCacheOnRead makes blocks read from a backing store also get a
// local eviction file on their first release.
func WithWriteCacheOnRead(enabled bool) Option {
	return func(o *options) {
		o.writeCacheOnRead = enabled
	}
}

// WithEagerDeviceFree is passed to DeviceCopy.ClearData when an envelope
// is cleared.
func WithEagerDeviceFree(enabled bool) Option {
	return func(o *options) {
		o.eagerDeviceFree = enabled
	}
}

// WithMetricsCollector sets a custom metrics collector.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger sets a custom structured logger.
//
// If nil is passed, NoopLogger is used.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger at the given level writing to stderr.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}
