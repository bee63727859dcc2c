package spill

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/spill/internal/evictfile"
	"github.com/hupe1980/spill/internal/fs"
	"github.com/hupe1980/spill/internal/idseq"
	"github.com/hupe1980/spill/internal/resource"
	"github.com/hupe1980/spill/internal/softcache"
	"github.com/hupe1980/spill/internal/writebuffer"
)

// BufferStats is a snapshot of the write-back buffer.
type BufferStats = writebuffer.Stats

// SoftCacheStats is a snapshot of the soft cache.
type SoftCacheStats = softcache.Stats

// Stats is a snapshot of a Manager.
type Stats struct {
	Dir            string
	Active         bool
	Threshold      int64
	Envelopes      int64
	EvictionFiles  uint64
	BroadcastBytes int64
	MemoryUsage    int64
	Buffer         BufferStats
	SoftCache      SoftCacheStats
}

// Manager owns the per-run caching state: the eviction directory, the id
// sequence, the write-back buffer and the soft cache. Envelopes close over
// their Manager; no state is global.
type Manager struct {
	opts options
	log  *Logger
	dir  string

	ids    *idseq.Sequence
	active atomic.Bool
	closed atomic.Bool

	buffer *writebuffer.Buffer
	soft   *softcache.Cache
	rc     *resource.Controller

	threshold int64

	mu      sync.Mutex
	evicted *roaring64.Bitmap

	broadcastBytes atomic.Int64
}

// InitCaching creates the eviction directory <root>/<runID> and starts a
// run with caching active.
func InitCaching(runID string, optFns ...Option) (*Manager, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, configError("invalid run id %q", runID)
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.cacheRoot == "" {
		return nil, configError("cache root is not set")
	}
	if opts.prefix == "" {
		return nil, configError("eviction prefix is not set")
	}

	ceiling := opts.memoryCeiling
	if ceiling <= 0 {
		ceiling = resource.LocalMaxMemory()
	}

	threshold := opts.threshold
	if threshold <= 0 {
		threshold = max(MinThreshold, int64(ThresholdFraction*float64(ceiling)))
	}

	bufferBytes := opts.bufferBytes
	if bufferBytes <= 0 {
		if opts.bufferFraction <= 0 || opts.bufferFraction > 1 {
			return nil, configError("write buffer fraction %v out of range (0, 1]", opts.bufferFraction)
		}
		bufferBytes = int64(opts.bufferFraction * float64(ceiling))
	}

	softBytes := opts.softCacheBytes
	if softBytes == 0 {
		softBytes = ceiling / 4
	}

	dir := filepath.Join(opts.cacheRoot, runID)
	if err := opts.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, configError("create eviction directory %s: %v", dir, err)
	}

	log := opts.logger.WithRun(runID)
	metrics := opts.metricsCollector

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:     ceiling,
		MaxBackgroundWorkers: int64(max(opts.cleanupWorkers, 1)),
		IOLimitBytesPerSec:   opts.ioLimit,
	})

	buffer, err := writebuffer.New(writebuffer.Config{
		LimitBytes:  bufferBytes,
		Policy:      opts.policy,
		Compression: opts.compression,
		FS:          opts.fs,
		Resources:   rc,
		Logger:      log.Logger,
		OnFlush: func(_ string, n int, d time.Duration, err error) {
			metrics.RecordFlush(n, d, err)
		},
	})
	if err != nil {
		return nil, configError("%v", err)
	}

	m := &Manager{
		opts:      opts,
		log:       log,
		dir:       dir,
		ids:       idseq.New(1),
		buffer:    buffer,
		soft:      softcache.New(softBytes),
		rc:        rc,
		threshold: threshold,
		evicted:   roaring64.New(),
	}
	m.active.Store(true)

	log.Info("caching initialized",
		"dir", dir,
		"threshold", threshold,
		"buffer_bytes", bufferBytes,
		"policy", opts.policy.String(),
	)
	return m, nil
}

// Dir returns the eviction directory.
func (m *Manager) Dir() string { return m.dir }

// Threshold returns the caching threshold in bytes.
func (m *Manager) Threshold() int64 { return m.threshold }

// Logger returns the run logger.
func (m *Manager) Logger() *Logger { return m.log }

// IsCachingActive reports whether released blocks are evicted.
func (m *Manager) IsCachingActive() bool { return m.active.Load() }

// EnableCaching turns eviction back on. It has no effect after CleanupCacheDir.
func (m *Manager) EnableCaching() {
	if !m.closed.Load() {
		m.active.Store(true)
	}
}

// DisableCaching stops eviction. Released blocks stay in memory and new
// envelopes get no id.
func (m *Manager) DisableCaching() { m.active.Store(false) }

// EvictionPath returns the eviction file path for id.
func (m *Manager) EvictionPath(id int64) string {
	return evictfile.Path(m.dir, m.opts.prefix, id, m.opts.extension)
}

// ReclaimSoftCache drops least recently used soft-cache entries until
// bytes have been freed, and returns the bytes freed. It is the hook for
// external memory-pressure signals.
func (m *Manager) ReclaimSoftCache(bytes int64) int64 {
	return m.soft.Reclaim(bytes)
}

// AddBroadcastSize adjusts the bytes held by live broadcasts.
func (m *Manager) AddBroadcastSize(delta int64) {
	m.broadcastBytes.Add(delta)
}

// BroadcastSize returns the bytes held by live broadcasts.
func (m *Manager) BroadcastSize() int64 { return m.broadcastBytes.Load() }

// Stats returns a snapshot of the manager.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	files := m.evicted.GetCardinality()
	m.mu.Unlock()

	return Stats{
		Dir:            m.dir,
		Active:         m.active.Load(),
		Threshold:      m.threshold,
		Envelopes:      m.ids.Current(),
		EvictionFiles:  files,
		BroadcastBytes: m.broadcastBytes.Load(),
		MemoryUsage:    m.rc.MemoryUsage(),
		Buffer:         m.buffer.Stats(),
		SoftCache:      m.soft.Stats(),
	}
}

// CleanupCacheDir flushes the write-back buffer, deletes every file with
// the run prefix, and removes the eviction directory if it is empty.
// Deletion failures are logged, not returned. The manager cannot be used
// afterwards.
func (m *Manager) CleanupCacheDir(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return configError("caching already cleaned up")
	}
	m.active.Store(false)

	if err := m.buffer.Cleanup(ctx); err != nil {
		m.log.WarnContext(ctx, "write buffer flush failed during cleanup", "error", err)
	}

	deleted, failed := m.deleteEvictionFiles(ctx)

	if entries, err := m.opts.fs.ReadDir(m.dir); err == nil && len(entries) == 0 {
		if err := m.opts.fs.Remove(m.dir); err != nil && !os.IsNotExist(err) {
			m.log.WarnContext(ctx, "remove eviction directory", "dir", m.dir, "error", err)
		}
	}

	m.soft.Purge()

	m.mu.Lock()
	if n := m.evicted.GetCardinality(); n > 0 {
		m.log.WarnContext(ctx, "envelopes were not cleared before cleanup", "count", n)
	}
	m.evicted.Clear()
	m.mu.Unlock()

	m.log.LogCleanup(ctx, m.dir, deleted, failed)
	return nil
}

func (m *Manager) deleteEvictionFiles(ctx context.Context) (deleted, failed int) {
	entries, err := m.opts.fs.ReadDir(m.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.WarnContext(ctx, "list eviction directory", "dir", m.dir, "error", err)
		}
		return 0, 0
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), m.opts.prefix) {
			names = append(names, filepath.Join(m.dir, e.Name()))
		}
	}

	var nDeleted, nFailed atomic.Int64
	remove := func(path string) {
		if _, err := fs.RemoveIfExists(m.opts.fs, path); err != nil {
			nFailed.Add(1)
			m.log.WarnContext(ctx, "delete eviction file", "path", path, "error", err)
			return
		}
		nDeleted.Add(1)
	}

	if !m.opts.asyncCleanup {
		for _, path := range names {
			remove(path)
		}
		return int(nDeleted.Load()), int(nFailed.Load())
	}

	var g errgroup.Group
	for _, path := range names {
		if err := m.rc.AcquireBackground(ctx); err != nil {
			nFailed.Add(1)
			continue
		}
		g.Go(func() error {
			defer m.rc.ReleaseBackground()
			remove(path)
			return nil
		})
	}
	_ = g.Wait()

	return int(nDeleted.Load()), int(nFailed.Load())
}

func (m *Manager) checkOpen() error {
	if m == nil {
		return configError("caching not initialized")
	}
	if m.closed.Load() {
		return configError("caching already cleaned up")
	}
	return nil
}

func (m *Manager) markEvicted(id int64) {
	m.mu.Lock()
	m.evicted.Add(uint64(id))
	m.mu.Unlock()
}

func (m *Manager) unmarkEvicted(id int64) {
	m.mu.Lock()
	m.evicted.Remove(uint64(id))
	m.mu.Unlock()
}

func (m *Manager) mayHaveEvictionFile(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evicted.Contains(uint64(id))
}
