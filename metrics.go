package spill

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
// The metrics/prometheus package provides a ready-made implementation.
//
// Example integration:
//
//	type PrometheusCollector struct {
//	    evictions prometheus.Counter
//	    restores  *prometheus.HistogramVec
//	}
//
//	func (p *PrometheusCollector) RecordEvict(bytes int, err error) {
//	    p.evictions.Inc()
//	}
type MetricsCollector interface {
	// RecordAcquire is called after each AcquireRead or AcquireModify.
	// mode is "read" or "modify".
	RecordAcquire(mode string, duration time.Duration, err error)

	// RecordRelease is called after each Release, including any eviction
	// hand-off it triggered.
	RecordRelease(duration time.Duration, err error)

	// RecordRestore is called whenever a block is brought back into memory.
	// source is "soft", "buffer", "eviction", "backing", "lineage" or "device".
	RecordRestore(source string, duration time.Duration, err error)

	// RecordEvict is called when a block is handed to the write-back buffer.
	RecordEvict(bytes int, err error)

	// RecordFlush is called after each write-back buffer disk write.
	RecordFlush(bytes int, duration time.Duration, err error)

	// RecordExport is called after each Export or Move.
	RecordExport(kind ExportKind, duration time.Duration, err error)

	// RecordClear is called after each successful ClearData.
	RecordClear()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAcquire(string, time.Duration, error)    {}
func (NoopMetricsCollector) RecordRelease(time.Duration, error)            {}
func (NoopMetricsCollector) RecordRestore(string, time.Duration, error)    {}
func (NoopMetricsCollector) RecordEvict(int, error)                        {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordExport(ExportKind, time.Duration, error) {}
func (NoopMetricsCollector) RecordClear()                                  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AcquireCount     atomic.Int64
	AcquireErrors    atomic.Int64
	ReleaseCount     atomic.Int64
	ReleaseErrors    atomic.Int64
	RestoreCount     atomic.Int64
	RestoreErrors    atomic.Int64
	RestoreFromDisk  atomic.Int64
	RestoreTotalNano atomic.Int64
	EvictCount       atomic.Int64
	EvictBytes       atomic.Int64
	EvictErrors      atomic.Int64
	FlushCount       atomic.Int64
	FlushBytes       atomic.Int64
	FlushErrors      atomic.Int64
	ExportCount      atomic.Int64
	ExportWrites     atomic.Int64
	ExportErrors     atomic.Int64
	ClearCount       atomic.Int64
}

// RecordAcquire implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAcquire(_ string, _ time.Duration, err error) {
	b.AcquireCount.Add(1)
	if err != nil {
		b.AcquireErrors.Add(1)
	}
}

// RecordRelease implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRelease(_ time.Duration, err error) {
	b.ReleaseCount.Add(1)
	if err != nil {
		b.ReleaseErrors.Add(1)
	}
}

// RecordRestore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRestore(source string, duration time.Duration, err error) {
	b.RestoreCount.Add(1)
	b.RestoreTotalNano.Add(duration.Nanoseconds())
	if source == "eviction" {
		b.RestoreFromDisk.Add(1)
	}
	if err != nil {
		b.RestoreErrors.Add(1)
	}
}

// RecordEvict implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEvict(bytes int, err error) {
	b.EvictCount.Add(1)
	if err != nil {
		b.EvictErrors.Add(1)
		return
	}
	b.EvictBytes.Add(int64(bytes))
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(bytes int, _ time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushBytes.Add(int64(bytes))
}

// RecordExport implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExport(kind ExportKind, _ time.Duration, err error) {
	b.ExportCount.Add(1)
	if err != nil {
		b.ExportErrors.Add(1)
		return
	}
	if kind != ExportNone {
		b.ExportWrites.Add(1)
	}
}

// RecordClear implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClear() {
	b.ClearCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AcquireCount:    b.AcquireCount.Load(),
		AcquireErrors:   b.AcquireErrors.Load(),
		ReleaseCount:    b.ReleaseCount.Load(),
		ReleaseErrors:   b.ReleaseErrors.Load(),
		RestoreCount:    b.RestoreCount.Load(),
		RestoreErrors:   b.RestoreErrors.Load(),
		RestoreFromDisk: b.RestoreFromDisk.Load(),
		RestoreAvgNanos: b.getAvgRestoreNanos(),
		EvictCount:      b.EvictCount.Load(),
		EvictBytes:      b.EvictBytes.Load(),
		EvictErrors:     b.EvictErrors.Load(),
		FlushCount:      b.FlushCount.Load(),
		FlushBytes:      b.FlushBytes.Load(),
		FlushErrors:     b.FlushErrors.Load(),
		ExportCount:     b.ExportCount.Load(),
		ExportWrites:    b.ExportWrites.Load(),
		ExportErrors:    b.ExportErrors.Load(),
		ClearCount:      b.ClearCount.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgRestoreNanos() int64 {
	count := b.RestoreCount.Load()
	if count == 0 {
		return 0
	}
	return b.RestoreTotalNano.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AcquireCount    int64
	AcquireErrors   int64
	ReleaseCount    int64
	ReleaseErrors   int64
	RestoreCount    int64
	RestoreErrors   int64
	RestoreFromDisk int64
	RestoreAvgNanos int64
	EvictCount      int64
	EvictBytes      int64
	EvictErrors     int64
	FlushCount      int64
	FlushBytes      int64
	FlushErrors     int64
	ExportCount     int64
	ExportWrites    int64
	ExportErrors    int64
	ClearCount      int64
}
