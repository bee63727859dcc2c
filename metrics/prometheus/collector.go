package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/spill"
)

const namespace = "spill"

// Collector records envelope operations. All metrics use the spill_ prefix.
type Collector struct {
	// AcquiresTotal counts acquires by mode and result.
	AcquiresTotal *prometheus.CounterVec

	// AcquireDuration tracks acquire latency by mode, including restores.
	AcquireDuration *prometheus.HistogramVec

	ReleasesTotal   *prometheus.CounterVec
	ReleaseDuration prometheus.Histogram

	// RestoresTotal counts blocks brought back into memory by source.
	RestoresTotal   *prometheus.CounterVec
	RestoreDuration *prometheus.HistogramVec

	EvictionsTotal *prometheus.CounterVec
	EvictedBytes   prometheus.Counter

	FlushesTotal  *prometheus.CounterVec
	FlushedBytes  prometheus.Counter
	FlushDuration prometheus.Histogram

	// ExportsTotal counts exports by the action taken and result.
	ExportsTotal   *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec

	ClearsTotal prometheus.Counter
}

var _ spill.MetricsCollector = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg.
// It panics if registration fails.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		AcquiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acquires_total",
				Help:      "Total envelope acquires by mode and result",
			},
			[]string{"mode", "result"},
		),
		AcquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "acquire_duration_seconds",
				Help:      "Envelope acquire duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		ReleasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "releases_total",
				Help:      "Total envelope releases by result",
			},
			[]string{"result"},
		),
		ReleaseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "release_duration_seconds",
				Help:      "Envelope release duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RestoresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restores_total",
				Help:      "Total block restores by source and result",
			},
			[]string{"source", "result"},
		),
		RestoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "restore_duration_seconds",
				Help:      "Block restore duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		EvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evictions_total",
				Help:      "Total blocks handed to the write-back buffer by result",
			},
			[]string{"result"},
		),
		EvictedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evicted_bytes_total",
				Help:      "Serialized bytes handed to the write-back buffer",
			},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushes_total",
				Help:      "Total write-back buffer disk writes by result",
			},
			[]string{"result"},
		),
		FlushedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushed_bytes_total",
				Help:      "Bytes written to eviction files",
			},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flush_duration_seconds",
				Help:      "Eviction file write duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Total exports by action and result",
			},
			[]string{"kind", "result"},
		),
		ExportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_duration_seconds",
				Help:      "Export duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		ClearsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clears_total",
				Help:      "Total envelopes cleared",
			},
		),
	}

	reg.MustRegister(
		c.AcquiresTotal,
		c.AcquireDuration,
		c.ReleasesTotal,
		c.ReleaseDuration,
		c.RestoresTotal,
		c.RestoreDuration,
		c.EvictionsTotal,
		c.EvictedBytes,
		c.FlushesTotal,
		c.FlushedBytes,
		c.FlushDuration,
		c.ExportsTotal,
		c.ExportDuration,
		c.ClearsTotal,
	)
	return c
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordAcquire implements spill.MetricsCollector.
func (c *Collector) RecordAcquire(mode string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.AcquiresTotal.WithLabelValues(mode, result(err)).Inc()
	c.AcquireDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordRelease implements spill.MetricsCollector.
func (c *Collector) RecordRelease(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.ReleasesTotal.WithLabelValues(result(err)).Inc()
	c.ReleaseDuration.Observe(d.Seconds())
}

// RecordRestore implements spill.MetricsCollector.
func (c *Collector) RecordRestore(source string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.RestoresTotal.WithLabelValues(source, result(err)).Inc()
	c.RestoreDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordEvict implements spill.MetricsCollector.
func (c *Collector) RecordEvict(bytes int, err error) {
	if c == nil {
		return
	}
	c.EvictionsTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.EvictedBytes.Add(float64(bytes))
	}
}

// RecordFlush implements spill.MetricsCollector.
func (c *Collector) RecordFlush(bytes int, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.FlushesTotal.WithLabelValues(result(err)).Inc()
	c.FlushDuration.Observe(d.Seconds())
	if err == nil {
		c.FlushedBytes.Add(float64(bytes))
	}
}

// RecordExport implements spill.MetricsCollector.
func (c *Collector) RecordExport(kind spill.ExportKind, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.ExportsTotal.WithLabelValues(kind.String(), result(err)).Inc()
	c.ExportDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

// RecordClear implements spill.MetricsCollector.
func (c *Collector) RecordClear() {
	if c == nil {
		return
	}
	c.ClearsTotal.Inc()
}
