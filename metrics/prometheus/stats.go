package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/spill"
)

// StatsSource is implemented by *spill.Manager.
type StatsSource interface {
	Stats() spill.Stats
}

// StatsCollector is a prometheus.Collector that reads a Stats snapshot on
// every scrape.
type StatsCollector struct {
	src StatsSource

	envelopes      *prometheus.Desc
	evictionFiles  *prometheus.Desc
	broadcastBytes *prometheus.Desc
	memoryUsage    *prometheus.Desc
	bufferBytes    *prometheus.Desc
	bufferLimit    *prometheus.Desc
	bufferEntries  *prometheus.Desc
	softBytes      *prometheus.Desc
	softEntries    *prometheus.Desc
	softHits       *prometheus.Desc
	softMisses     *prometheus.Desc
	active         *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector returns a collector for src. Register it with a
// prometheus.Registerer.
func NewStatsCollector(src StatsSource) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"dir"}, nil)
	}
	return &StatsCollector{
		src:            src,
		envelopes:      desc("envelopes_created", "Envelope ids assigned in this run"),
		evictionFiles:  desc("eviction_files", "Envelopes that may have an eviction file"),
		broadcastBytes: desc("broadcast_bytes", "Bytes held by live broadcasts"),
		memoryUsage:    desc("memory_usage_bytes", "Bytes reserved with the resource controller"),
		bufferBytes:    desc("write_buffer_bytes", "Bytes held by the write-back buffer"),
		bufferLimit:    desc("write_buffer_limit_bytes", "Capacity of the write-back buffer"),
		bufferEntries:  desc("write_buffer_entries", "Entries held by the write-back buffer"),
		softBytes:      desc("soft_cache_bytes", "Bytes held by the soft cache"),
		softEntries:    desc("soft_cache_entries", "Entries held by the soft cache"),
		softHits:       desc("soft_cache_hits", "Soft cache hits"),
		softMisses:     desc("soft_cache_misses", "Soft cache misses"),
		active:         desc("caching_active", "1 while released blocks are evicted"),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs() {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	active := 0.0
	if s.Active {
		active = 1
	}

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, s.Dir)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, s.Dir)
	}

	counter(c.envelopes, float64(s.Envelopes))
	gauge(c.evictionFiles, float64(s.EvictionFiles))
	gauge(c.broadcastBytes, float64(s.BroadcastBytes))
	gauge(c.memoryUsage, float64(s.MemoryUsage))
	gauge(c.bufferBytes, float64(s.Buffer.Bytes))
	gauge(c.bufferLimit, float64(s.Buffer.LimitBytes))
	gauge(c.bufferEntries, float64(s.Buffer.Entries))
	gauge(c.softBytes, float64(s.SoftCache.Bytes))
	gauge(c.softEntries, float64(s.SoftCache.Entries))
	counter(c.softHits, float64(s.SoftCache.Hits))
	counter(c.softMisses, float64(s.SoftCache.Misses))
	gauge(c.active, active)
}

func (c *StatsCollector) descs() []*prometheus.Desc {
	return []*prometheus.Desc{
		c.envelopes, c.evictionFiles, c.broadcastBytes, c.memoryUsage,
		c.bufferBytes, c.bufferLimit, c.bufferEntries,
		c.softBytes, c.softEntries, c.softHits, c.softMisses,
		c.active,
	}
}
