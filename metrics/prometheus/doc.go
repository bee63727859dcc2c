// Package prometheus exports spill metrics to Prometheus.
//
// Collector implements spill.MetricsCollector and is passed to
// spill.WithMetricsCollector. StatsCollector publishes Manager.Stats
// snapshots as gauges on every scrape.
package prometheus
