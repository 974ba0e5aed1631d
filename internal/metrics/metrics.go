// ============================================================================
// fontmake-mp Metrics - Prometheus Build Metrics
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect per-run compile metrics and expose them to Prometheus
//
// Metric categories:
//
//   1. Counters:
//      - fontmake_jobs_dispatched_total: compiles started
//      - fontmake_jobs_succeeded_total:  compiles that produced binaries
//      - fontmake_jobs_failed_total:     compiles that failed
//
//   2. Histogram:
//      - fontmake_job_duration_seconds: wall time per compile
//        * buckets from 0.5s to ~17min, fontmake runs are long
//
//   3. Gauges:
//      - fontmake_workers:                  effective worker count of the last run
//      - fontmake_last_run_timestamp_seconds: completion time of the last run
//      - fontmake_last_run_failed_jobs:     failures in the last run
//
// Export:
//   fontmake-mp is a one-shot process, so instead of an HTTP /metrics
//   endpoint the registry is written to a node_exporter textfile
//   (WriteTextfile) when a path is configured.
//
// ============================================================================

package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the build metrics for one process.
type Collector struct {
	jobsDispatched prometheus.Counter
	jobsSucceeded  prometheus.Counter
	jobsFailed     prometheus.Counter

	jobDuration prometheus.Histogram

	workers       prometheus.Gauge
	lastRunTime   prometheus.Gauge
	lastRunFailed prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewCollector creates the collector and registers it on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	return NewCollectorWith(reg, reg)
}

// NewCollectorWith registers all metrics on reg; gatherer is used by WriteTextfile.
func NewCollectorWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	c := &Collector{
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fontmake_jobs_dispatched_total",
			Help: "Total number of font compiles started",
		}),
		jobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fontmake_jobs_succeeded_total",
			Help: "Total number of font compiles that succeeded",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fontmake_jobs_failed_total",
			Help: "Total number of font compiles that failed",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fontmake_job_duration_seconds",
			Help:    "Font compile duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fontmake_workers",
			Help: "Effective worker count of the last run",
		}),
		lastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fontmake_last_run_timestamp_seconds",
			Help: "Unix time the last run completed",
		}),
		lastRunFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fontmake_last_run_failed_jobs",
			Help: "Number of failed compiles in the last run",
		}),
		gatherer: gatherer,
	}

	reg.MustRegister(
		c.jobsDispatched,
		c.jobsSucceeded,
		c.jobsFailed,
		c.jobDuration,
		c.workers,
		c.lastRunTime,
		c.lastRunFailed,
	)

	return c
}

// RecordDispatch records a compile being started.
func (c *Collector) RecordDispatch() {
	c.jobsDispatched.Inc()
}

// RecordSucceeded records a successful compile and its duration.
func (c *Collector) RecordSucceeded(seconds float64) {
	c.jobsSucceeded.Inc()
	c.jobDuration.Observe(seconds)
}

// RecordFailed records a failed compile and its duration.
func (c *Collector) RecordFailed(seconds float64) {
	c.jobsFailed.Inc()
	c.jobDuration.Observe(seconds)
}

// SetWorkers records the effective worker count.
func (c *Collector) SetWorkers(n int) {
	c.workers.Set(float64(n))
}

// RecordRun records the end of a run.
func (c *Collector) RecordRun(unixSeconds float64, failed int) {
	c.lastRunTime.Set(unixSeconds)
	c.lastRunFailed.Set(float64(failed))
}

// WriteTextfile writes the registry in Prometheus text format to path,
// atomically, for the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
