// Package metrics provides Prometheus instrumentation for the pipeline.
//
// It exposes operational metrics about pipeline runs: the duration of each
// stage (fetch, fit, export), the number of sites processed, rank-deficient
// sites, the age of the last completed run, and error tracking. All metrics
// are exposed via the /metrics HTTP endpoint for Prometheus scraping.
//
// Metrics exposed:
//   - sitecast_fetch_seconds: Histogram of input fetch duration
//   - sitecast_fit_seconds: Histogram of per-run model fitting duration
//   - sitecast_export_seconds: Histogram of artifact export duration
//   - sitecast_run_age_seconds: Gauge of last completed run age
//   - sitecast_sites_processed: Gauge of sites in the last run
//   - sitecast_sites_rank_deficient: Gauge of rank-deficient sites in the last run
//   - sitecast_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	FetchSeconds       prometheus.Histogram
	FitSeconds         prometheus.Histogram
	ExportSeconds      prometheus.Histogram
	RunAgeSeconds      prometheus.Gauge
	SitesProcessed     prometheus.Gauge
	SitesRankDeficient prometheus.Gauge
	ErrorsTotal        *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics. The source label records
// which input source kind fed the run.
func New(source string) *Metrics {
	return &Metrics{
		FetchSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "sitecast_fetch_seconds",
			Help: "Time spent fetching pipeline inputs",
			ConstLabels: prometheus.Labels{
				"source": source,
			},
			Buckets: prometheus.DefBuckets,
		}),

		FitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitecast_fit_seconds",
			Help:    "Time spent fitting all site models",
			Buckets: prometheus.DefBuckets,
		}),

		ExportSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitecast_export_seconds",
			Help:    "Time spent writing and uploading artifacts",
			Buckets: prometheus.DefBuckets,
		}),

		RunAgeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sitecast_run_age_seconds",
			Help: "Age of the last completed run in seconds",
		}),

		SitesProcessed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sitecast_sites_processed",
			Help: "Number of sites in the last completed run",
		}),

		SitesRankDeficient: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sitecast_sites_rank_deficient",
			Help: "Number of rank-deficient sites in the last completed run",
		}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitecast_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordFetch records the time spent fetching inputs.
func (m *Metrics) RecordFetch(seconds float64) {
	m.FetchSeconds.Observe(seconds)
}

// RecordFit records the time spent fitting site models.
func (m *Metrics) RecordFit(seconds float64) {
	m.FitSeconds.Observe(seconds)
}

// RecordExport records the time spent exporting artifacts.
func (m *Metrics) RecordExport(seconds float64) {
	m.ExportSeconds.Observe(seconds)
}

// SetRunAge sets the current run age.
func (m *Metrics) SetRunAge(seconds float64) {
	m.RunAgeSeconds.Set(seconds)
}

// SetSitesProcessed sets the number of sites in the last run.
func (m *Metrics) SetSitesProcessed(n int) {
	m.SitesProcessed.Set(float64(n))
}

// SetSitesRankDeficient sets the number of rank-deficient sites in the last run.
func (m *Metrics) SetSitesRankDeficient(n int) {
	m.SitesRankDeficient.Set(float64(n))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
