// Package metrics holds the Prometheus collectors for station runs and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pdsi"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	StationRuns     *prometheus.CounterVec // labels: outcome={success,error,timeout}
	StationDuration prometheus.Histogram
	BatchDuration   prometheus.Histogram
	Warnings        *prometheus.CounterVec // labels: kind
	LastBatch       prometheus.Gauge

	HTTPRequests *prometheus.CounterVec   // labels: route, code
	HTTPDuration *prometheus.HistogramVec // labels: route
}

var (
	stationDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	batchDurationBuckets   = []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60}
	httpDurationBuckets    = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1}
)

// MustRegister registers every collector with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.StationRuns,
		m.StationDuration,
		m.BatchDuration,
		m.Warnings,
		m.LastBatch,
		m.HTTPRequests,
		m.HTTPDuration,
	)
}

// NewMetrics creates the collectors. Nothing is registered until
// MustRegister is called, so tests can build as many as they like.
func NewMetrics() *Metrics {
	return &Metrics{
		StationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_runs_total",
			Help:      "Station index computations by outcome.",
		}, []string{"outcome"}),
		StationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "station_run_duration_seconds",
			Help:      "Time to load and compute one station.",
			Buckets:   stationDurationBuckets,
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to process every configured station.",
			Buckets:   batchDurationBuckets,
		}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computation_warnings_total",
			Help:      "Warnings reported by index computations, by kind.",
		}, []string{"kind"}),
		LastBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time the last batch finished.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   httpDurationBuckets,
		}, []string{"route"}),
	}
}
