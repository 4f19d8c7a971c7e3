// Package metrics exposes prometheus instruments for the HTTP layer and the
// job processor, plus in-memory request and query statistics surfaced by
// the health endpoint.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the prometheus instruments. A nil *Collector is valid and
// records nothing, so components can run without metrics wired.
type Collector struct {
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	errors         *prometheus.CounterVec

	jobsEnqueued  *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobLatency    *prometheus.HistogramVec
	jobsActive    prometheus.Gauge
	jobsPending   prometheus.Gauge

	stats *RequestStats
}

// NewCollector registers every instrument on reg. Passing
// prometheus.DefaultRegisterer exposes them through promhttp.Handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redditfit_http_requests_total",
			Help: "HTTP requests by endpoint and status code",
		}, []string{"endpoint", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redditfit_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redditfit_errors_total",
			Help: "Errors by type",
		}, []string{"type"}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redditfit_jobs_enqueued_total",
			Help: "Background jobs enqueued by kind",
		}, []string{"kind"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redditfit_jobs_completed_total",
			Help: "Background jobs completed by kind",
		}, []string{"kind"}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redditfit_jobs_failed_total",
			Help: "Background jobs failed by kind",
		}, []string{"kind"}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redditfit_job_duration_seconds",
			Help:    "Background job processing time in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"kind"}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redditfit_jobs_active",
			Help: "Jobs currently processing",
		}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redditfit_jobs_pending",
			Help: "Jobs waiting for a free slot",
		}),
		stats: NewRequestStats(),
	}

	reg.MustRegister(
		c.requests,
		c.requestLatency,
		c.errors,
		c.jobsEnqueued,
		c.jobsCompleted,
		c.jobsFailed,
		c.jobLatency,
		c.jobsActive,
		c.jobsPending,
	)
	return c
}

// RecordRequest feeds both the prometheus instruments and the in-memory stats.
func (c *Collector) RecordRequest(endpoint string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.requestLatency.WithLabelValues(endpoint).Observe(d.Seconds())
	c.stats.RecordRequest(endpoint, status, d)
}

func (c *Collector) RecordError(kind string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(kind).Inc()
	c.stats.RecordError(kind)
}

func (c *Collector) RecordJobEnqueued(kind string) {
	if c == nil {
		return
	}
	c.jobsEnqueued.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordJobCompleted(kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobsCompleted.WithLabelValues(kind).Inc()
	c.jobLatency.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *Collector) RecordJobFailed(kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobsFailed.WithLabelValues(kind).Inc()
	c.jobLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// SetJobGauges publishes the processor's current occupancy.
func (c *Collector) SetJobGauges(active, pending int) {
	if c == nil {
		return
	}
	c.jobsActive.Set(float64(active))
	c.jobsPending.Set(float64(pending))
}

// Requests returns the in-memory request statistics.
func (c *Collector) Requests() *RequestStats {
	if c == nil {
		return nil
	}
	return c.stats
}
