package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qrelay"

// Metrics holds all Prometheus metrics for the relay
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsCreatedTotal prometheus.Counter
	SessionsEvictedTotal *prometheus.CounterVec
	SendersConnected     prometheus.Counter
	SweepsTotal          prometheus.Counter

	// Image metrics
	ImagesUploadedTotal  prometheus.Counter
	ImagesDeliveredTotal prometheus.Counter
	ImageBytesTotal      *prometheus.CounterVec
	UploadErrorsTotal    *prometheus.CounterVec

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RateLimited     prometheus.Counter
}

// NewMetrics creates and registers all metrics. activeSessions is sampled at
// scrape time.
func NewMetrics(activeSessions func() float64) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),
		SessionsEvictedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Total number of sessions removed, by reason",
		}, []string{"reason"}),
		SendersConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "senders_connected_total",
			Help:      "Total number of successful sender connects",
		}),
		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Total number of expiry sweeps run",
		}),

		ImagesUploadedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_uploaded_total",
			Help:      "Total number of images accepted from senders",
		}),
		ImagesDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_delivered_total",
			Help:      "Total number of images handed to receivers",
		}),
		ImageBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_bytes_total",
			Help:      "Image payload bytes, by direction",
		}, []string{"direction"}),
		UploadErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_errors_total",
			Help:      "Rejected or failed uploads, by error kind",
		}, []string{"kind"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests refused by rate or concurrency limits",
		}),
	}

	m.registry.MustRegister(
		m.SessionsCreatedTotal,
		m.SessionsEvictedTotal,
		m.SendersConnected,
		m.SweepsTotal,
		m.ImagesUploadedTotal,
		m.ImagesDeliveredTotal,
		m.ImageBytesTotal,
		m.UploadErrorsTotal,
		m.RequestDuration,
		m.RateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if activeSessions != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions",
		}, activeSessions))
	}

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
