package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricHTTPRequestsTotal   = "auditmgt_http_requests_total"
	MetricHTTPRequestDuration = "auditmgt_http_request_duration_seconds"
	MetricAuditOperations     = "auditmgt_audit_operations_total"
	MetricUploads             = "auditmgt_uploads_total"
	MetricUploadBytes         = "auditmgt_upload_bytes"
	MetricRateLimited         = "auditmgt_rate_limited_total"
	MetricFeedClients         = "auditmgt_feed_clients"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	auditOperations     *prometheus.CounterVec
	uploads             *prometheus.CounterVec
	uploadBytes         prometheus.Histogram
	rateLimited         *prometheus.CounterVec
	feedClients         prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricHTTPRequestsTotal, Help: "HTTP requests by route and status"},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestDuration,
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		auditOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricAuditOperations, Help: "Audit record operations by outcome"},
			[]string{"operation", "outcome"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricUploads, Help: "File uploads by outcome"},
			[]string{"outcome"},
		),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricUploadBytes,
			Help:    "Size of accepted uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricRateLimited, Help: "Requests rejected by rate limiting"},
			[]string{"endpoint"},
		),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricFeedClients,
			Help: "Connected change feed clients",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.auditOperations,
		m.uploads,
		m.uploadBytes,
		m.rateLimited,
		m.feedClients,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Instrument records request counts and latency per route template, so
// /api/audits/AUD-2024-000001 and /api/audits/AUD-2024-000002 share a series.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// IncAuditOperation counts one create/update/delete; outcome is "ok" or an
// error class such as "not_found".
func (m *Metrics) IncAuditOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.auditOperations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveUpload(outcome string, size int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.uploadBytes.Observe(float64(size))
	}
}

func (m *Metrics) IncRateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) AddFeedClients(delta float64) {
	if m == nil {
		return
	}
	m.feedClients.Add(delta)
}
