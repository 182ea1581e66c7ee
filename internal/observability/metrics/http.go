package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics instruments the API server. It owns its registry so the
// API and the worker expose disjoint series.
type HTTPServerMetrics struct {
	*PipelineMetrics

	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	uploadBytes prometheus.Histogram
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	serviceLabel := prometheus.Labels{"service": service}

	return &HTTPServerMetrics{
		PipelineMetrics: newPipelineMetrics(registry, service),
		registry:        registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "extraction",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"service", "method", "path", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "extraction",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method", "path"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "extraction",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Requests currently being served.",
			ConstLabels: serviceLabel,
		}),
		uploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "extraction",
			Subsystem:   "ingest",
			Name:        "upload_bytes",
			Help:        "Size of accepted sample uploads.",
			Buckets:     prometheus.ExponentialBuckets(16<<10, 4, 8),
			ConstLabels: serviceLabel,
		}),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		m.inFlight.Inc()
		defer m.inFlight.Dec()
		next.ServeHTTP(sw, r)

		path := normalizePath(r.URL.Path)
		m.requests.WithLabelValues(service, r.Method, path, strconv.Itoa(sw.code)).Inc()
		m.latency.WithLabelValues(service, r.Method, path).Observe(time.Since(started).Seconds())
	})
}

// normalizePath collapses ids so label cardinality stays bounded.
func normalizePath(path string) string {
	for _, prefix := range []struct{ path, label string }{
		{"/v1/samples/", "/v1/samples/{sample_id}"},
		{"/v1/entries/", "/v1/entries/{entry_id}"},
	} {
		rest, ok := strings.CutPrefix(path, prefix.path)
		if !ok || rest == "" {
			continue
		}
		if _, tail, found := strings.Cut(rest, "/"); found {
			return prefix.label + "/" + tail
		}
		return prefix.label
	}
	return path
}

func (m *HTTPServerMetrics) RecordUpload(size int64) {
	if size >= 0 {
		m.uploadBytes.Observe(float64(size))
	}
}

// statusWriter captures the response code. Unwrap lets
// http.ResponseController reach Flush and Hijack on the real writer.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
