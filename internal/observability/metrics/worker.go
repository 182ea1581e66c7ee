package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	processBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}
	lagBuckets     = append(append([]float64{}, processBuckets...), 600)
)

// WorkerMetrics tracks upload events consumed by the worker.
type WorkerMetrics struct {
	*PipelineMetrics

	registry *prometheus.Registry

	handled  *prometheus.CounterVec
	elapsed  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	lag      prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	serviceLabel := prometheus.Labels{"service": service}

	return &WorkerMetrics{
		PipelineMetrics: newPipelineMetrics(registry, service),
		registry:        registry,
		handled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "extraction",
			Subsystem:   "worker",
			Name:        "sample_process_total",
			Help:        "Handled upload events by result.",
			ConstLabels: serviceLabel,
		}, []string{"result"}),
		elapsed: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "extraction",
			Subsystem:   "worker",
			Name:        "sample_process_duration_seconds",
			Help:        "Time spent processing one sample, by result.",
			Buckets:     processBuckets,
			ConstLabels: serviceLabel,
		}, []string{"result"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "extraction",
			Subsystem:   "worker",
			Name:        "sample_process_in_flight",
			Help:        "Samples currently being processed.",
			ConstLabels: serviceLabel,
		}),
		lag: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "extraction",
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Time between upload and the start of processing.",
			Buckets:     lagBuckets,
			ConstLabels: serviceLabel,
		}),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartSample() { m.inFlight.Inc() }

func (m *WorkerMetrics) FinishSample(took time.Duration, err error) {
	m.inFlight.Dec()
	result := "success"
	if err != nil {
		result = "error"
	}
	m.handled.WithLabelValues(result).Inc()
	m.elapsed.WithLabelValues(result).Observe(took.Seconds())
}

// ObserveQueueLag ignores negative lag caused by clock skew between hosts.
func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag >= 0 {
		m.lag.Observe(lag.Seconds())
	}
}
