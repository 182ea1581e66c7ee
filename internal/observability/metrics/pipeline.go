package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics counts extraction outcomes. Both binaries register it,
// since manual reprocessing and corrections run inside the API process.
type PipelineMetrics struct {
	service string

	samplesTotal        *prometheus.CounterVec
	fallbackTierTotal   *prometheus.CounterVec
	trainingSampleTotal *prometheus.CounterVec
	retrainTotal        *prometheus.CounterVec
	breakerTransitions  *prometheus.CounterVec
}

func newPipelineMetrics(registry *prometheus.Registry, service string) *PipelineMetrics {
	samplesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extraction",
			Subsystem: "pipeline",
			Name:      "samples_total",
			Help:      "Processed samples by final status.",
		},
		[]string{"service", "status"},
	)
	fallbackTierTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extraction",
			Subsystem: "fallback",
			Name:      "tier_total",
			Help:      "Fallback tier attempts by tier and outcome.",
		},
		[]string{"service", "tier", "outcome"},
	)
	trainingSampleTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extraction",
			Subsystem: "training",
			Name:      "samples_total",
			Help:      "Training samples appended to the corpus by source.",
		},
		[]string{"service", "source"},
	)
	retrainTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extraction",
			Subsystem: "training",
			Name:      "retrain_total",
			Help:      "Retraining runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	breakerTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extraction",
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes by operation.",
		},
		[]string{"service", "operation", "from", "to"},
	)

	registry.MustRegister(samplesTotal, fallbackTierTotal, trainingSampleTotal, retrainTotal, breakerTransitions)

	return &PipelineMetrics{
		service:             service,
		samplesTotal:        samplesTotal,
		fallbackTierTotal:   fallbackTierTotal,
		trainingSampleTotal: trainingSampleTotal,
		retrainTotal:        retrainTotal,
		breakerTransitions:  breakerTransitions,
	}
}

func (m *PipelineMetrics) ObserveSampleStatus(status string) {
	if status == "" {
		status = "unknown"
	}
	m.samplesTotal.WithLabelValues(m.service, status).Inc()
}

func (m *PipelineMetrics) ObserveFallbackTier(tier, outcome string) {
	m.fallbackTierTotal.WithLabelValues(m.service, tier, outcome).Inc()
}

func (m *PipelineMetrics) ObserveTrainingSample(source string) {
	m.trainingSampleTotal.WithLabelValues(m.service, source).Inc()
}

func (m *PipelineMetrics) ObserveRetrain(outcome string) {
	m.retrainTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *PipelineMetrics) ObserveBreakerState(operation, from, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, from, to).Inc()
}
