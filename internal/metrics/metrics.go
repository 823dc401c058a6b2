// Package metrics exposes audit counters and gauges on a private Prometheus
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"alpha-auditor/internal/models"
)

const metricsNamespace = "auditor"

// Skip reasons.
const (
	ReasonInvalidEntry = "invalid_entry"
	ReasonFetchFailed  = "fetch_failed"
	ReasonTimeout      = "timeout"
)

// Metrics holds the auditor's collectors.
type Metrics struct {
	registry *prometheus.Registry

	PredictionsRecorded prometheus.Counter
	PairsVerified       *prometheus.CounterVec
	FetchFailures       *prometheus.CounterVec
	RecordsSkipped      *prometheus.CounterVec
	WeightAdjustments   prometheus.Counter
	PassDuration        prometheus.Histogram
	ProducerWeight      *prometheus.GaugeVec
	ProducerScore       *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PredictionsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "predictions_recorded_total",
			Help:      "Predictions accepted for later verification",
		}),
		PairsVerified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pairs_verified_total",
			Help:      "Prediction and horizon pairs verified, by horizon",
		}, []string{"horizon"}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_failures_total",
			Help:      "Outcome fetch failures, by horizon",
		}, []string{"horizon"}),
		RecordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_skipped_total",
			Help:      "Matured pairs left unverified during a pass, by reason",
		}, []string{"reason"}),
		WeightAdjustments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "weight_adjustments_total",
			Help:      "Applied weight adjustments",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "audit_pass_duration_seconds",
			Help:      "Wall time of an audit pass",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ProducerWeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "producer_weight",
			Help:      "Current ensemble weight per producer",
		}, []string{"producer"}),
		ProducerScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "producer_overall_score",
			Help:      "Rolling overall score per producer",
		}, []string{"producer"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordPrediction() {
	if m == nil {
		return
	}
	m.PredictionsRecorded.Inc()
}

func (m *Metrics) RecordVerified(horizon string) {
	if m == nil {
		return
	}
	m.PairsVerified.WithLabelValues(horizon).Inc()
}

func (m *Metrics) RecordFetchFailure(horizon string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(horizon).Inc()
	m.RecordsSkipped.WithLabelValues(ReasonFetchFailed).Inc()
}

func (m *Metrics) RecordSkipped(reason string) {
	if m == nil {
		return
	}
	m.RecordsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObservePass(seconds float64) {
	if m == nil {
		return
	}
	m.PassDuration.Observe(seconds)
}

// RecordAdjustment counts an applied adjustment and publishes the new weights.
func (m *Metrics) RecordAdjustment(weights models.WeightVector) {
	if m == nil {
		return
	}
	m.WeightAdjustments.Inc()
	m.SetWeights(weights)
}

// SetWeights publishes the weight vector.
func (m *Metrics) SetWeights(weights models.WeightVector) {
	if m == nil {
		return
	}
	for id, w := range weights {
		m.ProducerWeight.WithLabelValues(id).Set(w)
	}
}

// SetScores publishes overall scores.
func (m *Metrics) SetScores(perf map[string]models.PerformanceMetric) {
	if m == nil {
		return
	}
	for id, p := range perf {
		m.ProducerScore.WithLabelValues(id).Set(p.OverallScore)
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
