package audit

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"alpha-auditor/internal/models"
)

// Overall score weights.
const (
	accuracyWeight    = 0.5
	stabilityWeight   = 0.3
	calibrationWeight = 0.2
)

// Aggregator rolls audit records up into per-producer performance.
type Aggregator struct {
	logger zerolog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(logger zerolog.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

type producerSamples struct {
	accuracies  []float64
	confidences []float64
}

// Aggregate computes metrics from audits with Timestamp >= since. Each producer
// that spoke on an audited prediction is credited with that audit's accuracy
// and its own stated confidence. Producers without samples are omitted.
func (a *Aggregator) Aggregate(audits []models.AuditRecord, predictions map[string]models.PredictionRecord, since time.Time) map[string]models.PerformanceMetric {
	samples := make(map[string]*producerSamples)

	for _, rec := range audits {
		if rec.Timestamp.Before(since) {
			continue
		}
		pred, ok := predictions[rec.PredictionKey]
		if !ok {
			a.logger.Warn().
				Str("prediction", rec.PredictionKey).
				Str("audit", rec.ID).
				Msg("Audit references unknown prediction, skipping")
			continue
		}
		for _, o := range pred.Opinions {
			s, ok := samples[o.ProducerID]
			if !ok {
				s = &producerSamples{}
				samples[o.ProducerID] = s
			}
			s.accuracies = append(s.accuracies, rec.Accuracy)
			s.confidences = append(s.confidences, o.Confidence)
		}
	}

	result := make(map[string]models.PerformanceMetric, len(samples))
	for id, s := range samples {
		if len(s.accuracies) == 0 {
			continue
		}
		result[id] = computeMetric(id, s)
	}
	return result
}

func computeMetric(id string, s *producerSamples) models.PerformanceMetric {
	n := float64(len(s.accuracies))

	mean := 0.0
	for _, v := range s.accuracies {
		mean += v
	}
	mean /= n

	std := 0.0
	if len(s.accuracies) > 1 {
		for _, v := range s.accuracies {
			std += (v - mean) * (v - mean)
		}
		std = math.Sqrt(std / n)
	}

	stability := clamp01(1 - std/2)

	brier := 0.0
	for i, acc := range s.accuracies {
		d := s.confidences[i] - acc
		brier += d * d
	}
	calibration := 1 - brier/n

	overall := accuracyWeight*mean + stabilityWeight*stability + calibrationWeight*clamp01(calibration)

	return models.PerformanceMetric{
		ProducerID:   id,
		MeanAccuracy: mean,
		StdDev:       std,
		Stability:    stability,
		Calibration:  calibration,
		OverallScore: overall,
		Tier:         models.TierFor(overall),
		SampleCount:  len(s.accuracies),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
