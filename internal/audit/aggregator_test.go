package audit

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-auditor/internal/models"
)

var base = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func predictionFor(key string, opinions ...models.Opinion) models.PredictionRecord {
	return models.PredictionRecord{Key: key, Instrument: "X", CreatedOn: base, EntryValue: 100, Opinions: opinions}
}

func auditFor(key string, accuracy float64, at time.Time) models.AuditRecord {
	return models.AuditRecord{ID: key + "-T+1", Timestamp: at, PredictionKey: key, Horizon: "T+1", Accuracy: accuracy}
}

func TestAggregateExcellentProducer(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	predictions := map[string]models.PredictionRecord{
		"X_1": predictionFor("X_1", opinion("valuator", models.SignalBuy, 1.0)),
		"X_2": predictionFor("X_2", opinion("valuator", models.SignalBuy, 1.0)),
		"X_3": predictionFor("X_3", opinion("valuator", models.SignalBuy, 0.7)),
	}
	audits := []models.AuditRecord{
		auditFor("X_1", 1.0, base.Add(time.Hour)),
		auditFor("X_2", 1.0, base.Add(2*time.Hour)),
		auditFor("X_3", 0.7, base.Add(3*time.Hour)),
	}

	metrics := agg.Aggregate(audits, predictions, base)
	require.Contains(t, metrics, "valuator")
	m := metrics["valuator"]

	wantStd := math.Sqrt(0.02)
	wantStability := 1 - wantStd/2
	assert.Equal(t, 3, m.SampleCount)
	assert.InDelta(t, 0.9, m.MeanAccuracy, 1e-9)
	assert.InDelta(t, wantStd, m.StdDev, 1e-9)
	assert.InDelta(t, wantStability, m.Stability, 1e-9)
	assert.InDelta(t, 1.0, m.Calibration, 1e-9)
	assert.InDelta(t, 0.5*0.9+0.3*wantStability+0.2, m.OverallScore, 1e-9)
	assert.Equal(t, models.TierExcellent, m.Tier)
}

func TestAggregateCreditsEveryOpinion(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	predictions := map[string]models.PredictionRecord{
		"X_1": predictionFor("X_1",
			opinion("valuator", models.SignalBuy, 0.9),
			opinion("chartist", models.SignalSell, 0.4),
		),
	}
	metrics := agg.Aggregate([]models.AuditRecord{auditFor("X_1", 0.4, base)}, predictions, base)

	require.Len(t, metrics, 2)
	assert.InDelta(t, 0.4, metrics["valuator"].MeanAccuracy, 1e-9)
	assert.InDelta(t, 0.4, metrics["chartist"].MeanAccuracy, 1e-9)
	assert.InDelta(t, 1-0.25, metrics["valuator"].Calibration, 1e-9)
	assert.InDelta(t, 1.0, metrics["chartist"].Calibration, 1e-9)
	assert.Equal(t, 0.0, metrics["valuator"].StdDev, "single sample has no dispersion")
	assert.Equal(t, 1.0, metrics["valuator"].Stability)
}

func TestAggregateWindowAndUnknownPredictions(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	predictions := map[string]models.PredictionRecord{
		"X_1": predictionFor("X_1", opinion("valuator", models.SignalBuy, 0.9)),
	}
	audits := []models.AuditRecord{
		auditFor("X_1", 0.0, base.Add(-time.Hour)),
		auditFor("X_1", 1.0, base),
		auditFor("gone", 1.0, base.Add(time.Hour)),
	}

	metrics := agg.Aggregate(audits, predictions, base)
	require.Len(t, metrics, 1)
	assert.Equal(t, 1, metrics["valuator"].SampleCount)
	assert.Equal(t, 1.0, metrics["valuator"].MeanAccuracy)
}

func TestAggregateEmpty(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	assert.Empty(t, agg.Aggregate(nil, nil, base))
}

func TestTierBoundariesAreStrict(t *testing.T) {
	assert.Equal(t, models.TierExcellent, models.TierFor(0.81))
	assert.Equal(t, models.TierGood, models.TierFor(0.80))
	assert.Equal(t, models.TierNormal, models.TierFor(0.60))
	assert.Equal(t, models.TierPoor, models.TierFor(0.40))
	assert.Equal(t, models.TierCritical, models.TierFor(0.20))
	assert.Equal(t, models.TierCritical, models.TierFor(0))
}
