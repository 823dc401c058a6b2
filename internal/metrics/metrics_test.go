package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-auditor/internal/models"
)

func TestCounters(t *testing.T) {
	m := New()

	m.RecordPrediction()
	m.RecordVerified("T+1")
	m.RecordVerified("T+1")
	m.RecordVerified("T+5")
	m.RecordFetchFailure("T+20")
	m.RecordSkipped(ReasonInvalidEntry)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionsRecorded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PairsVerified.WithLabelValues("T+1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PairsVerified.WithLabelValues("T+5")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues("T+20")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues(ReasonFetchFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues(ReasonInvalidEntry)))
}

func TestGauges(t *testing.T) {
	m := New()
	m.RecordAdjustment(models.WeightVector{"valuator": 0.4, "chartist": 0.6})
	m.SetScores(map[string]models.PerformanceMetric{"valuator": {OverallScore: 0.83}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WeightAdjustments))
	assert.Equal(t, 0.6, testutil.ToFloat64(m.ProducerWeight.WithLabelValues("chartist")))
	assert.Equal(t, 0.83, testutil.ToFloat64(m.ProducerScore.WithLabelValues("valuator")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordVerified("T+1")

	path := filepath.Join(t.TempDir(), "auditor.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `auditor_pairs_verified_total{horizon="T+1"} 1`))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordPrediction()
	m.RecordVerified("T+1")
	m.RecordAdjustment(models.WeightVector{"a": 1})
	assert.NoError(t, m.WriteTextfile("/nonexistent/dir/x.prom"))
	assert.Nil(t, m.Registry())
}
