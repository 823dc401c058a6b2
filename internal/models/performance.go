package models

// Tier is a discrete performance bucket driving weight deltas.
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierNormal    Tier = "normal"
	TierPoor      Tier = "poor"
	TierCritical  Tier = "critical"
)

// TierFor maps an overall score onto a tier. Thresholds are strict.
func TierFor(score float64) Tier {
	switch {
	case score > 0.80:
		return TierExcellent
	case score > 0.60:
		return TierGood
	case score > 0.40:
		return TierNormal
	case score > 0.20:
		return TierPoor
	default:
		return TierCritical
	}
}

// PerformanceMetric is a producer's rolling performance rollup.
// Calibration is stored raw and may fall below zero.
type PerformanceMetric struct {
	ProducerID   string  `json:"producer_id" yaml:"producer_id"`
	MeanAccuracy float64 `json:"mean_accuracy" yaml:"mean_accuracy"`
	StdDev       float64 `json:"std_dev" yaml:"std_dev"`
	Stability    float64 `json:"stability" yaml:"stability"`
	Calibration  float64 `json:"calibration" yaml:"calibration"`
	OverallScore float64 `json:"overall_score" yaml:"overall_score"`
	Tier         Tier    `json:"tier" yaml:"tier"`
	SampleCount  int     `json:"sample_count" yaml:"sample_count"`
}

// RankedProducer is an entry in the top performers list.
type RankedProducer struct {
	Rank         int     `json:"rank"`
	ProducerID   string  `json:"producer_id"`
	OverallScore float64 `json:"overall_score"`
}
