// Package audit verifies matured predictions and rolls the outcomes up into
// per-producer performance.
package audit

import (
	"math"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/models"
)

// AccuracyPolicy holds the accuracy scoring thresholds.
type AccuracyPolicy struct {
	// NeutralBand is the absolute return under which a NEUTRAL call is correct.
	NeutralBand float64 `mapstructure:"neutral_band"`
	// ExactBand and NearBand split correct calls by absolute return.
	ExactBand float64 `mapstructure:"exact_band"`
	NearBand  float64 `mapstructure:"near_band"`
	// Scores awarded to correct calls in each band.
	ExactScore float64 `mapstructure:"exact_score"`
	NearScore  float64 `mapstructure:"near_score"`
	FarScore   float64 `mapstructure:"far_score"`
}

// DefaultAccuracyPolicy returns the standard 5%/15% banding.
func DefaultAccuracyPolicy() AccuracyPolicy {
	return AccuracyPolicy{
		NeutralBand: 0.05,
		ExactBand:   0.05,
		NearBand:    0.15,
		ExactScore:  1.0,
		NearScore:   0.7,
		FarScore:    0.4,
	}
}

// Evaluator scores a prediction against its realized outcome.
type Evaluator struct {
	policy AccuracyPolicy
}

// NewEvaluator creates an evaluator with the given policy.
func NewEvaluator(policy AccuracyPolicy) *Evaluator {
	return &Evaluator{policy: policy}
}

// Consensus returns the majority discrete vote. Ties are NEUTRAL.
func Consensus(opinions []models.Opinion) models.Signal {
	buys, sells := 0, 0
	for _, o := range opinions {
		switch o.Signal {
		case models.SignalBuy:
			buys++
		case models.SignalSell:
			sells++
		}
	}
	switch {
	case buys > sells:
		return models.SignalBuy
	case sells > buys:
		return models.SignalSell
	default:
		return models.SignalNeutral
	}
}

// Evaluate returns the accuracy score and the consensus direction.
func (e *Evaluator) Evaluate(entry, realized float64, opinions []models.Opinion) (float64, models.Signal, error) {
	consensus := Consensus(opinions)

	if !(entry > 0) || math.IsInf(entry, 0) {
		return 0, consensus, errors.NewValidationError("entry_value", entry, "must be a positive finite price", errors.ErrInvalidEntryValue)
	}
	if !(realized > 0) || math.IsInf(realized, 0) {
		return 0, consensus, errors.NewValidationError("realized_value", realized, "must be a positive finite price", errors.ErrInvalidEntryValue)
	}

	ret := (realized - entry) / entry
	magnitude := math.Abs(ret)

	var correct bool
	switch consensus {
	case models.SignalBuy:
		correct = ret > 0
	case models.SignalSell:
		correct = ret < 0
	default:
		correct = magnitude < e.policy.NeutralBand
	}
	if !correct {
		return 0, consensus, nil
	}

	switch {
	case magnitude < e.policy.ExactBand:
		return e.policy.ExactScore, consensus, nil
	case magnitude < e.policy.NearBand:
		return e.policy.NearScore, consensus, nil
	default:
		return e.policy.FarScore, consensus, nil
	}
}
