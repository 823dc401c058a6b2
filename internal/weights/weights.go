// Package weights converts performance tiers into bounded, renormalized
// producer weights.
package weights

import (
	"fmt"
	"math"
	"time"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/models"
)

// Policy holds the adjustment parameters.
type Policy struct {
	// Deltas is the relative change applied per tier.
	Deltas map[models.Tier]float64
	// Materiality is the minimum absolute change that counts as an adjustment.
	Materiality float64
	// Cooldown is the minimum time between applied adjustments.
	Cooldown time.Duration
}

// DefaultPolicy returns the standard tier deltas, 0.01 materiality and a
// three day cooldown.
func DefaultPolicy() Policy {
	return Policy{
		Deltas: map[models.Tier]float64{
			models.TierExcellent: 0.04,
			models.TierGood:      0.02,
			models.TierNormal:    0,
			models.TierPoor:      -0.05,
			models.TierCritical:  -0.10,
		},
		Materiality: 0.01,
		Cooldown:    72 * time.Hour,
	}
}

// Input is everything one adjustment reads.
type Input struct {
	Current      models.WeightVector
	Metrics      map[string]models.PerformanceMetric
	Bounds       map[string]models.Bounds
	LastAdjusted time.Time
	Now          time.Time
}

// InCooldown reports whether an adjustment at now is blocked by the cooldown.
func (p Policy) InCooldown(lastAdjusted, now time.Time) bool {
	if lastAdjusted.IsZero() {
		return false
	}
	return now.Sub(lastAdjusted) < p.Cooldown
}

// Adjust returns the new weight vector and whether it differs materially from
// the current one. When nothing is applied the current vector is returned
// unchanged. The cooldown gate is checked before anything else.
func Adjust(in Input, p Policy) (models.WeightVector, bool) {
	if p.InCooldown(in.LastAdjusted, in.Now) {
		return in.Current, false
	}
	if len(in.Metrics) == 0 || len(in.Current) == 0 {
		return in.Current, false
	}

	boundsOf := func(id string) models.Bounds {
		if b, ok := in.Bounds[id]; ok {
			return b
		}
		return models.Bounds{Min: 0, Max: 1}
	}

	scaled := make(models.WeightVector, len(in.Current))
	for id, w := range in.Current {
		multiplier := 1.0
		if m, ok := in.Metrics[id]; ok {
			multiplier = 1 + p.Deltas[m.Tier]
		}
		scaled[id] = boundsOf(id).Clamp(w * multiplier)
	}

	next := Project(scaled, boundsOf)

	applied := false
	for id, old := range in.Current {
		if math.Abs(next[id]-old) > p.Materiality {
			applied = true
			break
		}
	}
	if !applied {
		return in.Current, false
	}
	return next, true
}

// Project renormalizes w to sum to one while keeping every weight inside its
// bounds. Weights that would leave their bounds are pinned at the violated
// bound and the remaining mass is spread over the others. Both invariants hold
// whenever the bounds bracket one (see ValidateBounds).
func Project(w models.WeightVector, boundsOf func(id string) models.Bounds) models.WeightVector {
	out := make(models.WeightVector, len(w))
	for id, v := range w {
		out[id] = boundsOf(id).Clamp(v)
	}

	ids := out.Producers()
	pinned := make(map[string]bool, len(ids))

	for iter := 0; iter <= len(ids); iter++ {
		var freeIDs []string
		freeMass, pinnedMass := 0.0, 0.0
		for _, id := range ids {
			if pinned[id] {
				pinnedMass += out[id]
				continue
			}
			freeIDs = append(freeIDs, id)
			freeMass += out[id]
		}
		if len(freeIDs) == 0 {
			break
		}

		target := 1 - pinnedMass
		changed := false
		for _, id := range freeIDs {
			var v float64
			if freeMass > 0 {
				v = out[id] * target / freeMass
			} else {
				v = target / float64(len(freeIDs))
			}
			b := boundsOf(id)
			switch {
			case v > b.Max:
				v = b.Max
				pinned[id] = true
				changed = true
			case v < b.Min:
				v = b.Min
				pinned[id] = true
				changed = true
			}
			out[id] = v
		}
		if !changed {
			break
		}
	}
	return out
}

// ValidateBounds checks that every bound is well formed and that the bounds of
// the given producers can jointly hold a vector summing to one.
func ValidateBounds(producers []string, bounds map[string]models.Bounds) error {
	sumMin, sumMax := 0.0, 0.0
	for _, id := range producers {
		b, ok := bounds[id]
		if !ok {
			b = models.Bounds{Min: 0, Max: 1}
		}
		if b.Min < 0 || b.Max > 1 || b.Min > b.Max {
			return errors.Wrapf(errors.ErrConfigInvalid, "producer %s bounds [%.3f, %.3f] must satisfy 0 <= min <= max <= 1", id, b.Min, b.Max)
		}
		sumMin += b.Min
		sumMax += b.Max
	}
	if sumMin > 1+models.WeightEpsilon || sumMax < 1-models.WeightEpsilon {
		return errors.Wrap(errors.ErrConfigInvalid,
			fmt.Sprintf("bounds cannot sum to 1 (sum of minimums %.3f, sum of maximums %.3f)", sumMin, sumMax))
	}
	return nil
}
