package models

import (
	"math"
	"sort"
	"time"
)

// WeightEpsilon is the tolerance for the sum-to-one invariant.
const WeightEpsilon = 1e-6

// WeightVector maps producer IDs to weights. Treat values as immutable.
type WeightVector map[string]float64

// Clone returns an independent copy.
func (w WeightVector) Clone() WeightVector {
	out := make(WeightVector, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Sum returns the total weight.
func (w WeightVector) Sum() float64 {
	total := 0.0
	for _, id := range w.Producers() {
		total += w[id]
	}
	return total
}

// Normalized reports whether the weights sum to one within WeightEpsilon.
func (w WeightVector) Normalized() bool {
	return math.Abs(w.Sum()-1) <= WeightEpsilon
}

// Producers returns producer IDs in sorted order.
func (w WeightVector) Producers() []string {
	ids := make([]string, 0, len(w))
	for id := range w {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bounds is the permitted weight range for a producer.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp restricts v to the bounds.
func (b Bounds) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Contains reports whether v lies within the bounds, allowing tolerance eps.
func (b Bounds) Contains(v, eps float64) bool {
	return v >= b.Min-eps && v <= b.Max+eps
}

// AdjustmentEvent records an applied weight change.
type AdjustmentEvent struct {
	ID          string                       `json:"id"`
	Timestamp   time.Time                    `json:"timestamp"`
	OldWeights  WeightVector                 `json:"old_weights"`
	NewWeights  WeightVector                 `json:"new_weights"`
	Performance map[string]PerformanceMetric `json:"performance_metrics"`
}

// AdjustmentState is the persisted adjustment metadata.
type AdjustmentState struct {
	LastAdjustment time.Time    `json:"last_adjustment"`
	Weights        WeightVector `json:"weights,omitempty"`
}
