package models

import "time"

// FailureType classifies a low-accuracy outcome.
type FailureType string

const (
	FailureNormal        FailureType = "normal"
	FailureTechnical     FailureType = "technical"
	FailureFundamental   FailureType = "fundamental"
	FailureInstitutional FailureType = "institutional"
	FailureMacro         FailureType = "macro"
)

// Category is a producer's capability class.
type Category = FailureType

// Categories lists the producer categories in a stable order.
var Categories = []Category{FailureTechnical, FailureFundamental, FailureInstitutional, FailureMacro}

// ValidCategory reports whether c is one of the four producer categories.
func ValidCategory(c Category) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Attribution names the probable cause of a miss.
type Attribution struct {
	FailureType         FailureType `json:"failure_type" yaml:"failure_type"`
	ResponsibleProducer string      `json:"responsible_producer,omitempty" yaml:"responsible_producer,omitempty"`
	Recommendation      string      `json:"recommendation" yaml:"recommendation"`
}

// AuditRecord is an immutable verification result.
type AuditRecord struct {
	ID            string      `json:"id" csv:"id" yaml:"id"`
	Timestamp     time.Time   `json:"timestamp" csv:"timestamp" yaml:"timestamp"`
	PredictionKey string      `json:"prediction_key" csv:"prediction_key" yaml:"prediction_key"`
	Horizon       string      `json:"horizon" csv:"horizon" yaml:"horizon"`
	EntryValue    float64     `json:"entry_value" csv:"entry_value" yaml:"entry_value"`
	RealizedValue float64     `json:"realized_value" csv:"realized_value" yaml:"realized_value"`
	Accuracy      float64     `json:"accuracy" csv:"accuracy" yaml:"accuracy"`
	Consensus     Signal      `json:"consensus" csv:"consensus" yaml:"consensus"`
	Attribution   Attribution `json:"attribution" csv:"-" yaml:"attribution"`
}
