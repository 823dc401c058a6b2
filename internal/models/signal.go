// Package models defines the domain types shared by the auditor packages.
package models

import (
	"fmt"
	"strings"
)

// Signal is a producer's discrete directional vote.
type Signal string

const (
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalNeutral Signal = "NEUTRAL"
)

// ParseSignal parses a signal name case-insensitively.
func ParseSignal(s string) (Signal, error) {
	switch Signal(strings.ToUpper(strings.TrimSpace(s))) {
	case SignalBuy:
		return SignalBuy, nil
	case SignalSell:
		return SignalSell, nil
	case SignalNeutral:
		return SignalNeutral, nil
	}
	return "", fmt.Errorf("unknown signal %q (want BUY, SELL or NEUTRAL)", s)
}

// Opinion is one producer's contribution to a prediction.
type Opinion struct {
	ProducerID string  `json:"producer_id" csv:"producer_id" yaml:"producer_id"`
	Signal     Signal  `json:"signal" csv:"signal" yaml:"signal"`
	Confidence float64 `json:"confidence" csv:"confidence" yaml:"confidence"`
	Rationale  string  `json:"rationale,omitempty" csv:"rationale" yaml:"rationale,omitempty"`
}

// Validate checks the opinion fields.
func (o Opinion) Validate() error {
	if o.ProducerID == "" {
		return fmt.Errorf("opinion has empty producer id")
	}
	if _, err := ParseSignal(string(o.Signal)); err != nil {
		return err
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence %.3f for %s outside [0,1]", o.Confidence, o.ProducerID)
	}
	return nil
}
