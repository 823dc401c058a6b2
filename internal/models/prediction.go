package models

import "time"

// DateLayout is the calendar date format used in prediction keys.
const DateLayout = "2006-01-02"

// Horizon is a maturity offset after which a prediction can be checked.
type Horizon struct {
	Name string `mapstructure:"name" json:"name"`
	Days int    `mapstructure:"days" json:"days"`
}

// TargetDate returns the date whose close verifies the prediction at this horizon.
func (h Horizon) TargetDate(createdOn time.Time) time.Time {
	return createdOn.AddDate(0, 0, h.Days)
}

// Matured reports whether the horizon has elapsed at now.
func (h Horizon) Matured(createdOn, now time.Time) bool {
	return !now.Before(h.TargetDate(createdOn))
}

// PredictionRecord is a recommendation awaiting verification.
// Verified and Realized are write-once per horizon.
type PredictionRecord struct {
	Key        string             `json:"key"`
	Instrument string             `json:"instrument"`
	CreatedOn  time.Time          `json:"created_on"`
	EntryValue float64            `json:"entry_value"`
	Opinions   []Opinion          `json:"opinions"`
	Verified   map[string]bool    `json:"verified"`
	Realized   map[string]float64 `json:"realized"`
	RecordedAt time.Time          `json:"recorded_at"`
}

// PredictionKey builds the unique key for an instrument and creation date.
func PredictionKey(instrument string, createdOn time.Time) string {
	return instrument + "_" + createdOn.Format(DateLayout)
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsVerified reports whether the horizon has already been verified.
func (p *PredictionRecord) IsVerified(horizon string) bool {
	return p.Verified[horizon]
}

// HorizonState is the lifecycle position of a (prediction, horizon) pair.
type HorizonState string

const (
	StatePending           HorizonState = "PENDING"
	StateMaturedUnverified HorizonState = "MATURED_UNVERIFIED"
	StateVerified          HorizonState = "VERIFIED"
)

// State returns the pair's state at now.
func (p *PredictionRecord) State(h Horizon, now time.Time) HorizonState {
	switch {
	case p.IsVerified(h.Name):
		return StateVerified
	case h.Matured(p.CreatedOn, now):
		return StateMaturedUnverified
	default:
		return StatePending
	}
}
