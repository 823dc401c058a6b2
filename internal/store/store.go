// Package store persists predictions, verification state, the audit log and
// weight adjustment state.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"alpha-auditor/internal/models"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Store defines the persistence operations the auditor needs.
//
// Every (prediction, horizon) pair is verified at most once: CommitVerification
// re-checks the flag and appends the audit record in one atomic step.
type Store interface {
	// Predictions
	SavePrediction(ctx context.Context, rec *models.PredictionRecord) error
	GetPrediction(ctx context.Context, key string) (*models.PredictionRecord, error)
	ListPredictions(ctx context.Context) ([]models.PredictionRecord, error)

	// Verification and audit log
	CommitVerification(ctx context.Context, audit models.AuditRecord) (bool, error)
	ListAudits(ctx context.Context, since time.Time) ([]models.AuditRecord, error)

	// Adjustment state
	GetAdjustmentState(ctx context.Context) (models.AdjustmentState, error)
	SaveAdjustmentState(ctx context.Context, state models.AdjustmentState) error

	// Lifecycle
	Close() error
}

// Open opens the configured backend. For sqlite path is the database file, for
// json it is the state directory.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(path)
	case BackendJSON:
		return NewJSONStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// PredictionMap indexes predictions by key.
func PredictionMap(list []models.PredictionRecord) map[string]models.PredictionRecord {
	out := make(map[string]models.PredictionRecord, len(list))
	for _, p := range list {
		out[p.Key] = p
	}
	return out
}

func sortPredictions(list []models.PredictionRecord) {
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
}

func sortAudits(list []models.AuditRecord) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
}

func ensureMaps(rec *models.PredictionRecord) {
	if rec.Verified == nil {
		rec.Verified = make(map[string]bool)
	}
	if rec.Realized == nil {
		rec.Realized = make(map[string]float64)
	}
}
