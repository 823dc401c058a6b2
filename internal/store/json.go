package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/models"
)

const jsonBackend = "json"

// File names inside the JSON state directory.
const (
	StateFileName      = "audit_state.json"
	AdjustmentFileName = "adjustment_state.json"
)

type jsonState struct {
	Predictions map[string]models.PredictionRecord `json:"predictions"`
	Audits      []models.AuditRecord               `json:"audits"`
}

// JSONStore implements Store on two JSON documents in a directory. Every
// mutation rewrites the affected document through a temp file and rename.
type JSONStore struct {
	dir   string
	mu    sync.Mutex
	state jsonState
	adj   models.AdjustmentState
}

// NewJSONStore loads the state in dir. Missing files start fresh; unreadable
// ones fail with ErrCorruptState.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewStoreError(jsonBackend, "open", err)
	}

	s := &JSONStore{
		dir:   dir,
		state: jsonState{Predictions: make(map[string]models.PredictionRecord)},
	}
	if err := readJSON(filepath.Join(dir, StateFileName), &s.state); err != nil {
		return nil, errors.NewStoreError(jsonBackend, "load state", err)
	}
	if s.state.Predictions == nil {
		s.state.Predictions = make(map[string]models.PredictionRecord)
	}
	for key, rec := range s.state.Predictions {
		ensureMaps(&rec)
		s.state.Predictions[key] = rec
	}
	if err := readJSON(filepath.Join(dir, AdjustmentFileName), &s.adj); err != nil {
		return nil, errors.NewStoreError(jsonBackend, "load adjustment state", err)
	}
	return s, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrCorruptState, filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *JSONStore) flushState() error {
	return writeJSON(filepath.Join(s.dir, StateFileName), s.state)
}

// Close is a no-op; every mutation is already on disk.
func (s *JSONStore) Close() error {
	return nil
}

// SavePrediction inserts a new prediction. Existing keys are rejected.
func (s *JSONStore) SavePrediction(_ context.Context, rec *models.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Predictions[rec.Key]; ok {
		return errors.Wrapf(errors.ErrPredictionExists, "prediction %s", rec.Key)
	}

	stored := copyPrediction(*rec)
	ensureMaps(&stored)
	s.state.Predictions[rec.Key] = stored
	if err := s.flushState(); err != nil {
		delete(s.state.Predictions, rec.Key)
		return errors.NewStoreError(jsonBackend, "save prediction", err)
	}
	return nil
}

// GetPrediction returns a copy of a prediction.
func (s *JSONStore) GetPrediction(_ context.Context, key string) (*models.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Predictions[key]
	if !ok {
		return nil, errors.Wrapf(errors.ErrPredictionNotFound, "prediction %s", key)
	}
	out := copyPrediction(rec)
	return &out, nil
}

// ListPredictions returns copies of all predictions ordered by key.
func (s *JSONStore) ListPredictions(_ context.Context) ([]models.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.PredictionRecord, 0, len(s.state.Predictions))
	for _, rec := range s.state.Predictions {
		out = append(out, copyPrediction(rec))
	}
	sortPredictions(out)
	return out, nil
}

// CommitVerification marks the pair verified and appends the audit under one
// lock and one file replace.
func (s *JSONStore) CommitVerification(_ context.Context, audit models.AuditRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Predictions[audit.PredictionKey]
	if !ok {
		return false, errors.Wrapf(errors.ErrPredictionNotFound, "prediction %s", audit.PredictionKey)
	}
	if rec.Verified[audit.Horizon] {
		return false, nil
	}

	prev := rec
	next := copyPrediction(rec)
	next.Verified[audit.Horizon] = true
	next.Realized[audit.Horizon] = audit.RealizedValue

	s.state.Predictions[audit.PredictionKey] = next
	s.state.Audits = append(s.state.Audits, audit)
	if err := s.flushState(); err != nil {
		s.state.Predictions[audit.PredictionKey] = prev
		s.state.Audits = s.state.Audits[:len(s.state.Audits)-1]
		return false, errors.NewStoreError(jsonBackend, "commit verification", err)
	}
	return true, nil
}

// ListAudits returns audit records with Timestamp >= since, oldest first.
func (s *JSONStore) ListAudits(_ context.Context, since time.Time) ([]models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.AuditRecord
	for _, a := range s.state.Audits {
		if !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	sortAudits(out)
	return out, nil
}

// GetAdjustmentState returns the persisted adjustment state.
func (s *JSONStore) GetAdjustmentState(_ context.Context) (models.AdjustmentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.AdjustmentState{
		LastAdjustment: s.adj.LastAdjustment,
		Weights:        s.adj.Weights.Clone(),
	}, nil
}

// SaveAdjustmentState replaces the adjustment state.
func (s *JSONStore) SaveAdjustmentState(_ context.Context, state models.AdjustmentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := models.AdjustmentState{LastAdjustment: state.LastAdjustment, Weights: state.Weights.Clone()}
	if err := writeJSON(filepath.Join(s.dir, AdjustmentFileName), next); err != nil {
		return errors.NewStoreError(jsonBackend, "save adjustment state", err)
	}
	s.adj = next
	return nil
}

func copyPrediction(rec models.PredictionRecord) models.PredictionRecord {
	out := rec
	out.Opinions = append([]models.Opinion(nil), rec.Opinions...)
	out.Verified = make(map[string]bool, len(rec.Verified))
	for k, v := range rec.Verified {
		out.Verified[k] = v
	}
	out.Realized = make(map[string]float64, len(rec.Realized))
	for k, v := range rec.Realized {
		out.Realized[k] = v
	}
	return out
}
