package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/models"
)

const sqliteBackend = "sqlite"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.NewStoreError(sqliteBackend, "open", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "open", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		if isCorrupt(err) {
			err = fmt.Errorf("%w: %v", errors.ErrCorruptState, err)
		}
		return nil, errors.NewStoreError(sqliteBackend, "init schema", err)
	}

	return store, nil
}

func isCorrupt(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrNotADB || sqlErr.Code == sqlite3.ErrCorrupt
	}
	return false
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Recorded predictions; opinions are stored as a JSON array
	CREATE TABLE IF NOT EXISTS predictions (
		key TEXT PRIMARY KEY,
		instrument TEXT NOT NULL,
		creation_date TEXT NOT NULL,
		entry_value REAL NOT NULL,
		opinions TEXT NOT NULL,
		recorded_at DATETIME NOT NULL
	);

	-- One row per verified (prediction, horizon) pair
	CREATE TABLE IF NOT EXISTS prediction_horizons (
		prediction_key TEXT NOT NULL,
		horizon TEXT NOT NULL,
		realized_value REAL NOT NULL,
		verified_at DATETIME NOT NULL,
		PRIMARY KEY (prediction_key, horizon),
		FOREIGN KEY (prediction_key) REFERENCES predictions(key)
	);

	-- Append-only audit log
	CREATE TABLE IF NOT EXISTS audits (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		prediction_key TEXT NOT NULL,
		horizon TEXT NOT NULL,
		entry_value REAL NOT NULL,
		realized_value REAL NOT NULL,
		accuracy REAL NOT NULL,
		consensus TEXT NOT NULL,
		failure_type TEXT NOT NULL,
		responsible_producer TEXT,
		recommendation TEXT
	);

	-- Single-row weight adjustment state
	CREATE TABLE IF NOT EXISTS adjustment_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_adjustment DATETIME,
		weights TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audits_timestamp ON audits(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audits_prediction ON audits(prediction_key);
	CREATE INDEX IF NOT EXISTS idx_predictions_instrument ON predictions(instrument);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Predictions
// ============================================================================

// SavePrediction inserts a new prediction. Existing keys are rejected.
func (s *SQLiteStore) SavePrediction(ctx context.Context, rec *models.PredictionRecord) error {
	opinions, err := json.Marshal(rec.Opinions)
	if err != nil {
		return errors.NewStoreError(sqliteBackend, "save prediction", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO predictions (key, instrument, creation_date, entry_value, opinions, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Key, rec.Instrument, rec.CreatedOn.Format(models.DateLayout), rec.EntryValue, string(opinions), rec.RecordedAt.UTC())
	if err != nil {
		return errors.NewStoreError(sqliteBackend, "save prediction", fmt.Errorf("%w: %v", errors.ErrDatabaseError, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errors.ErrPredictionExists, "prediction %s", rec.Key)
	}
	return nil
}

// GetPrediction returns a prediction with its verification state.
func (s *SQLiteStore) GetPrediction(ctx context.Context, key string) (*models.PredictionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, instrument, creation_date, entry_value, opinions, recorded_at
		FROM predictions WHERE key = ?
	`, key)

	rec, err := scanPrediction(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrPredictionNotFound, "prediction %s", key)
	}
	if err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "get prediction", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT prediction_key, horizon, realized_value FROM prediction_horizons WHERE prediction_key = ?
	`, key)
	if err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "get prediction", err)
	}
	byKey := map[string]*models.PredictionRecord{key: rec}
	if err := attachHorizons(rows, byKey); err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "get prediction", err)
	}
	return rec, nil
}

// ListPredictions returns all predictions ordered by key.
func (s *SQLiteStore) ListPredictions(ctx context.Context) ([]models.PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, instrument, creation_date, entry_value, opinions, recorded_at
		FROM predictions ORDER BY key ASC
	`)
	if err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "list predictions", err)
	}
	defer rows.Close()

	var list []*models.PredictionRecord
	byKey := make(map[string]*models.PredictionRecord)
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, errors.NewStoreError(sqliteBackend, "list predictions", err)
		}
		list = append(list, rec)
		byKey[rec.Key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "list predictions", err)
	}

	hrows, err := s.db.QueryContext(ctx, `SELECT prediction_key, horizon, realized_value FROM prediction_horizons`)
	if err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "list predictions", err)
	}
	if err := attachHorizons(hrows, byKey); err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "list predictions", err)
	}

	out := make([]models.PredictionRecord, len(list))
	for i, rec := range list {
		out[i] = *rec
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (*models.PredictionRecord, error) {
	var (
		rec          models.PredictionRecord
		creationDate string
		opinionsJSON string
	)
	if err := row.Scan(&rec.Key, &rec.Instrument, &creationDate, &rec.EntryValue, &opinionsJSON, &rec.RecordedAt); err != nil {
		return nil, err
	}

	created, err := time.Parse(models.DateLayout, creationDate)
	if err != nil {
		return nil, fmt.Errorf("%w: prediction %s has bad creation date %q", errors.ErrCorruptState, rec.Key, creationDate)
	}
	rec.CreatedOn = created
	if err := json.Unmarshal([]byte(opinionsJSON), &rec.Opinions); err != nil {
		return nil, fmt.Errorf("%w: prediction %s opinions: %v", errors.ErrCorruptState, rec.Key, err)
	}
	ensureMaps(&rec)
	return &rec, nil
}

func attachHorizons(rows *sql.Rows, byKey map[string]*models.PredictionRecord) error {
	defer rows.Close()
	for rows.Next() {
		var (
			key, horizon string
			realized     float64
		)
		if err := rows.Scan(&key, &horizon, &realized); err != nil {
			return err
		}
		if rec, ok := byKey[key]; ok {
			rec.Verified[horizon] = true
			rec.Realized[horizon] = realized
		}
	}
	return rows.Err()
}

// ============================================================================
// Verification
// ============================================================================

// CommitVerification marks the audit's (prediction, horizon) pair verified and
// appends the audit record in one transaction. It returns false without
// writing anything when the pair was already verified.
func (s *SQLiteStore) CommitVerification(ctx context.Context, audit models.AuditRecord) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.NewStoreError(sqliteBackend, "commit verification", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM predictions WHERE key = ?`, audit.PredictionKey).Scan(&exists)
	if err != nil {
		return false, errors.NewStoreError(sqliteBackend, "commit verification", err)
	}
	if exists == 0 {
		return false, errors.Wrapf(errors.ErrPredictionNotFound, "prediction %s", audit.PredictionKey)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO prediction_horizons (prediction_key, horizon, realized_value, verified_at)
		VALUES (?, ?, ?, ?)
	`, audit.PredictionKey, audit.Horizon, audit.RealizedValue, audit.Timestamp.UTC())
	if err != nil {
		return false, errors.NewStoreError(sqliteBackend, "commit verification", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audits (id, timestamp, prediction_key, horizon, entry_value, realized_value, accuracy, consensus, failure_type, responsible_producer, recommendation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, audit.ID, audit.Timestamp.UTC(), audit.PredictionKey, audit.Horizon, audit.EntryValue, audit.RealizedValue,
		audit.Accuracy, string(audit.Consensus), string(audit.Attribution.FailureType),
		audit.Attribution.ResponsibleProducer, audit.Attribution.Recommendation)
	if err != nil {
		return false, errors.NewStoreError(sqliteBackend, "commit verification", err)
	}

	if err := tx.Commit(); err != nil {
		return false, errors.NewStoreError(sqliteBackend, "commit verification", err)
	}
	return true, nil
}

// ListAudits returns audit records with Timestamp >= since, oldest first.
func (s *SQLiteStore) ListAudits(ctx context.Context, since time.Time) ([]models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, prediction_key, horizon, entry_value, realized_value, accuracy, consensus, failure_type, responsible_producer, recommendation
		FROM audits WHERE timestamp >= ? ORDER BY timestamp ASC, rowid ASC
	`, since.UTC())
	if err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "list audits", err)
	}
	defer rows.Close()

	var audits []models.AuditRecord
	for rows.Next() {
		var (
			a           models.AuditRecord
			consensus   string
			failureType string
			responsible sql.NullString
			recommend   sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.PredictionKey, &a.Horizon, &a.EntryValue, &a.RealizedValue,
			&a.Accuracy, &consensus, &failureType, &responsible, &recommend); err != nil {
			return nil, errors.NewStoreError(sqliteBackend, "list audits", err)
		}
		a.Consensus = models.Signal(consensus)
		a.Attribution = models.Attribution{
			FailureType:         models.FailureType(failureType),
			ResponsibleProducer: responsible.String,
			Recommendation:      recommend.String,
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(sqliteBackend, "list audits", err)
	}
	return audits, nil
}

// ============================================================================
// Adjustment state
// ============================================================================

// GetAdjustmentState returns the persisted adjustment state, zero when none.
func (s *SQLiteStore) GetAdjustmentState(ctx context.Context) (models.AdjustmentState, error) {
	var (
		state   models.AdjustmentState
		last    sql.NullTime
		weights sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT last_adjustment, weights FROM adjustment_state WHERE id = 1`).Scan(&last, &weights)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return state, errors.NewStoreError(sqliteBackend, "get adjustment state", err)
	}

	if last.Valid {
		state.LastAdjustment = last.Time
	}
	if weights.Valid && weights.String != "" {
		if err := json.Unmarshal([]byte(weights.String), &state.Weights); err != nil {
			return state, errors.NewStoreError(sqliteBackend, "get adjustment state",
				fmt.Errorf("%w: weights: %v", errors.ErrCorruptState, err))
		}
	}
	return state, nil
}

// SaveAdjustmentState replaces the adjustment state.
func (s *SQLiteStore) SaveAdjustmentState(ctx context.Context, state models.AdjustmentState) error {
	var weights interface{}
	if len(state.Weights) > 0 {
		data, err := json.Marshal(state.Weights)
		if err != nil {
			return errors.NewStoreError(sqliteBackend, "save adjustment state", err)
		}
		weights = string(data)
	}

	var last interface{}
	if !state.LastAdjustment.IsZero() {
		last = state.LastAdjustment.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjustment_state (id, last_adjustment, weights) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_adjustment = excluded.last_adjustment, weights = excluded.weights
	`, last, weights)
	if err != nil {
		return errors.NewStoreError(sqliteBackend, "save adjustment state", err)
	}
	return nil
}
