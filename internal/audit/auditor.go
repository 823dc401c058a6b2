package audit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/logging"
	"alpha-auditor/internal/market"
	"alpha-auditor/internal/metrics"
	"alpha-auditor/internal/models"
	"alpha-auditor/internal/producers"
	"alpha-auditor/internal/store"
	"alpha-auditor/internal/weights"
)

// AdjustmentJournal records applied weight adjustments.
type AdjustmentJournal interface {
	Append(ctx context.Context, event models.AdjustmentEvent) error
	Recent(n int) ([]models.AdjustmentEvent, error)
}

// TopCriteria are the minimums a producer must clear to be a top performer.
type TopCriteria struct {
	MinOverall     float64
	MinStability   float64
	MinCalibration float64
	MinSamples     int
}

// Options configures an Auditor.
type Options struct {
	Horizons         []models.Horizon
	Lookback         time.Duration
	FetchConcurrency int
	PassTimeout      time.Duration
	Accuracy         AccuracyPolicy
	NormalThreshold  float64
	Weights          weights.Policy
	Top              TopCriteria
}

// DefaultHorizons returns T+1, T+5 and T+20.
func DefaultHorizons() []models.Horizon {
	return []models.Horizon{{Name: "T+1", Days: 1}, {Name: "T+5", Days: 5}, {Name: "T+20", Days: 20}}
}

// DefaultOptions returns the standard audit settings.
func DefaultOptions() Options {
	return Options{
		Horizons:         DefaultHorizons(),
		Lookback:         7 * 24 * time.Hour,
		FetchConcurrency: 4,
		PassTimeout:      5 * time.Minute,
		Accuracy:         DefaultAccuracyPolicy(),
		NormalThreshold:  DefaultNormalThreshold,
		Weights:          weights.DefaultPolicy(),
		Top: TopCriteria{
			MinOverall:     0.70,
			MinStability:   0.60,
			MinCalibration: 0.70,
			MinSamples:     3,
		},
	}
}

// Deps are the collaborators of an Auditor. Journal, Metrics and Clock are
// optional.
type Deps struct {
	Store    store.Store
	Fetcher  market.OutcomeFetcher
	Registry *producers.Registry
	Journal  AdjustmentJournal
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Clock    func() time.Time
}

// Auditor verifies matured predictions and maintains producer weights.
type Auditor struct {
	store    store.Store
	fetcher  market.OutcomeFetcher
	registry *producers.Registry
	journal  AdjustmentJournal
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
	opts     Options

	evaluator  *Evaluator
	attributor *Attributor
	aggregator *Aggregator

	passMu      sync.Mutex
	rebalanceMu sync.Mutex
}

// NewAuditor validates opts and wires the auditor.
func NewAuditor(deps Deps, opts Options) (*Auditor, error) {
	if deps.Store == nil || deps.Fetcher == nil || deps.Registry == nil {
		return nil, fmt.Errorf("auditor requires a store, an outcome fetcher and a producer registry")
	}
	if err := validateHorizons(opts.Horizons); err != nil {
		return nil, err
	}
	if err := weights.ValidateBounds(deps.Registry.IDs(), deps.Registry.Bounds()); err != nil {
		return nil, err
	}
	if opts.FetchConcurrency < 1 {
		opts.FetchConcurrency = 1
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Auditor{
		store:      deps.Store,
		fetcher:    deps.Fetcher,
		registry:   deps.Registry,
		journal:    deps.Journal,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        clock,
		opts:       opts,
		evaluator:  NewEvaluator(opts.Accuracy),
		attributor: NewAttributor(deps.Registry, opts.NormalThreshold),
		aggregator: NewAggregator(deps.Logger),
	}, nil
}

func validateHorizons(horizons []models.Horizon) error {
	if len(horizons) == 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "at least one horizon is required")
	}
	seen := make(map[string]bool, len(horizons))
	for _, h := range horizons {
		if h.Name == "" || h.Days < 1 {
			return errors.Wrapf(errors.ErrConfigInvalid, "horizon %q must have a name and at least one day", h.Name)
		}
		if seen[h.Name] {
			return errors.Wrapf(errors.ErrConfigInvalid, "duplicate horizon %q", h.Name)
		}
		seen[h.Name] = true
	}
	return nil
}

// Horizons returns the configured horizons.
func (a *Auditor) Horizons() []models.Horizon {
	return append([]models.Horizon(nil), a.opts.Horizons...)
}

// ============================================================================
// Recording
// ============================================================================

// RecordPrediction stores a new prediction for instrument created on date
// (zero means today) and returns its key.
func (a *Auditor) RecordPrediction(ctx context.Context, instrument string, opinions []models.Opinion, entry float64, date time.Time) (string, error) {
	instrument = strings.TrimSpace(instrument)
	if instrument == "" {
		return "", errors.NewValidationError("instrument", instrument, "must not be empty", errors.ErrInputValidation)
	}
	if !(entry > 0) || math.IsInf(entry, 0) {
		return "", errors.NewValidationError("entry_value", entry, "must be a positive finite price", errors.ErrInvalidEntryValue)
	}
	if len(opinions) == 0 {
		return "", errors.NewValidationError("opinions", 0, "at least one opinion is required", errors.ErrInvalidOpinion)
	}

	seen := make(map[string]bool, len(opinions))
	for _, o := range opinions {
		if err := o.Validate(); err != nil {
			return "", errors.NewValidationError("opinion", o.ProducerID, err.Error(), errors.ErrInvalidOpinion)
		}
		if _, ok := a.registry.Get(o.ProducerID); !ok {
			return "", errors.NewValidationError("producer_id", o.ProducerID, "not a registered producer", errors.ErrUnknownProducer)
		}
		if seen[o.ProducerID] {
			return "", errors.NewValidationError("producer_id", o.ProducerID, "appears more than once", errors.ErrInvalidOpinion)
		}
		seen[o.ProducerID] = true
	}

	now := a.now()
	if date.IsZero() {
		date = now
	}
	created := models.DateOnly(date)

	rec := &models.PredictionRecord{
		Key:        models.PredictionKey(instrument, created),
		Instrument: instrument,
		CreatedOn:  created,
		EntryValue: entry,
		Opinions:   append([]models.Opinion(nil), opinions...),
		Verified:   make(map[string]bool),
		Realized:   make(map[string]float64),
		RecordedAt: now.UTC(),
	}
	if err := a.store.SavePrediction(ctx, rec); err != nil {
		return "", err
	}

	a.metrics.RecordPrediction()
	plog := logging.WithPrediction(a.logger, rec.Key)
	plog.Info().
		Str("instrument", instrument).
		Float64("entry_value", entry).
		Int("opinions", len(opinions)).
		Str("consensus", string(Consensus(opinions))).
		Msg("Prediction recorded")
	return rec.Key, nil
}

// ============================================================================
// Audit pass
// ============================================================================

type duePair struct {
	rec     models.PredictionRecord
	horizon models.Horizon
	target  time.Time
}

// duePairs lists matured, unverified (prediction, horizon) pairs at now.
func (a *Auditor) duePairs(predictions []models.PredictionRecord, now time.Time) []duePair {
	var due []duePair
	for _, rec := range predictions {
		for _, h := range a.opts.Horizons {
			if rec.State(h, now) == models.StateMaturedUnverified {
				due = append(due, duePair{rec: rec, horizon: h, target: h.TargetDate(rec.CreatedOn)})
			}
		}
	}
	return due
}

// RunAuditPass verifies every matured, unverified pair and returns how many
// were newly verified. Fetch failures and invalid records are logged and left
// for a later pass; only store failures abort the pass.
func (a *Auditor) RunAuditPass(ctx context.Context) (int, error) {
	a.passMu.Lock()
	defer a.passMu.Unlock()

	logger := logging.WithOperation(a.logger, "audit_pass")
	started := a.now()
	wallStart := time.Now()
	defer func() { a.metrics.ObservePass(time.Since(wallStart).Seconds()) }()

	predictions, err := a.store.ListPredictions(ctx)
	if err != nil {
		return 0, err
	}
	due := a.duePairs(predictions, started)
	if len(due) == 0 {
		logger.Info().Int("predictions", len(predictions)).Msg("No matured predictions to verify")
		return 0, nil
	}

	passCtx := ctx
	if a.opts.PassTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, a.opts.PassTimeout)
		defer cancel()
	}

	passCtx = logging.WithLogger(passCtx, logger)

	g, gctx := errgroup.WithContext(passCtx)
	g.SetLimit(a.opts.FetchConcurrency)

	var (
		commitMu sync.Mutex
		verified int
	)
	for _, p := range due {
		g.Go(func() error {
			realized, err := a.fetcher.FetchClose(gctx, p.rec.Instrument, p.target)
			if err != nil {
				if gctx.Err() != nil {
					a.metrics.RecordSkipped(metrics.ReasonTimeout)
					return nil
				}
				a.metrics.RecordFetchFailure(p.horizon.Name)
				flog := logging.WithHorizon(logging.WithPrediction(logger, p.rec.Key), p.horizon.Name)
				flog.Warn().
					Err(err).
					Str("target_date", p.target.Format(models.DateLayout)).
					Msg("Outcome unavailable, will retry next pass")
				return nil
			}

			commitMu.Lock()
			defer commitMu.Unlock()
			if gctx.Err() != nil {
				a.metrics.RecordSkipped(metrics.ReasonTimeout)
				return nil
			}
			ok, err := a.verify(ctx, logger, p, realized)
			if err != nil {
				return err
			}
			if ok {
				verified++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Int("verified", verified).Msg("Audit pass aborted")
		return verified, err
	}
	if err := ctx.Err(); err != nil {
		return verified, err
	}
	if passCtx.Err() != nil {
		logger.Warn().Dur("timeout", a.opts.PassTimeout).Msg("Audit pass timed out, remaining pairs stay unverified")
	}

	logger.Info().
		Int("due", len(due)).
		Int("verified", verified).
		Dur("duration", time.Since(wallStart)).
		Msg("Audit pass completed")
	return verified, nil
}

func (a *Auditor) verify(ctx context.Context, logger zerolog.Logger, p duePair, realized float64) (bool, error) {
	logger = logging.WithHorizon(logging.WithPrediction(logger, p.rec.Key), p.horizon.Name)

	accuracy, consensus, err := a.evaluator.Evaluate(p.rec.EntryValue, realized, p.rec.Opinions)
	if err != nil {
		var verr *errors.ValidationError
		if errors.As(err, &verr) {
			reason := errors.ReasonOf(err)
			logger.Warn().
				Str("category", reason.Category).
				Str("reason", reason.Message).
				Msg("Skipping invalid prediction")
			a.metrics.RecordSkipped(metrics.ReasonInvalidEntry)
			return false, nil
		}
		return false, err
	}

	attribution := a.attributor.Attribute(p.rec.Opinions, accuracy)
	record := models.AuditRecord{
		ID:            uuid.NewString(),
		Timestamp:     a.now().UTC(),
		PredictionKey: p.rec.Key,
		Horizon:       p.horizon.Name,
		EntryValue:    p.rec.EntryValue,
		RealizedValue: realized,
		Accuracy:      accuracy,
		Consensus:     consensus,
		Attribution:   attribution,
	}

	committed, err := a.store.CommitVerification(ctx, record)
	if err != nil {
		return false, err
	}
	if !committed {
		logger.Debug().Msg("Pair already verified")
		return false, nil
	}

	a.metrics.RecordVerified(p.horizon.Name)
	logging.LogVerification(logger, p.rec.Key, p.horizon.Name, p.rec.EntryValue, realized, accuracy, string(attribution.FailureType))
	return true, nil
}

// ============================================================================
// Performance and weights
// ============================================================================

// RollingPerformance aggregates audits from the last lookback window.
func (a *Auditor) RollingPerformance(ctx context.Context, lookback time.Duration) (map[string]models.PerformanceMetric, error) {
	since := a.now().Add(-lookback)

	audits, err := a.store.ListAudits(ctx, since)
	if err != nil {
		return nil, err
	}
	predictions, err := a.store.ListPredictions(ctx)
	if err != nil {
		return nil, err
	}

	perf := a.aggregator.Aggregate(audits, store.PredictionMap(predictions), since)
	a.metrics.SetScores(perf)
	return perf, nil
}

// CurrentWeights returns the persisted weights, or the registry's initial
// weights when nothing has been adjusted yet.
func (a *Auditor) CurrentWeights(ctx context.Context) (models.WeightVector, error) {
	state, err := a.store.GetAdjustmentState(ctx)
	if err != nil {
		return nil, err
	}
	if len(state.Weights) > 0 {
		return state.Weights, nil
	}
	return a.registry.InitialWeights(), nil
}

// Rebalance adjusts current from rolling performance. When the change is
// applied the event is journaled and the new weights and timestamp persisted.
// An empty current uses CurrentWeights.
func (a *Auditor) Rebalance(ctx context.Context, current models.WeightVector) (models.WeightVector, bool, error) {
	a.rebalanceMu.Lock()
	defer a.rebalanceMu.Unlock()

	logger := logging.WithOperation(a.logger, "rebalance")

	if len(current) == 0 {
		var err error
		if current, err = a.CurrentWeights(ctx); err != nil {
			return nil, false, err
		}
	}

	state, err := a.store.GetAdjustmentState(ctx)
	if err != nil {
		return current, false, err
	}
	now := a.now()
	if a.opts.Weights.InCooldown(state.LastAdjustment, now) {
		logger.Info().
			Time("last_adjustment", state.LastAdjustment).
			Dur("cooldown", a.opts.Weights.Cooldown).
			Msg("Weights in cooldown, skipping adjustment")
		return current, false, nil
	}

	perf, err := a.RollingPerformance(ctx, a.opts.Lookback)
	if err != nil {
		return current, false, err
	}

	next, applied := weights.Adjust(weights.Input{
		Current:      current,
		Metrics:      perf,
		Bounds:       a.registry.Bounds(),
		LastAdjusted: state.LastAdjustment,
		Now:          now,
	}, a.opts.Weights)
	if !applied {
		logger.Info().Int("scored_producers", len(perf)).Msg("No material weight change")
		return current, false, nil
	}

	event := models.AdjustmentEvent{
		ID:          uuid.NewString(),
		Timestamp:   now.UTC(),
		OldWeights:  current.Clone(),
		NewWeights:  next.Clone(),
		Performance: perf,
	}
	if a.journal != nil {
		if err := a.journal.Append(ctx, event); err != nil {
			return current, false, errors.Wrap(err, "journaling adjustment")
		}
	}
	if err := a.store.SaveAdjustmentState(ctx, models.AdjustmentState{LastAdjustment: now.UTC(), Weights: next}); err != nil {
		return current, false, err
	}

	for _, id := range next.Producers() {
		logging.LogAdjustment(logging.WithProducer(logger, id), id, current[id], next[id])
	}
	a.metrics.RecordAdjustment(next)
	return next, true, nil
}

// TopPerformers ranks producers clearing the top criteria by overall score.
// n <= 0 returns all of them.
func (a *Auditor) TopPerformers(ctx context.Context, n int) ([]models.RankedProducer, error) {
	perf, err := a.RollingPerformance(ctx, a.opts.Lookback)
	if err != nil {
		return nil, err
	}
	return rankTop(perf, a.opts.Top, n), nil
}

func rankTop(perf map[string]models.PerformanceMetric, c TopCriteria, n int) []models.RankedProducer {
	var candidates []models.PerformanceMetric
	for _, m := range perf {
		if m.OverallScore > c.MinOverall &&
			m.Stability > c.MinStability &&
			m.Calibration > c.MinCalibration &&
			m.SampleCount >= c.MinSamples {
			candidates = append(candidates, m)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].OverallScore != candidates[j].OverallScore {
			return candidates[i].OverallScore > candidates[j].OverallScore
		}
		return candidates[i].ProducerID < candidates[j].ProducerID
	})
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}

	ranked := make([]models.RankedProducer, len(candidates))
	for i, m := range candidates {
		ranked[i] = models.RankedProducer{Rank: i + 1, ProducerID: m.ProducerID, OverallScore: m.OverallScore}
	}
	return ranked
}

// ============================================================================
// History
// ============================================================================

// Summary is an overview of everything the auditor has seen.
type Summary struct {
	Predictions    int                        `json:"predictions"`
	PendingPairs   int                        `json:"pending_pairs"`
	DuePairs       int                        `json:"due_pairs"`
	VerifiedPairs  int                        `json:"verified_pairs"`
	Audits         int                        `json:"audits"`
	MeanAccuracy   float64                    `json:"mean_accuracy"`
	FailureCounts  map[models.FailureType]int `json:"failure_counts"`
	RecentAudits   []models.AuditRecord       `json:"recent_audits"`
	LastAdjustment time.Time                  `json:"last_adjustment,omitempty"`
}

const summaryRecent = 10

// Summary reports counts, overall accuracy and the most recent audits.
func (a *Auditor) Summary(ctx context.Context) (Summary, error) {
	predictions, err := a.store.ListPredictions(ctx)
	if err != nil {
		return Summary{}, err
	}
	audits, err := a.store.ListAudits(ctx, time.Time{})
	if err != nil {
		return Summary{}, err
	}
	state, err := a.store.GetAdjustmentState(ctx)
	if err != nil {
		return Summary{}, err
	}

	now := a.now()
	s := Summary{
		Predictions:    len(predictions),
		Audits:         len(audits),
		FailureCounts:  make(map[models.FailureType]int),
		LastAdjustment: state.LastAdjustment,
	}
	for _, rec := range predictions {
		for _, h := range a.opts.Horizons {
			switch rec.State(h, now) {
			case models.StatePending:
				s.PendingPairs++
			case models.StateMaturedUnverified:
				s.DuePairs++
			case models.StateVerified:
				s.VerifiedPairs++
			}
		}
	}

	total := 0.0
	for _, rec := range audits {
		total += rec.Accuracy
		s.FailureCounts[rec.Attribution.FailureType]++
	}
	if len(audits) > 0 {
		s.MeanAccuracy = total / float64(len(audits))
	}

	recent := audits
	if len(recent) > summaryRecent {
		recent = recent[len(recent)-summaryRecent:]
	}
	s.RecentAudits = recent
	return s, nil
}

// Audits returns audit records with Timestamp >= since.
func (a *Auditor) Audits(ctx context.Context, since time.Time) ([]models.AuditRecord, error) {
	return a.store.ListAudits(ctx, since)
}

// AdjustmentHistory returns up to n recent adjustment events, oldest first.
func (a *Auditor) AdjustmentHistory(n int) ([]models.AdjustmentEvent, error) {
	if a.journal == nil {
		return nil, nil
	}
	return a.journal.Recent(n)
}
