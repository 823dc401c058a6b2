package market

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alpha-auditor/internal/errors"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Failing, rejecting fetches
	CircuitHalfOpen CircuitState = "HALF_OPEN" // Probing whether the source recovered
)

// ErrCircuitOpen is returned while the breaker rejects fetches.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before a probe is allowed.
	Cooldown time.Duration
}

// BreakerFetcher stops calling an outcome source after repeated failures so a
// pass against a dead provider fails fast. Rejected fetches surface as
// ErrOutcomeUnavailable and are retried on a later pass.
type BreakerFetcher struct {
	next   OutcomeFetcher
	config BreakerConfig
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
	rejected int64
}

// NewBreakerFetcher wraps next with a circuit breaker.
func NewBreakerFetcher(next OutcomeFetcher, cfg BreakerConfig, logger zerolog.Logger) *BreakerFetcher {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	return &BreakerFetcher{
		next:   next,
		config: cfg,
		logger: logger.With().Str("component", "fetch_breaker").Logger(),
		now:    time.Now,
		state:  CircuitClosed,
	}
}

// FetchClose delegates to the wrapped source unless the breaker is open.
func (b *BreakerFetcher) FetchClose(ctx context.Context, instrument string, date time.Time) (float64, error) {
	if err := b.allow(); err != nil {
		return 0, errors.NewDataError("breaker", instrument, "source unavailable",
			fmt.Errorf("%w: %v", errors.ErrOutcomeUnavailable, err))
	}

	price, err := b.next.FetchClose(ctx, instrument, date)
	switch {
	case err == nil:
		b.recordSuccess()
	case ctx.Err() != nil:
		// Cancellation says nothing about the source.
		b.release()
	default:
		b.recordFailure()
	}
	return price, err
}

func (b *BreakerFetcher) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return ErrCircuitOpen
		}
		b.transitionTo(CircuitHalfOpen)
		b.probing = true
		return nil
	case CircuitHalfOpen:
		// One probe at a time.
		if b.probing {
			b.rejected++
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *BreakerFetcher) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.probing = false
	}
}

func (b *BreakerFetcher) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitHalfOpen {
		b.transitionTo(CircuitClosed)
		b.logger.Info().Msg("Outcome source recovered, circuit closed")
		return
	}
	b.failures = 0
}

func (b *BreakerFetcher) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(CircuitOpen)
			b.logger.Warn().
				Int("failures", b.config.FailureThreshold).
				Dur("cooldown", b.config.Cooldown).
				Msg("Outcome source failing, circuit opened")
		}
	case CircuitHalfOpen:
		b.transitionTo(CircuitOpen)
	}
}

func (b *BreakerFetcher) transitionTo(state CircuitState) {
	b.state = state
	b.failures = 0
	b.probing = false
	if state == CircuitOpen {
		b.openedAt = b.now()
	}
}

// State returns the current circuit state.
func (b *BreakerFetcher) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejected returns how many fetches were refused while open.
func (b *BreakerFetcher) Rejected() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}
