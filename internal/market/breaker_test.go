package market

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-auditor/internal/errors"
)

type flakyFetcher struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *flakyFetcher) FetchClose(ctx context.Context, instrument string, date time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 100, nil
}

func newTestBreaker(next OutcomeFetcher, now *time.Time) *BreakerFetcher {
	b := NewBreakerFetcher(next, BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute}, zerolog.Nop())
	b.now = func() time.Time { return *now }
	return b
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	source := &flakyFetcher{err: stderrors.New("connection refused")}
	b := newTestBreaker(source, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.FetchClose(ctx, "X", day)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, b.State())

	_, err := b.FetchClose(ctx, "X", day)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOutcomeUnavailable))
	assert.Equal(t, errors.CategoryFetch, errors.ReasonOf(err).Category)
	assert.Equal(t, 3, source.calls, "open circuit does not call the source")
	assert.Equal(t, int64(1), b.Rejected())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	source := &flakyFetcher{err: stderrors.New("timeout")}
	b := newTestBreaker(source, &now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = b.FetchClose(ctx, "X", day)
	}
	source.err = nil
	_, err := b.FetchClose(ctx, "X", day)
	require.NoError(t, err)

	source.err = stderrors.New("timeout")
	for i := 0; i < 2; i++ {
		_, _ = b.FetchClose(ctx, "X", day)
	}
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	source := &flakyFetcher{err: stderrors.New("503")}
	b := newTestBreaker(source, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = b.FetchClose(ctx, "X", day)
	}
	require.Equal(t, CircuitOpen, b.State())

	// Failed probe re-opens.
	now = now.Add(2 * time.Minute)
	_, err := b.FetchClose(ctx, "X", day)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, b.State())
	assert.Equal(t, 4, source.calls)

	_, err = b.FetchClose(ctx, "X", day)
	require.Error(t, err)
	assert.Equal(t, 4, source.calls)

	// Successful probe closes.
	now = now.Add(2 * time.Minute)
	source.err = nil
	got, err := b.FetchClose(ctx, "X", day)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := &flakyFetcher{err: context.Canceled}
	b := newTestBreaker(source, &now)

	for i := 0; i < 5; i++ {
		_, _ = b.FetchClose(ctx, "X", day)
	}
	assert.Equal(t, CircuitClosed, b.State())
}
