package market

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"

	"alpha-auditor/internal/cache"
	"alpha-auditor/internal/errors"
)

type fakeKite struct {
	instrumentCalls int
	lastToken       int
	lastFrom        time.Time
	candles         []kiteconnect.HistoricalData
	err             error
}

func (f *fakeKite) GetInstruments() (kiteconnect.Instruments, error) {
	f.instrumentCalls++
	return kiteconnect.Instruments{
		{InstrumentToken: 408065, Tradingsymbol: "INFY", Exchange: "NSE"},
		{InstrumentToken: 500209, Tradingsymbol: "INFY", Exchange: "BSE"},
	}, nil
}

func (f *fakeKite) GetHistoricalData(token int, interval string, from, to time.Time, continuous, oi bool) ([]kiteconnect.HistoricalData, error) {
	f.lastToken = token
	f.lastFrom = from
	return f.candles, f.err
}

func candle(d time.Time, close float64) kiteconnect.HistoricalData {
	return kiteconnect.HistoricalData{Date: kitemodels.Time{Time: d}, Close: close}
}

func TestKiteFetchClose(t *testing.T) {
	api := &fakeKite{candles: []kiteconnect.HistoricalData{
		candle(day.AddDate(0, 0, 3), 1530.1),
		candle(day.AddDate(0, 0, 2), 1523.4),
	}}
	k := newKiteFetcher(api, "NSE", zerolog.Nop())

	got, err := k.FetchClose(context.Background(), "INFY", day)
	require.NoError(t, err)
	assert.Equal(t, 1523.4, got)
	assert.Equal(t, 408065, api.lastToken)
	assert.True(t, day.Equal(api.lastFrom))

	_, err = k.FetchClose(context.Background(), "BSE:INFY", day)
	require.NoError(t, err)
	assert.Equal(t, 500209, api.lastToken)
	assert.Equal(t, 1, api.instrumentCalls, "instrument list is loaded once")
}

func TestKiteFetchCloseFailures(t *testing.T) {
	k := newKiteFetcher(&fakeKite{}, "NSE", zerolog.Nop())
	_, err := k.FetchClose(context.Background(), "TCS", day)
	assert.True(t, errors.Is(err, errors.ErrOutcomeUnavailable), "unknown instrument")

	k = newKiteFetcher(&fakeKite{err: fmt.Errorf("TokenException")}, "NSE", zerolog.Nop())
	_, err = k.FetchClose(context.Background(), "INFY", day)
	assert.True(t, errors.Is(err, errors.ErrOutcomeUnavailable))

	k = newKiteFetcher(&fakeKite{}, "NSE", zerolog.Nop())
	_, err = k.FetchClose(context.Background(), "INFY", day)
	assert.True(t, errors.Is(err, errors.ErrOutcomeUnavailable), "no sessions")
}

func TestSplitInstrument(t *testing.T) {
	ex, sym := SplitInstrument("bse:reliance", "NSE")
	assert.Equal(t, "BSE", ex)
	assert.Equal(t, "RELIANCE", sym)

	ex, sym = SplitInstrument("TCS", "nse")
	assert.Equal(t, "NSE", ex)
	assert.Equal(t, "TCS", sym)
}

func TestStaticFetcher(t *testing.T) {
	s := NewStaticFetcher()
	s.Set("X", day, 458.5)

	got, err := s.FetchClose(context.Background(), "X", day)
	require.NoError(t, err)
	assert.Equal(t, 458.5, got)

	_, err = s.FetchClose(context.Background(), "X", day.AddDate(0, 0, 1))
	assert.True(t, errors.Is(err, errors.ErrOutcomeUnavailable))
	assert.Equal(t, 2, s.Calls())
}

func TestLoadStaticCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "closes.csv")
	require.NoError(t, os.WriteFile(path, []byte("instrument,date,close\nX,2026-03-07,458.50\nNSE:TCS, 2026-03-07 ,3890.1\n"), 0644))

	s, err := LoadStaticCSV(path)
	require.NoError(t, err)

	got, err := s.FetchClose(context.Background(), "X", day)
	require.NoError(t, err)
	assert.Equal(t, 458.5, got)
	got, err = s.FetchClose(context.Background(), "NSE:TCS", day)
	require.NoError(t, err)
	assert.Equal(t, 3890.1, got)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("instrument,date,close\nX,07/03/2026,1\n"), 0644))
	_, err = LoadStaticCSV(bad)
	assert.Error(t, err)

	_, err = LoadStaticCSV(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestCachedFetcher(t *testing.T) {
	static := NewStaticFetcher()
	static.Set("X", day, 458.5)
	f := NewCachedFetcher(static, cache.NewMemory(), 0, zerolog.Nop())

	for i := 0; i < 3; i++ {
		got, err := f.FetchClose(context.Background(), "X", day)
		require.NoError(t, err)
		assert.Equal(t, 458.5, got)
	}
	assert.Equal(t, 1, static.Calls())

	for i := 0; i < 2; i++ {
		_, err := f.FetchClose(context.Background(), "Y", day)
		assert.Error(t, err)
	}
	assert.Equal(t, 3, static.Calls(), "failures are not cached")
}
