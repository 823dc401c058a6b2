package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/logging"
	"alpha-auditor/internal/models"
)

const kiteSource = "kite"

// kiteAPI is the subset of the Kite Connect client used for outcomes.
type kiteAPI interface {
	GetInstruments() (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

// KiteConfig holds Kite Connect credentials.
type KiteConfig struct {
	APIKey          string
	AccessToken     string
	DefaultExchange string
}

// KiteFetcher reads day candles from Kite Connect.
type KiteFetcher struct {
	api             kiteAPI
	defaultExchange string
	logger          zerolog.Logger

	mu     sync.Mutex
	tokens map[string]int
}

// NewKiteFetcher creates a fetcher using an already issued access token.
func NewKiteFetcher(cfg KiteConfig, logger zerolog.Logger) *KiteFetcher {
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	return newKiteFetcher(client, cfg.DefaultExchange, logger)
}

func newKiteFetcher(api kiteAPI, defaultExchange string, logger zerolog.Logger) *KiteFetcher {
	if defaultExchange == "" {
		defaultExchange = "NSE"
	}
	return &KiteFetcher{
		api:             api,
		defaultExchange: defaultExchange,
		logger:          logger.With().Str("component", "kite_fetcher").Logger(),
	}
}

// FetchClose returns the first day close on or after date.
func (k *KiteFetcher) FetchClose(ctx context.Context, instrument string, date time.Time) (price float64, err error) {
	start := time.Now()
	defer func() { logging.LogFetch(logging.FromContext(ctx, k.logger), kiteSource, instrument, date, time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	token, err := k.instrumentToken(instrument)
	if err != nil {
		return 0, err
	}

	from := models.DateOnly(date)
	data, err := k.api.GetHistoricalData(token, "day", from, from.Add(lookahead), false, false)
	if err != nil {
		return 0, errors.NewDataError(kiteSource, instrument, "failed to get historical data",
			fmt.Errorf("%w: %v", errors.ErrOutcomeUnavailable, err))
	}

	closes := make([]dailyClose, len(data))
	for i, d := range data {
		closes[i] = dailyClose{Date: d.Date.Time, Close: d.Close}
	}

	value, ok := firstCloseOnOrAfter(closes, date)
	if !ok {
		return 0, errors.NewDataError(kiteSource, instrument,
			"no session on or after "+date.Format(models.DateLayout), errors.ErrOutcomeUnavailable)
	}
	return value, nil
}

func (k *KiteFetcher) instrumentToken(instrument string) (int, error) {
	exchange, symbol := SplitInstrument(instrument, k.defaultExchange)
	key := exchange + ":" + symbol

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.tokens == nil {
		instruments, err := k.api.GetInstruments()
		if err != nil {
			return 0, errors.NewDataError(kiteSource, instrument, "failed to get instruments",
				fmt.Errorf("%w: %v", errors.ErrOutcomeUnavailable, err))
		}
		tokens := make(map[string]int, len(instruments))
		for _, inst := range instruments {
			tokens[inst.Exchange+":"+inst.Tradingsymbol] = int(inst.InstrumentToken)
		}
		k.tokens = tokens
	}

	token, ok := k.tokens[key]
	if !ok {
		return 0, errors.NewDataError(kiteSource, instrument, "instrument not found", errors.ErrOutcomeUnavailable)
	}
	return token, nil
}
