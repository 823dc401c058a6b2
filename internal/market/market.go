// Package market fetches realized closing values used to verify predictions.
package market

import (
	"context"
	"sort"
	"strings"
	"time"

	"alpha-auditor/internal/models"
)

// OutcomeFetcher returns the close of an instrument on the first trading day
// on or after date. Failures wrap errors.ErrOutcomeUnavailable.
type OutcomeFetcher interface {
	FetchClose(ctx context.Context, instrument string, date time.Time) (float64, error)
}

// lookahead is how far past the target date a fetcher searches for the next
// trading session.
const lookahead = 7 * 24 * time.Hour

type dailyClose struct {
	Date  time.Time
	Close float64
}

// firstCloseOnOrAfter picks the earliest session at or after date.
func firstCloseOnOrAfter(closes []dailyClose, date time.Time) (float64, bool) {
	target := models.DateOnly(date)
	sort.Slice(closes, func(i, j int) bool { return closes[i].Date.Before(closes[j].Date) })
	for _, c := range closes {
		if !models.DateOnly(c.Date).Before(target) && c.Close > 0 {
			return c.Close, true
		}
	}
	return 0, false
}

// SplitInstrument splits "EXCHANGE:SYMBOL", falling back to defaultExchange.
func SplitInstrument(instrument, defaultExchange string) (exchange, symbol string) {
	if i := strings.IndexByte(instrument, ':'); i > 0 {
		return strings.ToUpper(instrument[:i]), strings.ToUpper(instrument[i+1:])
	}
	return strings.ToUpper(defaultExchange), strings.ToUpper(instrument)
}
