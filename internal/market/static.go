package market

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/models"
)

// StaticFetcher serves closes from a fixed table keyed by instrument and date.
// It is used for replaying recorded outcomes and in tests.
type StaticFetcher struct {
	mu     sync.RWMutex
	closes map[string]float64
	calls  int
}

// NewStaticFetcher creates an empty table.
func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{closes: make(map[string]float64)}
}

func staticKey(instrument string, date time.Time) string {
	return instrument + "@" + date.Format(models.DateLayout)
}

// Set records the close for instrument on date.
func (s *StaticFetcher) Set(instrument string, date time.Time, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes[staticKey(instrument, date)] = price
}

// FetchClose returns the recorded close for the exact date.
func (s *StaticFetcher) FetchClose(ctx context.Context, instrument string, date time.Time) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	v, ok := s.closes[staticKey(instrument, date)]
	if !ok {
		return 0, errors.NewDataError("static", instrument, "no close for "+date.Format(models.DateLayout), errors.ErrOutcomeUnavailable)
	}
	return v, nil
}

// Calls returns how many fetches were attempted.
func (s *StaticFetcher) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// closeRow is one line of a recorded closes file.
type closeRow struct {
	Instrument string  `csv:"instrument"`
	Date       string  `csv:"date"`
	Close      float64 `csv:"close"`
}

// LoadStaticCSV reads an instrument,date,close file into a StaticFetcher.
func LoadStaticCSV(path string) (*StaticFetcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open closes file: %w", err)
	}
	defer f.Close()

	var rows []*closeRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse closes file %s: %w", path, err)
	}

	s := NewStaticFetcher()
	for i, r := range rows {
		date, err := time.Parse(models.DateLayout, strings.TrimSpace(r.Date))
		if err != nil {
			return nil, fmt.Errorf("closes file %s row %d: %w", path, i+2, err)
		}
		if r.Close <= 0 {
			return nil, fmt.Errorf("closes file %s row %d: close must be positive", path, i+2)
		}
		s.Set(strings.TrimSpace(r.Instrument), date, r.Close)
	}
	return s, nil
}
