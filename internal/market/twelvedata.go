package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/logging"
	"alpha-auditor/internal/models"
)

const (
	twelveDataSource  = "twelvedata"
	twelveDataBaseURL = "https://api.twelvedata.com"
)

type twelveResponse struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
	} `json:"meta"`
	Values []struct {
		Datetime string  `json:"datetime"`
		Close    float64 `json:"close,string"`
	} `json:"values"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TwelveDataOptions configures the Twelve Data fetcher.
type TwelveDataOptions struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	RequestsPerSec int
	MaxRetries     int
}

// TwelveDataFetcher reads daily closes from the Twelve Data time_series API.
type TwelveDataFetcher struct {
	apiKey  string
	baseURL string
	client  *Client
	logger  zerolog.Logger
}

// NewTwelveDataFetcher creates a fetcher.
func NewTwelveDataFetcher(opts TwelveDataOptions, logger zerolog.Logger) *TwelveDataFetcher {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = twelveDataBaseURL
	}
	return &TwelveDataFetcher{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		client: NewClient(ClientOptions{
			Timeout:        opts.RequestTimeout,
			RequestsPerSec: opts.RequestsPerSec,
			MaxRetries:     opts.MaxRetries,
		}),
		logger: logger.With().Str("component", "twelvedata_fetcher").Logger(),
	}
}

// FetchClose returns the first daily close on or after date.
func (f *TwelveDataFetcher) FetchClose(ctx context.Context, instrument string, date time.Time) (price float64, err error) {
	start := time.Now()
	defer func() { logging.LogFetch(logging.FromContext(ctx, f.logger), twelveDataSource, instrument, date, time.Since(start), err) }()

	q := url.Values{}
	q.Set("symbol", instrument)
	q.Set("interval", "1day")
	q.Set("start_date", date.Format(models.DateLayout))
	q.Set("end_date", date.Add(lookahead).Format(models.DateLayout))
	q.Set("order", "ASC")
	q.Set("apikey", f.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/time_series?"+q.Encode(), nil)
	if err != nil {
		return 0, errors.NewDataError(twelveDataSource, instrument, "creating request", err)
	}

	resp, err := f.client.DoRequest(ctx, req)
	if err != nil {
		return 0, errors.NewDataError(twelveDataSource, instrument, "request failed",
			fmt.Errorf("%w: %s", errors.ErrOutcomeUnavailable, logging.Redact(err.Error())))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.NewDataError(twelveDataSource, instrument, "reading response body",
			fmt.Errorf("%w: %v", errors.ErrOutcomeUnavailable, err))
	}

	var data twelveResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, errors.NewDataError(twelveDataSource, instrument, "parsing response",
			fmt.Errorf("%w: %v", errors.ErrOutcomeUnavailable, err))
	}
	if data.Status == "error" {
		return 0, errors.NewDataError(twelveDataSource, instrument, data.Message, errors.ErrOutcomeUnavailable)
	}

	closes := make([]dailyClose, 0, len(data.Values))
	for _, v := range data.Values {
		day, err := time.Parse(models.DateLayout, firstN(v.Datetime, len(models.DateLayout)))
		if err != nil {
			continue
		}
		closes = append(closes, dailyClose{Date: day, Close: v.Close})
	}

	value, ok := firstCloseOnOrAfter(closes, date)
	if !ok {
		return 0, errors.NewDataError(twelveDataSource, instrument,
			"no session on or after "+date.Format(models.DateLayout), errors.ErrOutcomeUnavailable)
	}
	return value, nil
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
