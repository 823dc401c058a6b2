package market

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"alpha-auditor/internal/cache"
	"alpha-auditor/internal/models"
)

// CachedFetcher serves closes from a cache before delegating.
// Only successful fetches are cached.
type CachedFetcher struct {
	next   OutcomeFetcher
	cache  cache.Cache
	maxAge time.Duration
	logger zerolog.Logger
}

// NewCachedFetcher wraps next with c. maxAge <= 0 keeps entries forever.
func NewCachedFetcher(next OutcomeFetcher, c cache.Cache, maxAge time.Duration, logger zerolog.Logger) *CachedFetcher {
	return &CachedFetcher{next: next, cache: c, maxAge: maxAge, logger: logger}
}

// CacheKey is the cache key for a close.
func CacheKey(instrument string, date time.Time) string {
	return "close:" + instrument + ":" + date.Format(models.DateLayout)
}

// FetchClose returns a cached close or fetches and caches it.
func (f *CachedFetcher) FetchClose(ctx context.Context, instrument string, date time.Time) (float64, error) {
	key := CacheKey(instrument, date)
	if data, ok := f.cache.Get(key, f.maxAge); ok {
		var v float64
		if err := json.Unmarshal(data, &v); err == nil && v > 0 {
			return v, nil
		}
	}

	v, err := f.next.FetchClose(ctx, instrument, date)
	if err != nil {
		return 0, err
	}

	data, _ := json.Marshal(v)
	if err := f.cache.Put(key, data); err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache close")
	}
	return v, nil
}
