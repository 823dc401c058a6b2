package cli

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"alpha-auditor/internal/audit"
	"alpha-auditor/internal/cache"
	"alpha-auditor/internal/config"
	"alpha-auditor/internal/history"
	"alpha-auditor/internal/market"
	"alpha-auditor/internal/metrics"
	"alpha-auditor/internal/models"
	"alpha-auditor/internal/producers"
	"alpha-auditor/internal/store"
	"alpha-auditor/internal/weights"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Registry *producers.Registry

	auditor *audit.Auditor
	closers []func() error
}

// Auditor builds the auditor and its collaborators on first use.
func (a *App) Auditor() (*audit.Auditor, error) {
	if a.auditor != nil {
		return a.auditor, nil
	}
	cfg := a.Config

	registry, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	st, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)
	a.Logger.Debug().Str("backend", cfg.Storage.Backend).Str("path", cfg.Storage.Path).Msg("Store opened")

	fetcher, err := a.newFetcher()
	if err != nil {
		return nil, err
	}

	journal, err := history.NewJournal(cfg.History)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, journal.Close)

	a.auditor, err = audit.NewAuditor(audit.Deps{
		Store:    st,
		Fetcher:  fetcher,
		Registry: registry,
		Journal:  journal,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	}, auditOptions(cfg))
	if err != nil {
		return nil, err
	}
	return a.auditor, nil
}

// Close releases everything opened by Auditor, newest first.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	a.auditor = nil
	return first
}

func (a *App) newFetcher() (market.OutcomeFetcher, error) {
	cfg := a.Config.Fetcher
	creds := a.Config.Credentials

	var fetcher market.OutcomeFetcher
	switch cfg.Provider {
	case "kite":
		if creds.Kite.APIKey == "" || creds.Kite.AccessToken == "" {
			return nil, fmt.Errorf("kite provider needs KITE_API_KEY and KITE_ACCESS_TOKEN")
		}
		fetcher = market.NewKiteFetcher(market.KiteConfig{
			APIKey:          creds.Kite.APIKey,
			AccessToken:     creds.Kite.AccessToken,
			DefaultExchange: cfg.DefaultExchange,
		}, a.Logger)
	case "twelvedata":
		if creds.TwelveData.APIKey == "" {
			return nil, fmt.Errorf("twelvedata provider needs TWELVEDATA_API_KEY")
		}
		fetcher = market.NewTwelveDataFetcher(market.TwelveDataOptions{
			APIKey:         creds.TwelveData.APIKey,
			BaseURL:        cfg.BaseURL,
			RequestTimeout: cfg.Timeout,
			RequestsPerSec: cfg.RequestsPerSec,
			MaxRetries:     cfg.MaxRetries,
		}, a.Logger)
	case "static":
		static, err := market.LoadStaticCSV(cfg.StaticFile)
		if err != nil {
			return nil, err
		}
		fetcher = static
	default:
		return nil, fmt.Errorf("unknown outcome provider %q", cfg.Provider)
	}
	if cfg.BreakerThreshold > 0 {
		fetcher = market.NewBreakerFetcher(fetcher, market.BreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			Cooldown:         cfg.BreakerCooldown,
		}, a.Logger)
	}

	var c cache.Cache
	switch cfg.Cache {
	case "badger":
		b, err := cache.OpenBadger(cache.BadgerConfig{Path: cfg.CacheDir, TTL: cfg.CacheMaxAge, Logger: &a.Logger})
		if err != nil {
			return nil, err
		}
		c = b
	case "memory":
		c = cache.NewMemory()
	default:
		return fetcher, nil
	}
	a.closers = append(a.closers, c.Close)
	return market.NewCachedFetcher(fetcher, c, cfg.CacheMaxAge, a.Logger), nil
}

func newRegistry(cfg *config.Config) (*producers.Registry, error) {
	list := make([]producers.Producer, 0, len(cfg.Producers))
	for _, id := range cfg.ProducerIDs() {
		p := cfg.Producers[id]
		list = append(list, producers.Producer{
			ID:            id,
			Name:          p.Name,
			Category:      models.Category(p.Category),
			Bounds:        models.Bounds{Min: p.MinWeight, Max: p.MaxWeight},
			InitialWeight: p.InitialWeight,
		})
	}
	return producers.NewRegistry(list)
}

func auditOptions(cfg *config.Config) audit.Options {
	horizons := make([]models.Horizon, 0, len(cfg.Audit.Horizons))
	for _, h := range cfg.Audit.Horizons {
		horizons = append(horizons, models.Horizon{Name: h.Name, Days: h.Days})
	}

	policy := weights.DefaultPolicy()
	policy.Cooldown = cfg.Weights.Cooldown
	policy.Materiality = cfg.Weights.Materiality
	for tier, d := range cfg.Weights.Deltas {
		policy.Deltas[models.Tier(tier)] = d
	}

	return audit.Options{
		Horizons:         horizons,
		Lookback:         cfg.Audit.Lookback,
		FetchConcurrency: cfg.Audit.FetchConcurrency,
		PassTimeout:      cfg.Audit.PassTimeout,
		Accuracy: audit.AccuracyPolicy{
			NeutralBand: cfg.Accuracy.NeutralBand,
			ExactBand:   cfg.Accuracy.ExactBand,
			NearBand:    cfg.Accuracy.NearBand,
			ExactScore:  cfg.Accuracy.ExactScore,
			NearScore:   cfg.Accuracy.NearScore,
			FarScore:    cfg.Accuracy.FarScore,
		},
		NormalThreshold: cfg.Audit.NormalThreshold,
		Weights:         policy,
		Top: audit.TopCriteria{
			MinOverall:     cfg.Top.MinOverall,
			MinStability:   cfg.Top.MinStability,
			MinCalibration: cfg.Top.MinCalibration,
			MinSamples:     cfg.Top.MinSamples,
		},
	}
}

// sortedByScore returns metrics ordered by overall score, best first.
func sortedByScore(perf map[string]models.PerformanceMetric) []models.PerformanceMetric {
	out := make([]models.PerformanceMetric, 0, len(perf))
	for _, m := range perf {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallScore != out[j].OverallScore {
			return out[i].OverallScore > out[j].OverallScore
		}
		return out[i].ProducerID < out[j].ProducerID
	})
	return out
}
