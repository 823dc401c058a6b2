package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-auditor/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"KITE_API_KEY", "KITE_ACCESS_TOKEN", "TWELVEDATA_API_KEY",
		"AUDITOR_STORAGE_BACKEND", "AUDITOR_STORAGE_PATH", "AUDITOR_FETCHER", "AUDITOR_METRICS_TEXTFILE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_CreatesTemplateOnFirstRun(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "auditor.toml"))
	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(dir, "auditor.db"), cfg.Storage.Path)
	assert.Equal(t, DefaultHorizons(), cfg.Audit.Horizons)
	assert.Equal(t, 7*24*time.Hour, cfg.Audit.Lookback)
	assert.Equal(t, 5*time.Minute, cfg.Audit.PassTimeout)
	assert.Equal(t, 72*time.Hour, cfg.Weights.Cooldown)
	assert.InDelta(t, -0.10, cfg.Weights.Deltas["critical"], 1e-9)
	assert.Len(t, cfg.Producers, 5)
	assert.Equal(t, "fundamental", cfg.Producers["valuator"].Category)
	assert.Equal(t, filepath.Join(dir, "history"), cfg.History.Dir)
	assert.Equal(t, 5, cfg.Fetcher.BreakerThreshold)
	assert.Equal(t, time.Minute, cfg.Fetcher.BreakerCooldown)
	assert.Equal(t, dir, cfg.Dir())

	// The template written on the first run loads the same way again.
	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Producers, again.Producers)
}

func TestLoad_CustomFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := `
[storage]
backend = "json"

[audit]
lookback = "48h"
fetch_concurrency = 2

[[audit.horizons]]
name = "T+3"
days = 3

[producers.tape_reader]
name = "Tape Reader"
category = "technical"
min_weight = 0.2
max_weight = 0.8
initial_weight = 0.5

[producers.analyst]
name = "Analyst"
category = "fundamental"
min_weight = 0.2
max_weight = 0.8
initial_weight = 0.5

[fetcher]
provider = "twelvedata"
cache = "memory"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auditor.toml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.Storage.Path)
	assert.Equal(t, []HorizonConfig{{Name: "T+3", Days: 3}}, cfg.Audit.Horizons)
	assert.Equal(t, 48*time.Hour, cfg.Audit.Lookback)
	assert.Equal(t, 2, cfg.Audit.FetchConcurrency)
	assert.Equal(t, []string{"analyst", "tape_reader"}, cfg.ProducerIDs())
	assert.Equal(t, "twelvedata", cfg.Fetcher.Provider)
	// Untouched sections keep their defaults.
	assert.InDelta(t, 0.15, cfg.Accuracy.NearBand, 1e-9)
	assert.Equal(t, 3, cfg.Top.MinSamples)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("KITE_API_KEY", "key")
	t.Setenv("KITE_ACCESS_TOKEN", "token")
	t.Setenv("TWELVEDATA_API_KEY", "td")
	t.Setenv("AUDITOR_STORAGE_BACKEND", "json")
	t.Setenv("AUDITOR_STORAGE_PATH", filepath.Join(dir, "elsewhere"))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.Credentials.Kite.APIKey)
	assert.Equal(t, "token", cfg.Credentials.Kite.AccessToken)
	assert.Equal(t, "td", cfg.Credentials.TwelveData.APIKey)
	assert.Equal(t, "json", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(dir, "elsewhere"), cfg.Storage.Path)
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := `
[storage]
backend = "postgres"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auditor.toml"), []byte(content), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[weights]\ncooldown = \"24h\"\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Weights.Cooldown)
	assert.NoError(t, cfg.Validate())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"no horizons", func(c *Config) { c.Audit.Horizons = nil }},
		{"zero day horizon", func(c *Config) { c.Audit.Horizons = []HorizonConfig{{Name: "T+0", Days: 0}} }},
		{"duplicate horizon", func(c *Config) {
			c.Audit.Horizons = []HorizonConfig{{Name: "T+1", Days: 1}, {Name: "T+1", Days: 2}}
		}},
		{"zero concurrency", func(c *Config) { c.Audit.FetchConcurrency = 0 }},
		{"threshold above one", func(c *Config) { c.Audit.NormalThreshold = 1.5 }},
		{"bands out of order", func(c *Config) { c.Accuracy.ExactBand = 0.2 }},
		{"scores increase", func(c *Config) { c.Accuracy.FarScore = 0.9 }},
		{"unknown tier delta", func(c *Config) { c.Weights.Deltas["stellar"] = 0.1 }},
		{"delta at minus one", func(c *Config) { c.Weights.Deltas["critical"] = -1 }},
		{"invalid category", func(c *Config) {
			p := c.Producers["chartist"]
			p.Category = "astrology"
			c.Producers["chartist"] = p
		}},
		{"initial above max", func(c *Config) {
			p := c.Producers["chartist"]
			p.InitialWeight = 0.3
			c.Producers["chartist"] = p
		}},
		{"initial weights do not sum to one", func(c *Config) {
			p := c.Producers["chartist"]
			p.InitialWeight = 0.1
			c.Producers["chartist"] = p
		}},
		{"minimums exceed one", func(c *Config) {
			p := c.Producers["valuator"]
			p.MinWeight, p.InitialWeight, p.MaxWeight = 0.35, 0.35, 0.9
			c.Producers["valuator"] = p
			q := c.Producers["chip_watcher"]
			q.MinWeight = 0.25
			c.Producers["chip_watcher"] = q
			r := c.Producers["whale_hunter"]
			r.MinWeight = 0.20
			c.Producers["whale_hunter"] = r
			s := c.Producers["strategist"]
			s.MinWeight = 0.15
			c.Producers["strategist"] = s
			u := c.Producers["chartist"]
			u.MinWeight = 0.05
			c.Producers["chartist"] = u
			c.Producers["extra"] = ProducerConfig{Category: "macro", MinWeight: 0.1, InitialWeight: 0.1, MaxWeight: 0.1}
		}},
		{"unknown provider", func(c *Config) { c.Fetcher.Provider = "yahoo" }},
		{"static without file", func(c *Config) { c.Fetcher.Provider = "static" }},
		{"unknown cache", func(c *Config) { c.Fetcher.Cache = "redis" }},
		{"negative breaker threshold", func(c *Config) { c.Fetcher.BreakerThreshold = -1 }},
	}

	require.NoError(t, Default(t.TempDir()).Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConfigInvalid)
		})
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/auditor", "auditor.toml"), Path("/etc/auditor"))
	assert.Equal(t, filepath.Join(DefaultConfigDir(), "auditor.toml"), Path(""))
}
