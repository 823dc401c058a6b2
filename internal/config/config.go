// Package config provides configuration management for the auditor.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/history"
	"alpha-auditor/internal/logging"
)

// File names inside the config directory.
const (
	ConfigFileName      = "auditor"
	CredentialsFileName = "credentials"
)

// Config holds all application configuration.
type Config struct {
	Storage     StorageConfig             `mapstructure:"storage" yaml:"storage"`
	Audit       AuditConfig               `mapstructure:"audit" yaml:"audit"`
	Accuracy    AccuracyConfig            `mapstructure:"accuracy" yaml:"accuracy"`
	Top         TopConfig                 `mapstructure:"top" yaml:"top"`
	Weights     WeightsConfig             `mapstructure:"weights" yaml:"weights"`
	Producers   map[string]ProducerConfig `mapstructure:"producers" yaml:"producers"`
	Fetcher     FetcherConfig             `mapstructure:"fetcher" yaml:"fetcher"`
	History     history.Config            `mapstructure:"history" yaml:"history"`
	Logging     logging.LogConfig         `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig             `mapstructure:"metrics" yaml:"metrics"`
	Credentials Credentials               `mapstructure:"-" yaml:"-" json:"-"` // Loaded separately

	dir string
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // sqlite, json
	Path    string `mapstructure:"path" yaml:"path"`
}

// HorizonConfig is one verification horizon.
type HorizonConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Days int    `mapstructure:"days" yaml:"days"`
}

// AuditConfig holds audit pass settings.
type AuditConfig struct {
	Horizons         []HorizonConfig `mapstructure:"horizons" yaml:"horizons"`
	Lookback         time.Duration   `mapstructure:"lookback" yaml:"lookback"`
	ReportLookback   time.Duration   `mapstructure:"report_lookback" yaml:"report_lookback"`
	FetchConcurrency int             `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
	PassTimeout      time.Duration   `mapstructure:"pass_timeout" yaml:"pass_timeout"`
	NormalThreshold  float64         `mapstructure:"normal_threshold" yaml:"normal_threshold"`
}

// AccuracyConfig holds accuracy bands and scores.
type AccuracyConfig struct {
	NeutralBand float64 `mapstructure:"neutral_band" yaml:"neutral_band"`
	ExactBand   float64 `mapstructure:"exact_band" yaml:"exact_band"`
	NearBand    float64 `mapstructure:"near_band" yaml:"near_band"`
	ExactScore  float64 `mapstructure:"exact_score" yaml:"exact_score"`
	NearScore   float64 `mapstructure:"near_score" yaml:"near_score"`
	FarScore    float64 `mapstructure:"far_score" yaml:"far_score"`
}

// TopConfig holds the top performer minimums.
type TopConfig struct {
	MinOverall     float64 `mapstructure:"min_overall" yaml:"min_overall"`
	MinStability   float64 `mapstructure:"min_stability" yaml:"min_stability"`
	MinCalibration float64 `mapstructure:"min_calibration" yaml:"min_calibration"`
	MinSamples     int     `mapstructure:"min_samples" yaml:"min_samples"`
}

// WeightsConfig holds weight adjustment settings.
type WeightsConfig struct {
	Cooldown    time.Duration      `mapstructure:"cooldown" yaml:"cooldown"`
	Materiality float64            `mapstructure:"materiality" yaml:"materiality"`
	Deltas      map[string]float64 `mapstructure:"deltas" yaml:"deltas"`
}

// ProducerConfig describes one producer.
type ProducerConfig struct {
	Name          string  `mapstructure:"name" yaml:"name"`
	Category      string  `mapstructure:"category" yaml:"category"`
	MinWeight     float64 `mapstructure:"min_weight" yaml:"min_weight"`
	MaxWeight     float64 `mapstructure:"max_weight" yaml:"max_weight"`
	InitialWeight float64 `mapstructure:"initial_weight" yaml:"initial_weight"`
}

// FetcherConfig selects and tunes the outcome source.
type FetcherConfig struct {
	Provider         string        `mapstructure:"provider" yaml:"provider"` // kite, twelvedata, static
	DefaultExchange  string        `mapstructure:"default_exchange" yaml:"default_exchange"`
	RequestsPerSec   int           `mapstructure:"requests_per_sec" yaml:"requests_per_sec"`
	MaxRetries       int           `mapstructure:"max_retries" yaml:"max_retries"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url"`
	StaticFile       string        `mapstructure:"static_file" yaml:"static_file"`
	Cache            string        `mapstructure:"cache" yaml:"cache"` // badger, memory, none
	CacheDir         string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	CacheMaxAge      time.Duration `mapstructure:"cache_max_age" yaml:"cache_max_age"`
	BreakerThreshold int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold"` // 0 disables
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// MetricsConfig holds Prometheus textfile output settings.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite       KiteCredentials       `mapstructure:"kite"`
	TwelveData TwelveDataCredentials `mapstructure:"twelvedata"`
}

// KiteCredentials holds Kite Connect credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
}

// TwelveDataCredentials holds the Twelve Data API key.
type TwelveDataCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/alpha-auditor"
	}
	return filepath.Join(home, ".config", "alpha-auditor")
}

// Dir returns the directory the config was loaded from.
func (c *Config) Dir() string {
	return c.dir
}

// Path returns the main config file path for configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, ConfigFileName+".toml")
}

// DefaultProducers returns the standard producer roster.
func DefaultProducers() map[string]ProducerConfig {
	return map[string]ProducerConfig{
		"valuator":     {Name: "The Valuator (Fundamental)", Category: "fundamental", MinWeight: 0.20, MaxWeight: 0.50, InitialWeight: 0.35},
		"chip_watcher": {Name: "The Chip Watcher (Institutional)", Category: "institutional", MinWeight: 0.10, MaxWeight: 0.35, InitialWeight: 0.25},
		"whale_hunter": {Name: "The Whale Hunter (Large Holders)", Category: "institutional", MinWeight: 0.10, MaxWeight: 0.35, InitialWeight: 0.20},
		"strategist":   {Name: "The Strategist (Macro)", Category: "macro", MinWeight: 0.05, MaxWeight: 0.25, InitialWeight: 0.15},
		"chartist":     {Name: "The Chartist (Technical)", Category: "technical", MinWeight: 0.02, MaxWeight: 0.20, InitialWeight: 0.05},
	}
}

// DefaultHorizons returns T+1, T+5 and T+20.
func DefaultHorizons() []HorizonConfig {
	return []HorizonConfig{{Name: "T+1", Days: 1}, {Name: "T+5", Days: 5}, {Name: "T+20", Days: 20}}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "")

	v.SetDefault("audit.lookback", 7*24*time.Hour)
	v.SetDefault("audit.report_lookback", 30*24*time.Hour)
	v.SetDefault("audit.fetch_concurrency", 4)
	v.SetDefault("audit.pass_timeout", 5*time.Minute)
	v.SetDefault("audit.normal_threshold", 0.7)

	v.SetDefault("accuracy.neutral_band", 0.05)
	v.SetDefault("accuracy.exact_band", 0.05)
	v.SetDefault("accuracy.near_band", 0.15)
	v.SetDefault("accuracy.exact_score", 1.0)
	v.SetDefault("accuracy.near_score", 0.7)
	v.SetDefault("accuracy.far_score", 0.4)

	v.SetDefault("top.min_overall", 0.70)
	v.SetDefault("top.min_stability", 0.60)
	v.SetDefault("top.min_calibration", 0.70)
	v.SetDefault("top.min_samples", 3)

	v.SetDefault("weights.cooldown", 72*time.Hour)
	v.SetDefault("weights.materiality", 0.01)
	v.SetDefault("weights.deltas.excellent", 0.04)
	v.SetDefault("weights.deltas.good", 0.02)
	v.SetDefault("weights.deltas.normal", 0.0)
	v.SetDefault("weights.deltas.poor", -0.05)
	v.SetDefault("weights.deltas.critical", -0.10)

	v.SetDefault("fetcher.provider", "kite")
	v.SetDefault("fetcher.default_exchange", "NSE")
	v.SetDefault("fetcher.requests_per_sec", 3)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.timeout", 30*time.Second)
	v.SetDefault("fetcher.cache", "badger")
	v.SetDefault("fetcher.cache_max_age", time.Duration(0))
	v.SetDefault("fetcher.breaker_threshold", 5)
	v.SetDefault("fetcher.breaker_cooldown", time.Minute)

	hist := history.DefaultConfig()
	v.SetDefault("history.max_size", hist.MaxSize)
	v.SetDefault("history.max_backups", hist.MaxBackups)
	v.SetDefault("history.max_age", hist.MaxAge)
	v.SetDefault("history.compress", hist.Compress)

	logCfg := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logCfg.Level)
	v.SetDefault("logging.console", logCfg.Console)
	v.SetDefault("logging.file", logCfg.File)
	v.SetDefault("logging.max_size", logCfg.MaxSize)
	v.SetDefault("logging.max_backups", logCfg.MaxBackups)
	v.SetDefault("logging.max_age", logCfg.MaxAge)
}

// Default returns the configuration used when no file overrides anything.
func Default(configDir string) *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.finish(configDir)
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing config
// file is replaced by the commented template before loading.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading %s.toml: %w", ConfigFileName, err)
	}
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading %s.toml: %w", CredentialsFileName, err)
	}

	applyEnvOverrides(cfg)
	cfg.finish(configDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadFile loads a single config file without credentials or templates.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.finish(filepath.Dir(path))
	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName(CredentialsFileName)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

// finish fills values derived from the config directory.
func (c *Config) finish(configDir string) {
	c.dir = configDir
	if len(c.Producers) == 0 {
		c.Producers = DefaultProducers()
	}
	if len(c.Audit.Horizons) == 0 {
		c.Audit.Horizons = DefaultHorizons()
	}
	if c.Storage.Path == "" {
		if c.Storage.Backend == "json" {
			c.Storage.Path = filepath.Join(configDir, "state")
		} else {
			c.Storage.Path = filepath.Join(configDir, "auditor.db")
		}
	}
	if c.History.Dir == "" {
		c.History.Dir = filepath.Join(configDir, "history")
	}
	if c.Fetcher.CacheDir == "" {
		c.Fetcher.CacheDir = filepath.Join(configDir, "cache")
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(configDir, "logs", "auditor.log")
	}
}

func applyEnvOverrides(cfg *Config) {
	// Kite credentials
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}

	// Twelve Data credentials
	if v := os.Getenv("TWELVEDATA_API_KEY"); v != "" {
		cfg.Credentials.TwelveData.APIKey = v
	}

	if v := os.Getenv("AUDITOR_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("AUDITOR_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("AUDITOR_FETCHER"); v != "" {
		cfg.Fetcher.Provider = v
	}
	if v := os.Getenv("AUDITOR_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}

var validCategories = map[string]bool{"technical": true, "fundamental": true, "institutional": true, "macro": true}

var validTiers = map[string]bool{"excellent": true, "good": true, "normal": true, "poor": true, "critical": true}

// Validate validates the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.Wrapf(errors.ErrConfigInvalid, format, args...)
	}

	switch c.Storage.Backend {
	case "sqlite", "json":
	default:
		return invalid("storage.backend %q must be 'sqlite' or 'json'", c.Storage.Backend)
	}

	// Horizons
	if len(c.Audit.Horizons) == 0 {
		return invalid("audit.horizons must not be empty")
	}
	seen := make(map[string]bool)
	for _, h := range c.Audit.Horizons {
		if h.Name == "" || h.Days < 1 {
			return invalid("horizon %q must have a name and days >= 1", h.Name)
		}
		if seen[h.Name] {
			return invalid("duplicate horizon %q", h.Name)
		}
		seen[h.Name] = true
	}
	if c.Audit.Lookback <= 0 || c.Audit.ReportLookback <= 0 {
		return invalid("audit.lookback and audit.report_lookback must be positive")
	}
	if c.Audit.FetchConcurrency < 1 {
		return invalid("audit.fetch_concurrency must be at least 1")
	}
	if c.Audit.PassTimeout < 0 {
		return invalid("audit.pass_timeout must not be negative")
	}
	if c.Audit.NormalThreshold < 0 || c.Audit.NormalThreshold > 1 {
		return invalid("audit.normal_threshold must be between 0 and 1")
	}

	// Accuracy
	a := c.Accuracy
	if a.NeutralBand <= 0 || a.ExactBand <= 0 || a.ExactBand >= a.NearBand {
		return invalid("accuracy bands must satisfy 0 < exact_band < near_band and neutral_band > 0")
	}
	for _, s := range []float64{a.ExactScore, a.NearScore, a.FarScore} {
		if s < 0 || s > 1 {
			return invalid("accuracy scores must be between 0 and 1")
		}
	}
	if !(a.ExactScore >= a.NearScore && a.NearScore >= a.FarScore) {
		return invalid("accuracy scores must not increase with distance")
	}

	// Weights
	if c.Weights.Cooldown < 0 || c.Weights.Materiality < 0 {
		return invalid("weights.cooldown and weights.materiality must not be negative")
	}
	for tier, d := range c.Weights.Deltas {
		if !validTiers[tier] {
			return invalid("weights.deltas has unknown tier %q", tier)
		}
		if d <= -1 {
			return invalid("weights.deltas.%s must be greater than -1", tier)
		}
	}

	// Producers
	if len(c.Producers) == 0 {
		return invalid("at least one producer is required")
	}
	var sumMin, sumMax, sumInitial float64
	for _, id := range c.ProducerIDs() {
		p := c.Producers[id]
		if !validCategories[p.Category] {
			return invalid("producer %s has invalid category %q", id, p.Category)
		}
		if !(0 <= p.MinWeight && p.MinWeight <= p.InitialWeight && p.InitialWeight <= p.MaxWeight && p.MaxWeight <= 1) {
			return invalid("producer %s must satisfy 0 <= min_weight <= initial_weight <= max_weight <= 1", id)
		}
		sumMin += p.MinWeight
		sumMax += p.MaxWeight
		sumInitial += p.InitialWeight
	}
	if sumMin > 1+1e-6 || sumMax < 1-1e-6 {
		return invalid("producer bounds cannot sum to 1 (sum of min %.3f, sum of max %.3f)", sumMin, sumMax)
	}
	if math.Abs(sumInitial-1) > 1e-6 {
		return invalid("initial weights sum to %.4f, must sum to 1", sumInitial)
	}

	// Fetcher
	switch c.Fetcher.Provider {
	case "kite", "twelvedata":
	case "static":
		if c.Fetcher.StaticFile == "" {
			return invalid("fetcher.static_file is required for the static provider")
		}
	default:
		return invalid("fetcher.provider %q must be 'kite', 'twelvedata' or 'static'", c.Fetcher.Provider)
	}
	switch c.Fetcher.Cache {
	case "badger", "memory", "none", "":
	default:
		return invalid("fetcher.cache %q must be 'badger', 'memory' or 'none'", c.Fetcher.Cache)
	}
	if c.Fetcher.RequestsPerSec < 0 || c.Fetcher.MaxRetries < 0 {
		return invalid("fetcher.requests_per_sec and fetcher.max_retries must not be negative")
	}
	if c.Fetcher.BreakerThreshold < 0 || c.Fetcher.BreakerCooldown < 0 {
		return invalid("fetcher.breaker_threshold and fetcher.breaker_cooldown must not be negative")
	}

	return nil
}

// ProducerIDs returns configured producer IDs in sorted order.
func (c *Config) ProducerIDs() []string {
	ids := make([]string, 0, len(c.Producers))
	for id := range c.Producers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
