package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Alpha Auditor Configuration

[storage]
# Persistence backend: "sqlite" or "json"
backend = "sqlite"
# Database file (sqlite) or state directory (json). Empty means inside the config directory.
path = ""

[audit]
# How far back a pass looks for due predictions
lookback = "168h"
# Window for rolling performance reports and rebalancing
report_lookback = "720h"
# Concurrent outcome fetches per pass
fetch_concurrency = 4
# Upper bound on one audit pass (0 disables)
pass_timeout = "5m"
# Accuracy above this is classified as normal
normal_threshold = 0.7

[[audit.horizons]]
name = "T+1"
days = 1

[[audit.horizons]]
name = "T+5"
days = 5

[[audit.horizons]]
name = "T+20"
days = 20

[accuracy]
# Relative move counted as flat for a NEUTRAL consensus
neutral_band = 0.05
# Correct direction within exact_band scores exact_score, within near_band near_score, else far_score
exact_band = 0.05
near_band = 0.15
exact_score = 1.0
near_score = 0.7
far_score = 0.4

[top]
min_overall = 0.70
min_stability = 0.60
min_calibration = 0.70
min_samples = 3

[weights]
# Minimum time between applied adjustments
cooldown = "72h"
# Adjustments are applied only if some weight moves more than this
materiality = 0.01

[weights.deltas]
excellent = 0.04
good = 0.02
normal = 0.0
poor = -0.05
critical = -0.10

[producers.valuator]
name = "The Valuator (Fundamental)"
category = "fundamental"
min_weight = 0.20
max_weight = 0.50
initial_weight = 0.35

[producers.chip_watcher]
name = "The Chip Watcher (Institutional)"
category = "institutional"
min_weight = 0.10
max_weight = 0.35
initial_weight = 0.25

[producers.whale_hunter]
name = "The Whale Hunter (Large Holders)"
category = "institutional"
min_weight = 0.10
max_weight = 0.35
initial_weight = 0.20

[producers.strategist]
name = "The Strategist (Macro)"
category = "macro"
min_weight = 0.05
max_weight = 0.25
initial_weight = 0.15

[producers.chartist]
name = "The Chartist (Technical)"
category = "technical"
min_weight = 0.02
max_weight = 0.20
initial_weight = 0.05

[fetcher]
# Outcome source: "kite", "twelvedata" or "static"
provider = "kite"
default_exchange = "NSE"
requests_per_sec = 3
max_retries = 3
timeout = "30s"
# CSV of instrument,date,close used by the static provider
static_file = ""
# Close price cache: "badger", "memory" or "none"
cache = "badger"
cache_dir = ""
# 0 keeps cached closes forever
cache_max_age = "0s"
# Consecutive source failures before fetches are refused (0 disables)
breaker_threshold = 5
breaker_cooldown = "1m"

[history]
# Weight adjustment journal location. Empty means inside the config directory.
dir = ""
max_size = 50
max_backups = 30
max_age = 365
compress = true

[logging]
level = "info"
console = true
file = true
file_path = ""

[metrics]
# Prometheus textfile written after each command (empty disables)
textfile = ""
`

const credentialsTemplate = `# Alpha Auditor Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
api_key = ""
access_token = ""

[twelvedata]
api_key = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, ConfigFileName+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, CredentialsFileName+".toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
