package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/models"
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

// newConfigDir writes a config that stores JSON state and replays closes
// from a CSV file.
func newConfigDir(t *testing.T, extra string) string {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()

	closes := filepath.Join(dir, "closes.csv")
	require.NoError(t, os.WriteFile(closes, []byte("instrument,date,close\nX,2026-03-03,458.50\n"), 0644))

	content := fmt.Sprintf(`
[storage]
backend = "json"

[fetcher]
provider = "static"
static_file = %q
cache = "memory"

[logging]
console = false
file = false
%s`, closes, extra)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auditor.toml"), []byte(content), 0644))
	return dir
}

func run(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), append([]string{"--config", dir}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decode(t *testing.T, s string, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(s), v), s)
}

func recordX(t *testing.T, dir string) {
	t.Helper()
	code, out, errOut := run(t, dir, "record", "X", "--json",
		"--entry", "450", "--date", "2026-03-02",
		"--opinion", "valuator:BUY:0.8",
		"--opinion", "chip_watcher:buy:0.7:accumulation",
		"--opinion", "chartist:SELL:0.6")
	require.Equal(t, 0, code, errOut)

	var res map[string]string
	decode(t, out, &res)
	assert.Equal(t, "X_2026-03-02", res["key"])
	assert.Equal(t, "BUY", res["consensus"])
}

func TestRecordVerifyAndHistory(t *testing.T) {
	dir := newConfigDir(t, "")
	recordX(t, dir)

	code, out, errOut := run(t, dir, "verify", "--json")
	require.Equal(t, 0, code, errOut)
	var verified map[string]int
	decode(t, out, &verified)
	assert.Equal(t, 1, verified["verified"])

	// Already verified horizons are never verified again.
	code, out, _ = run(t, dir, "verify", "--json")
	require.Equal(t, 0, code)
	decode(t, out, &verified)
	assert.Equal(t, 0, verified["verified"])

	code, out, errOut = run(t, dir, "history", "--json")
	require.Equal(t, 0, code, errOut)
	var hist struct {
		Summary struct {
			Predictions   int                  `json:"predictions"`
			VerifiedPairs int                  `json:"verified_pairs"`
			DuePairs      int                  `json:"due_pairs"`
			Audits        int                  `json:"audits"`
			RecentAudits  []models.AuditRecord `json:"recent_audits"`
		} `json:"summary"`
		Adjustments []models.AdjustmentEvent `json:"adjustments"`
	}
	decode(t, out, &hist)
	assert.Equal(t, 1, hist.Summary.Predictions)
	assert.Equal(t, 1, hist.Summary.VerifiedPairs)
	assert.Equal(t, 2, hist.Summary.DuePairs)
	assert.Equal(t, 1, hist.Summary.Audits)
	require.Len(t, hist.Summary.RecentAudits, 1)
	audit := hist.Summary.RecentAudits[0]
	assert.Equal(t, "T+1", audit.Horizon)
	assert.Equal(t, 1.0, audit.Accuracy)
	assert.Equal(t, models.FailureNormal, audit.Attribution.FailureType)
	assert.Empty(t, hist.Adjustments)

	code, out, _ = run(t, dir, "history")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Recent audits")
	assert.Contains(t, out, "₹458.50")
}

func TestExportAudits(t *testing.T) {
	dir := newConfigDir(t, "")
	recordX(t, dir)
	code, _, errOut := run(t, dir, "verify")
	require.Equal(t, 0, code, errOut)

	code, out, errOut := run(t, dir, "export", "audits", "--format", "csv")
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,timestamp,prediction_key,horizon"), lines[0])
	assert.Contains(t, lines[1], "X_2026-03-02,T+1")
	assert.Contains(t, lines[1], "normal")

	code, out, errOut = run(t, dir, "export", "audits", "--format", "yaml")
	require.Equal(t, 0, code, errOut)
	var audits []models.AuditRecord
	require.NoError(t, yaml.Unmarshal([]byte(out), &audits))
	require.Len(t, audits, 1)
	assert.Equal(t, 458.5, audits[0].RealizedValue)

	path := filepath.Join(t.TempDir(), "audits.json")
	code, _, errOut = run(t, dir, "export", "audits", "--format", "json", "-o", path)
	require.Equal(t, 0, code, errOut)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	decode(t, string(data), &audits)
	assert.Len(t, audits, 1)

	code, out, _ = run(t, dir, "export", "audits", "--since", "2099-01-01", "--format", "json")
	require.Equal(t, 0, code)
	decode(t, out, &audits)
	assert.Empty(t, audits)

	code, out, _ = run(t, dir, "export", "audits", "--format", "xml", "--json")
	assert.Equal(t, 1, code)
	var failure map[string]errors.Reason
	decode(t, out, &failure)
	assert.Equal(t, errors.CategoryValidation, failure["error"].Category)
}

func TestFullCycleIsDefault(t *testing.T) {
	dir := newConfigDir(t, "")
	recordX(t, dir)

	code, out, errOut := run(t, dir, "--json")
	require.Equal(t, 0, code, errOut)

	var res fullResult
	decode(t, out, &res)
	assert.Equal(t, 1, res.Verified)
	require.Contains(t, res.Performance, "valuator")
	assert.Equal(t, models.TierExcellent, res.Performance["valuator"].Tier)
	// Three excellent producers moving together do not shift any weight by
	// more than the materiality threshold.
	assert.False(t, res.Rebalance.Applied)
	assert.Equal(t, "no material weight change", res.Rebalance.Reason)
	assert.InDelta(t, 1.0, res.Rebalance.NewWeights.Sum(), 1e-9)

	code, out, errOut = run(t, dir)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Producer Performance")
	assert.Contains(t, out, "No adjustment applied")
}

func TestWeightsAndStars(t *testing.T) {
	dir := newConfigDir(t, "")

	code, out, errOut := run(t, dir, "weights", "--json")
	require.Equal(t, 0, code, errOut)
	var rows []weightRow
	decode(t, out, &rows)
	require.Len(t, rows, 5)
	total := 0.0
	for _, r := range rows {
		total += r.Weight
		assert.GreaterOrEqual(t, r.Weight, r.Min)
		assert.LessOrEqual(t, r.Weight, r.Max)
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	recordX(t, dir)
	code, _, _ = run(t, dir, "verify")
	require.Equal(t, 0, code)

	// One sample is below the minimum for a top performer.
	code, out, errOut = run(t, dir, "stars", "--json")
	require.Equal(t, 0, code, errOut)
	assert.JSONEq(t, "[]", out)

	code, out, errOut = run(t, dir, "report")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "valuator")
	assert.Contains(t, out, "excellent")
}

func TestRecordFailuresAreStructured(t *testing.T) {
	dir := newConfigDir(t, "")

	tests := []struct {
		name     string
		args     []string
		category string
	}{
		{"unknown producer", []string{"record", "X", "--entry", "450", "--opinion", "oracle:BUY:0.9"}, errors.CategoryValidation},
		{"bad opinion", []string{"record", "X", "--entry", "450", "--opinion", "valuator:UP:0.9"}, errors.CategoryValidation},
		{"negative entry", []string{"record", "X", "--entry", "-1", "--opinion", "valuator:BUY:0.9"}, errors.CategoryValidation},
		{"bad date", []string{"record", "X", "--entry", "450", "--date", "02/03/2026", "--opinion", "valuator:BUY:0.9"}, errors.CategoryValidation},
		{"no opinions", []string{"record", "X", "--entry", "450"}, errors.CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, _ := run(t, dir, append(tt.args, "--json")...)
			assert.Equal(t, 1, code)
			var failure map[string]errors.Reason
			decode(t, out, &failure)
			assert.Equal(t, tt.category, failure["error"].Category)
			assert.NotEmpty(t, failure["error"].Message)
		})
	}

	recordX(t, dir)
	code, out, _ := run(t, dir, "record", "X", "--json", "--entry", "451", "--date", "2026-03-02", "--opinion", "valuator:BUY:0.8")
	assert.Equal(t, 1, code)
	var failure map[string]errors.Reason
	decode(t, out, &failure)
	assert.Equal(t, errors.CategoryStore, failure["error"].Category)
}

func TestRecordFromOpinionsFile(t *testing.T) {
	dir := newConfigDir(t, "")
	file := filepath.Join(t.TempDir(), "opinions.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
- producer_id: valuator
  signal: sell
  confidence: 0.7
  rationale: stretched multiples
- producer_id: strategist
  signal: SELL
  confidence: 0.6
`), 0644))

	code, out, errOut := run(t, dir, "record", "Y", "--json", "--entry", "120", "--date", "2026-03-02", "--opinions-file", file)
	require.Equal(t, 0, code, errOut)
	var res map[string]string
	decode(t, out, &res)
	assert.Equal(t, "SELL", res["consensus"])
}

func TestInvalidConfigIsReported(t *testing.T) {
	dir := newConfigDir(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auditor.toml"), []byte("[storage]\nbackend = \"postgres\"\n"), 0644))

	code, _, errOut := run(t, dir, "weights")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error [config]")
}

func TestMetricsTextfile(t *testing.T) {
	dir := newConfigDir(t, "")
	path := filepath.Join(t.TempDir(), "auditor.prom")

	code, _, errOut := run(t, dir, "record", "X", "--entry", "450", "--opinion", "valuator:BUY:0.8", "--metrics-file", path)
	require.Equal(t, 0, code, errOut)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "auditor_predictions_recorded_total 1")
}

func TestCommandsWithoutConfig(t *testing.T) {
	clearEnv(t)
	dir := filepath.Join(t.TempDir(), "never-created")

	code, out, _ := run(t, dir, "version", "--json")
	require.Equal(t, 0, code)
	var v map[string]string
	decode(t, out, &v)
	assert.Equal(t, Version, v["version"])

	code, out, _ = run(t, dir, "config", "path")
	require.Equal(t, 0, code)
	assert.Equal(t, filepath.Join(dir, "auditor.toml"), strings.TrimSpace(out))

	code, out, _ = run(t, dir, "examples")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Record the Ensemble's Call")
	assert.Contains(t, out, "Export Data")
	assert.Contains(t, out, "auditor export audits --format csv -o audits.csv")

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestConfigShowAndValidate(t *testing.T) {
	dir := newConfigDir(t, "")

	code, out, errOut := run(t, dir, "config", "validate", "--json")
	require.Equal(t, 0, code, errOut)
	assert.JSONEq(t, `{"valid": true}`, out)

	code, out, errOut = run(t, dir, "config", "show")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "backend: json")
	assert.Contains(t, out, "valuator:")
	assert.NotContains(t, out, "access_token")
}

func TestParseOpinion(t *testing.T) {
	o, err := parseOpinion("whale_hunter:neutral:0.5:blocks: mixed")
	require.NoError(t, err)
	assert.Equal(t, models.Opinion{ProducerID: "whale_hunter", Signal: models.SignalNeutral, Confidence: 0.5, Rationale: "blocks: mixed"}, o)

	for _, bad := range []string{"valuator", "valuator:BUY", "valuator:BUY:high", "valuator:HOLD:0.5"} {
		_, err := parseOpinion(bad)
		assert.True(t, errors.Is(err, errors.ErrInvalidOpinion), bad)
	}
}
