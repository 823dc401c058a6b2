package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"alpha-auditor/internal/audit"
	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/models"
)

func addAuditCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRecordCmd(app))
	rootCmd.AddCommand(newVerifyCmd(app))
	rootCmd.AddCommand(newRebalanceCmd(app))
	rootCmd.AddCommand(newFullCmd(app))
}

func newRecordCmd(app *App) *cobra.Command {
	var (
		entry        float64
		date         string
		opinionFlags []string
		opinionsFile string
	)

	cmd := &cobra.Command{
		Use:   "record <instrument>",
		Short: "Record an ensemble prediction for later verification",
		Long: `Record the producers' opinions about an instrument together with the entry price.

Opinions are given as producer:SIGNAL:confidence[:rationale], for example
  auditor record NSE:TCS --entry 3890 --opinion valuator:BUY:0.8 --opinion chartist:SELL:0.6
or loaded from a YAML/JSON list with --opinions-file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			opinions, err := collectOpinions(opinionFlags, opinionsFile)
			if err != nil {
				return err
			}
			created, err := parseDate("date", date)
			if err != nil {
				return err
			}

			auditor, err := app.Auditor()
			if err != nil {
				return err
			}
			key, err := auditor.RecordPrediction(cmd.Context(), args[0], opinions, entry, created)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"key":       key,
					"consensus": audit.Consensus(opinions),
				})
			}
			output.Success("✓ Recorded %s (%d opinions, consensus %s, entry %s)",
				key, len(opinions), audit.Consensus(opinions), FormatIndianCurrency(entry))
			return nil
		},
	}

	cmd.Flags().Float64Var(&entry, "entry", 0, "entry price at prediction time")
	cmd.Flags().StringVar(&date, "date", "", "prediction date YYYY-MM-DD (default: today)")
	cmd.Flags().StringArrayVar(&opinionFlags, "opinion", nil, "producer:SIGNAL:confidence[:rationale] (repeatable)")
	cmd.Flags().StringVar(&opinionsFile, "opinions-file", "", "YAML or JSON list of opinions")
	_ = cmd.MarkFlagRequired("entry")

	return cmd
}

// parseOpinion parses producer:SIGNAL:confidence[:rationale].
func parseOpinion(s string) (models.Opinion, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return models.Opinion{}, errors.NewValidationError("opinion", s, "want producer:SIGNAL:confidence[:rationale]", errors.ErrInvalidOpinion)
	}
	signal, err := models.ParseSignal(parts[1])
	if err != nil {
		return models.Opinion{}, errors.NewValidationError("opinion", s, err.Error(), errors.ErrInvalidOpinion)
	}
	confidence, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return models.Opinion{}, errors.NewValidationError("opinion", s, "confidence is not a number", errors.ErrInvalidOpinion)
	}

	o := models.Opinion{
		ProducerID: strings.TrimSpace(parts[0]),
		Signal:     signal,
		Confidence: confidence,
	}
	if len(parts) == 4 {
		o.Rationale = parts[3]
	}
	return o, nil
}

func collectOpinions(flags []string, file string) ([]models.Opinion, error) {
	var opinions []models.Opinion
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading opinions file: %w", err)
		}
		if err := yaml.Unmarshal(data, &opinions); err != nil {
			return nil, errors.NewValidationError("opinions-file", file, err.Error(), errors.ErrInvalidOpinion)
		}
		for i := range opinions {
			signal, err := models.ParseSignal(string(opinions[i].Signal))
			if err != nil {
				return nil, errors.NewValidationError("opinions-file", file, err.Error(), errors.ErrInvalidOpinion)
			}
			opinions[i].Signal = signal
		}
	}
	for _, f := range flags {
		o, err := parseOpinion(f)
		if err != nil {
			return nil, err
		}
		opinions = append(opinions, o)
	}
	return opinions, nil
}

// parseDate parses YYYY-MM-DD; empty yields the zero time.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, s, "want YYYY-MM-DD", errors.ErrInputValidation)
	}
	return t, nil
}

func newVerifyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify matured predictions against realized closes",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			n, err := runVerify(cmd, app)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"verified": n})
			}
			printVerified(output, n)
			return nil
		},
	}
}

func runVerify(cmd *cobra.Command, app *App) (int, error) {
	auditor, err := app.Auditor()
	if err != nil {
		return 0, err
	}
	return auditor.RunAuditPass(cmd.Context())
}

func printVerified(output *Output, n int) {
	if n == 0 {
		output.Dim("No matured predictions to verify")
		return
	}
	output.Success("✓ Verified %d prediction horizon(s)", n)
}

// rebalanceResult is the outcome of one rebalance attempt.
type rebalanceResult struct {
	Applied        bool                `json:"applied"`
	Reason         string              `json:"reason,omitempty"`
	OldWeights     models.WeightVector `json:"old_weights"`
	NewWeights     models.WeightVector `json:"new_weights"`
	LastAdjustment time.Time           `json:"last_adjustment,omitempty"`
}

func newRebalanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance",
		Short: "Adjust producer weights from rolling performance",
		Long: `Adjust producer weights from the rolling performance window.

Weights move by a tier-dependent relative delta, are kept inside each producer's
bounds and renormalized to sum to 1. Adjustments respect the cooldown and are
only applied when some weight changes materially.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			res, err := runRebalance(cmd, app)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			printRebalance(output, res)
			return nil
		},
	}
}

func runRebalance(cmd *cobra.Command, app *App) (rebalanceResult, error) {
	auditor, err := app.Auditor()
	if err != nil {
		return rebalanceResult{}, err
	}
	ctx := cmd.Context()

	current, err := auditor.CurrentWeights(ctx)
	if err != nil {
		return rebalanceResult{}, err
	}
	next, applied, err := auditor.Rebalance(ctx, current)
	if err != nil {
		return rebalanceResult{}, err
	}
	app.Metrics.SetWeights(next)

	summary, err := auditor.Summary(ctx)
	if err != nil {
		return rebalanceResult{}, err
	}
	res := rebalanceResult{
		Applied:        applied,
		OldWeights:     current,
		NewWeights:     next,
		LastAdjustment: summary.LastAdjustment,
	}
	if !applied {
		cooldown := app.Config.Weights.Cooldown
		if until := summary.LastAdjustment.Add(cooldown); !summary.LastAdjustment.IsZero() && time.Now().Before(until) {
			res.Reason = fmt.Sprintf("cooldown active for %s", FormatDuration(time.Until(until)))
		} else {
			res.Reason = "no material weight change"
		}
	}
	return res, nil
}

func printRebalance(output *Output, res rebalanceResult) {
	if !res.Applied {
		output.Warning("No adjustment applied: %s", res.Reason)
		output.Dim("Last adjustment: %s", FormatDateTime(res.LastAdjustment))
		return
	}

	output.Bold("⚖ Weight Adjustment")
	table := NewTable(output, "PRODUCER", "OLD", "NEW")
	for _, id := range res.NewWeights.Producers() {
		oldW, newW := res.OldWeights[id], res.NewWeights[id]
		change := FormatWeightChange(oldW, newW)
		switch WeightArrow(oldW, newW) {
		case "↑":
			change = output.Green(change)
		case "↓":
			change = output.Red(change)
		}
		table.AddRow(id, FormatWeight(oldW), change)
	}
	table.Render()
}

// fullResult is the combined output of the default cycle.
type fullResult struct {
	Verified    int                                 `json:"verified"`
	Performance map[string]models.PerformanceMetric `json:"performance"`
	Rebalance   rebalanceResult                     `json:"rebalance"`
}

func newFullCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "full",
		Short: "Run the full cycle: verify, report, rebalance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFull(cmd, app)
		},
	}
}

func runFull(cmd *cobra.Command, app *App) error {
	output := NewOutput(cmd)

	n, err := runVerify(cmd, app)
	if err != nil {
		return err
	}
	auditor, err := app.Auditor()
	if err != nil {
		return err
	}
	perf, err := auditor.RollingPerformance(cmd.Context(), app.Config.Audit.ReportLookback)
	if err != nil {
		return err
	}
	res, err := runRebalance(cmd, app)
	if err != nil {
		return err
	}

	if output.IsJSON() {
		return output.JSON(fullResult{Verified: n, Performance: perf, Rebalance: res})
	}
	printVerified(output, n)
	output.Println()
	printPerformance(output, app, perf, app.Config.Audit.ReportLookback)
	output.Println()
	printRebalance(output, res)
	return nil
}
