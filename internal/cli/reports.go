package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"alpha-auditor/internal/audit"
	"alpha-auditor/internal/models"
)

func addReportCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newReportCmd(app))
	rootCmd.AddCommand(newStarsCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newWeightsCmd(app))
}

func newReportCmd(app *App) *cobra.Command {
	var lookback time.Duration

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show rolling performance per producer",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if lookback <= 0 {
				lookback = app.Config.Audit.ReportLookback
			}

			auditor, err := app.Auditor()
			if err != nil {
				return err
			}
			perf, err := auditor.RollingPerformance(cmd.Context(), lookback)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(sortedByScore(perf))
			}
			printPerformance(output, app, perf, lookback)
			return nil
		},
	}

	cmd.Flags().DurationVar(&lookback, "lookback", 0, "performance window (default: audit.report_lookback)")
	return cmd
}

func printPerformance(output *Output, app *App, perf map[string]models.PerformanceMetric, lookback time.Duration) {
	output.Bold("📊 Producer Performance (last %s)", FormatDuration(lookback))
	if len(perf) == 0 {
		output.Dim("No audits in this window")
		return
	}

	table := NewTable(output, "PRODUCER", "CATEGORY", "SAMPLES", "ACCURACY", "STABILITY", "CALIBRATION", "OVERALL", "TIER")
	for _, m := range sortedByScore(perf) {
		category := "-"
		if c, ok := app.Registry.CategoryOf(m.ProducerID); ok {
			category = string(c)
		}
		table.AddRow(
			m.ProducerID,
			category,
			fmt.Sprintf("%d", m.SampleCount),
			FormatScore(m.MeanAccuracy),
			FormatScore(m.Stability),
			FormatScore(m.Calibration),
			FormatScore(m.OverallScore),
			output.Tier(m.Tier),
		)
	}
	table.Render()
}

func newStarsCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stars",
		Short: "List top performing producers",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			auditor, err := app.Auditor()
			if err != nil {
				return err
			}
			ranked, err := auditor.TopPerformers(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if ranked == nil {
					ranked = []models.RankedProducer{}
				}
				return output.JSON(ranked)
			}

			output.Bold("⭐ Top Performers")
			if len(ranked) == 0 {
				output.Dim("No producer meets the top performer criteria")
				return nil
			}
			table := NewTable(output, "RANK", "PRODUCER", "NAME", "OVERALL")
			for _, r := range ranked {
				table.AddRow(fmt.Sprintf("%d", r.Rank), r.ProducerID, app.Registry.DisplayName(r.ProducerID), FormatScore(r.OverallScore))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "maximum number of producers")
	return cmd
}

// historyResult is the JSON form of the history command.
type historyResult struct {
	Summary     audit.Summary            `json:"summary"`
	Adjustments []models.AdjustmentEvent `json:"adjustments"`
}

const historyRecentAudits = 5

func newHistoryCmd(app *App) *cobra.Command {
	var adjustments int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Summarize predictions, audits and weight adjustments",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			auditor, err := app.Auditor()
			if err != nil {
				return err
			}
			summary, err := auditor.Summary(cmd.Context())
			if err != nil {
				return err
			}
			events, err := auditor.AdjustmentHistory(adjustments)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if events == nil {
					events = []models.AdjustmentEvent{}
				}
				return output.JSON(historyResult{Summary: summary, Adjustments: events})
			}
			printHistory(output, summary, events)
			return nil
		},
	}

	cmd.Flags().IntVar(&adjustments, "adjustments", 5, "number of recent weight adjustments to show")
	return cmd
}

func printHistory(output *Output, s audit.Summary, events []models.AdjustmentEvent) {
	output.Bold("📜 Audit History")
	output.Printf("  Predictions:      %d\n", s.Predictions)
	output.Printf("  Horizons:         %d verified, %d due, %d pending\n", s.VerifiedPairs, s.DuePairs, s.PendingPairs)
	output.Printf("  Audits:           %d\n", s.Audits)
	output.Printf("  Mean accuracy:    %s\n", FormatScore(s.MeanAccuracy))
	output.Printf("  Last adjustment:  %s\n", FormatDateTime(s.LastAdjustment))

	if len(s.FailureCounts) > 0 {
		types := make([]string, 0, len(s.FailureCounts))
		for ft := range s.FailureCounts {
			types = append(types, string(ft))
		}
		sort.Strings(types)
		output.Println()
		output.Bold("Outcomes by attribution")
		for _, ft := range types {
			output.Printf("  %-14s %d\n", ft, s.FailureCounts[models.FailureType(ft)])
		}
	}

	recent := s.RecentAudits
	if len(recent) > historyRecentAudits {
		recent = recent[len(recent)-historyRecentAudits:]
	}
	if len(recent) > 0 {
		output.Println()
		output.Bold("Recent audits")
		table := NewTable(output, "DATE", "PREDICTION", "HORIZON", "ENTRY", "REALIZED", "ACCURACY", "ATTRIBUTION")
		for _, r := range recent {
			table.AddRow(
				FormatDate(r.Timestamp),
				TruncateString(r.PredictionKey, 28),
				r.Horizon,
				FormatIndianCurrency(r.EntryValue),
				FormatIndianCurrency(r.RealizedValue),
				FormatScore(r.Accuracy),
				string(r.Attribution.FailureType),
			)
		}
		table.Render()
	}

	if len(events) > 0 {
		output.Println()
		output.Bold("Weight adjustments")
		for _, e := range events {
			output.Printf("  %s\n", FormatDateTime(e.Timestamp))
			for _, id := range e.NewWeights.Producers() {
				output.Printf("    %-14s %s\n", id, FormatWeightChange(e.OldWeights[id], e.NewWeights[id]))
			}
		}
	}
}

// weightRow describes one producer's current weight.
type weightRow struct {
	ProducerID string  `json:"producer_id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Weight     float64 `json:"weight"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

func newWeightsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "weights",
		Short: "Show current producer weights and bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			auditor, err := app.Auditor()
			if err != nil {
				return err
			}
			current, err := auditor.CurrentWeights(cmd.Context())
			if err != nil {
				return err
			}
			app.Metrics.SetWeights(current)

			rows := make([]weightRow, 0, len(current))
			for _, id := range current.Producers() {
				p, _ := app.Registry.Get(id)
				rows = append(rows, weightRow{
					ProducerID: id,
					Name:       app.Registry.DisplayName(id),
					Category:   string(p.Category),
					Weight:     current[id],
					Min:        p.Bounds.Min,
					Max:        p.Bounds.Max,
				})
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}
			output.Bold("⚖ Producer Weights")
			table := NewTable(output, "PRODUCER", "CATEGORY", "WEIGHT", "MIN", "MAX")
			for _, r := range rows {
				table.AddRow(r.ProducerID, r.Category, FormatWeight(r.Weight), FormatWeight(r.Min), FormatWeight(r.Max))
			}
			table.Render()
			return nil
		},
	}
}
