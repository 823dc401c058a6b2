package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "examples",
		Short:       "Show common workflow examples",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "Record the Ensemble's Call",
					commands: []string{
						"auditor record NSE:TCS --entry 3890 --opinion valuator:BUY:0.8 --opinion chartist:SELL:0.55",
						"auditor record INFY --entry 1510 --opinions-file opinions.yaml",
					},
				},
				{
					title: "Daily Cycle",
					commands: []string{
						"auditor                         # verify, report and rebalance",
						"auditor verify                  # Only verify matured horizons",
						"auditor report --lookback 168h  # Rolling performance for a week",
						"auditor rebalance               # Adjust weights (respects cooldown)",
					},
				},
				{
					title: "Review",
					commands: []string{
						"auditor stars                   # Top performers",
						"auditor weights                 # Current weights and bounds",
						"auditor history --adjustments 3 # Counts, recent audits, adjustments",
					},
				},
				{
					title: "Export Data",
					commands: []string{
						"auditor export audits --format csv -o audits.csv",
						"auditor export audits --format yaml --since 2026-03-01",
						"auditor full --json --metrics-file /var/lib/node_exporter/auditor.prom",
					},
				},
			}

			for _, ex := range examples {
				output.Bold("%s", ex.title)
				for _, c := range ex.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", output.Cyan(strings.TrimSpace(parts[0])), output.DimText(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.Cyan(c))
					}
				}
				output.Println()
			}
			return nil
		},
	}
}
