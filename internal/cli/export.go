package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"alpha-auditor/internal/errors"
	"alpha-auditor/internal/models"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

func addExportCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit data",
	}
	cmd.AddCommand(newExportAuditsCmd(app))
	rootCmd.AddCommand(cmd)
}

// auditRow is the flat CSV form of an audit record.
type auditRow struct {
	ID                  string  `csv:"id"`
	Timestamp           string  `csv:"timestamp"`
	PredictionKey       string  `csv:"prediction_key"`
	Horizon             string  `csv:"horizon"`
	EntryValue          float64 `csv:"entry_value"`
	RealizedValue       float64 `csv:"realized_value"`
	Accuracy            float64 `csv:"accuracy"`
	Consensus           string  `csv:"consensus"`
	FailureType         string  `csv:"failure_type"`
	ResponsibleProducer string  `csv:"responsible_producer"`
	Recommendation      string  `csv:"recommendation"`
}

func toAuditRows(audits []models.AuditRecord) []*auditRow {
	rows := make([]*auditRow, 0, len(audits))
	for _, a := range audits {
		rows = append(rows, &auditRow{
			ID:                  a.ID,
			Timestamp:           a.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			PredictionKey:       a.PredictionKey,
			Horizon:             a.Horizon,
			EntryValue:          a.EntryValue,
			RealizedValue:       a.RealizedValue,
			Accuracy:            a.Accuracy,
			Consensus:           string(a.Consensus),
			FailureType:         string(a.Attribution.FailureType),
			ResponsibleProducer: a.Attribution.ResponsibleProducer,
			Recommendation:      a.Attribution.Recommendation,
		})
	}
	return rows
}

// writeAudits encodes audits to w in the given format.
func writeAudits(w io.Writer, format string, audits []models.AuditRecord) error {
	if audits == nil {
		audits = []models.AuditRecord{}
	}
	switch format {
	case FormatCSV:
		return gocsv.Marshal(toAuditRows(audits), w)
	case FormatJSON:
		return (&Output{writer: w}).JSON(audits)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(audits); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.NewValidationError("format", format, "want csv, json or yaml", errors.ErrInputValidation)
	}
}

func newExportAuditsCmd(app *App) *cobra.Command {
	var (
		format string
		since  string
		path   string
	)

	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Export audit records as CSV, JSON or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			from, err := parseDate("since", since)
			if err != nil {
				return err
			}

			auditor, err := app.Auditor()
			if err != nil {
				return err
			}
			audits, err := auditor.Audits(cmd.Context(), from)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := writeAudits(w, format, audits); err != nil {
				return err
			}

			if path != "" {
				NewOutput(cmd).Success("✓ Exported %d audits to %s", len(audits), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatCSV, "output format: csv, json, yaml")
	cmd.Flags().StringVar(&since, "since", "", "only audits on or after YYYY-MM-DD")
	cmd.Flags().StringVarP(&path, "output", "o", "", "write to file instead of stdout")
	return cmd
}
