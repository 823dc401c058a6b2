package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"alpha-auditor/internal/config"
	"alpha-auditor/internal/logging"
	"alpha-auditor/internal/metrics"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-03-01"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "auditor",
		Short: "Alpha Auditor - performance auditing for an ensemble of signal producers",
		Long: `Alpha Auditor records ensemble predictions, verifies them against realized
closing prices at fixed horizons, scores every producer, and rebalances the
ensemble weights within per-producer bounds.

Running 'auditor' with no command performs the full cycle: verify, report, rebalance.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return app.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil {
				return nil
			}
			path, _ := cmd.Flags().GetString("metrics-file")
			if path == "" {
				path = app.Config.Metrics.Textfile
			}
			if err := app.Metrics.WriteTextfile(path); err != nil {
				app.Logger.Warn().Err(err).Str("path", path).Msg("Failed to write metrics textfile")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFull(cmd, app)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/alpha-auditor)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("metrics-file", "", "write Prometheus metrics to this textfile after the command")

	addAuditCommands(rootCmd, app)
	addReportCommands(rootCmd, app)
	addExportCommands(rootCmd, app)
	addCoreCommands(rootCmd, app)

	return rootCmd
}

func (a *App) load(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.Logger = logging.NewLoggerWithConfig(cfg.Logging)

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	if a.Metrics == nil {
		a.Metrics = metrics.New()
	}
	a.Logger.Debug().Str("config_dir", cfg.Dir()).Msg("Configuration loaded")
	return nil
}

// Execute runs the CLI with args and returns the process exit code. Failures
// are rendered as structured reasons on stderr, or as JSON on stdout with --json.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := &App{Logger: zerolog.Nop()}
	rootCmd := NewRootCmd(app)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if closeErr := app.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		return 0
	}

	app.Logger.Error().Err(err).Msg("Command failed")
	jsonMode, _ := rootCmd.PersistentFlags().GetBool("json")
	out := &Output{writer: stderr, jsonMode: jsonMode}
	if jsonMode {
		out.writer = stdout
	}
	out.Failure(err)
	return 1
}
