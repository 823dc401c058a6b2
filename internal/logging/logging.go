// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "alpha-auditor", "logs", "auditor.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, or fallback if none is set.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return fallback
}

// WithPrediction adds a prediction key to the logger context.
func WithPrediction(logger zerolog.Logger, key string) zerolog.Logger {
	return logger.With().Str("prediction", key).Logger()
}

// WithHorizon adds a horizon name to the logger context.
func WithHorizon(logger zerolog.Logger, horizon string) zerolog.Logger {
	return logger.With().Str("horizon", horizon).Logger()
}

// WithProducer adds a producer ID to the logger context.
func WithProducer(logger zerolog.Logger, producerID string) zerolog.Logger {
	return logger.With().Str("producer", producerID).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogVerification logs a verified (prediction, horizon) pair.
func LogVerification(logger zerolog.Logger, key, horizon string, entry, realized, accuracy float64, failureType string) {
	logger.Info().
		Str("event", "verification").
		Str("prediction", key).
		Str("horizon", horizon).
		Float64("entry_value", entry).
		Float64("realized_value", realized).
		Float64("accuracy", accuracy).
		Str("failure_type", failureType).
		Msg("Prediction verified")
}

// LogAdjustment logs a weight change for one producer.
func LogAdjustment(logger zerolog.Logger, producerID string, oldWeight, newWeight float64) {
	logger.Info().
		Str("event", "weight_adjustment").
		Str("producer", producerID).
		Float64("old_weight", oldWeight).
		Float64("new_weight", newWeight).
		Msg("Weight adjusted")
}

// LogFetch logs an outcome fetch.
func LogFetch(logger zerolog.Logger, source, instrument string, date time.Time, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "outcome_fetch").
		Str("source", source).
		Str("instrument", instrument).
		Str("date", date.Format("2006-01-02")).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Outcome fetch failed")
	} else {
		event.Msg("Outcome fetch completed")
	}
}
