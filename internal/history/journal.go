// Package history keeps the append-only journal of applied weight adjustments.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"alpha-auditor/internal/models"
)

// FileName is the journal file inside the configured directory.
const FileName = "weight_adjustments.jsonl"

// Config holds journal configuration.
type Config struct {
	Dir        string `mapstructure:"dir"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns the default journal configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Dir:        filepath.Join(home, ".config", "alpha-auditor", "history"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// Journal appends AdjustmentEvents as JSON lines to a rotating file.
type Journal struct {
	writer *lumberjack.Logger
	path   string
	mu     sync.Mutex
}

// NewJournal creates a journal in cfg.Dir.
func NewJournal(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	path := filepath.Join(cfg.Dir, FileName)
	return &Journal{
		path: path,
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
	}, nil
}

// Path returns the active journal file.
func (j *Journal) Path() string {
	return j.path
}

// Append writes one event.
func (j *Journal) Append(_ context.Context, event models.AdjustmentEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing adjustment event: %w", err)
	}
	if _, err := j.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing adjustment event: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest events from the active file, oldest
// first. n <= 0 returns all of them. Lines that do not decode are skipped.
func (j *Journal) Recent(n int) ([]models.AdjustmentEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer f.Close()

	var events []models.AdjustmentEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev models.AdjustmentEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.writer.Close()
}
