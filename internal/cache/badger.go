package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerConfig configures the on-disk cache.
type BadgerConfig struct {
	Path     string
	InMemory bool
	// TTL expires entries inside badger itself; zero keeps them forever.
	TTL    time.Duration
	Logger *zerolog.Logger
}

type badgerLogger struct {
	logger zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}

// Badger is a Cache backed by BadgerDB.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
	now func() time.Time
}

// OpenBadger opens or creates the cache database.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("cache path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With().Str("component", "cache").Logger()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &Badger{db: db, ttl: cfg.TTL, now: time.Now}, nil
}

// Get returns a cached value.
func (b *Badger) Get(key string, maxAge time.Duration) ([]byte, bool) {
	var e envelope
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil || !fresh(e.StoredAt, b.now(), maxAge) {
		return nil, false
	}
	return []byte(e.Data), true
}

// Put stores a value.
func (b *Badger) Put(key string, value []byte) error {
	data, err := json.Marshal(envelope{StoredAt: b.now().UTC(), Data: value})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if b.ttl > 0 {
			entry = entry.WithTTL(b.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}
