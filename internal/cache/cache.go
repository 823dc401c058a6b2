// Package cache stores fetched market responses so repeated passes do not
// refetch closes that cannot change.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// Cache is a byte-value store with age-bounded reads. Values are JSON
// documents.
type Cache interface {
	// Get returns the value stored under key if it is younger than maxAge.
	// maxAge <= 0 accepts any age.
	Get(key string, maxAge time.Duration) ([]byte, bool)
	Put(key string, value []byte) error
	Close() error
}

type envelope struct {
	StoredAt time.Time       `json:"stored_at"`
	Data     json.RawMessage `json:"data"`
}

func fresh(storedAt, now time.Time, maxAge time.Duration) bool {
	return maxAge <= 0 || now.Sub(storedAt) <= maxAge
}

// Memory is an in-process Cache.
type Memory struct {
	mu    sync.RWMutex
	items map[string]envelope
	now   func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]envelope), now: time.Now}
}

// Get returns a cached value.
func (m *Memory) Get(key string, maxAge time.Duration) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.items[key]
	if !ok || !fresh(e.StoredAt, m.now(), maxAge) {
		return nil, false
	}
	out := make([]byte, len(e.Data))
	copy(out, e.Data)
	return out, true
}

// Put stores a value.
func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := make([]byte, len(value))
	copy(data, value)
	m.items[key] = envelope{StoredAt: m.now(), Data: data}
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
