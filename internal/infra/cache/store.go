// Package cache holds short-lived parse results keyed by feed URL.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key-value store with per-entry TTL.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryConfig configures a Memory store.
type MemoryConfig struct {
	// MaxKeys bounds the number of entries. Default: 10000
	MaxKeys int
	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// Memory is an in-process Store. Expired entries are dropped lazily on
// access and eagerly when the store is full.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	maxKeys int
	now     func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		maxKeys: cfg.MaxKeys,
		now:     cfg.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	buf := make([]byte, len(value))
	copy(buf, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxKeys {
		m.evictLocked()
	}
	m.entries[key] = memoryEntry{value: buf, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// evictLocked removes expired entries, or the one closest to expiry when
// nothing has expired yet.
func (m *Memory) evictLocked() {
	now := m.now()
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if len(m.entries) >= m.maxKeys && oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}
