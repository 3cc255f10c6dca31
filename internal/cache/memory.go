package cache

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultTTL bounds response staleness when none is configured.
	DefaultTTL = 60 * time.Second

	// DefaultMaxEntries caps the in-memory cache size.
	DefaultMaxEntries = 4096
)

// Memory is a process-local cache. Expired entries are dropped lazily on
// access; when the cache is full, new entries are rejected rather than
// evicting live ones.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	ttl time.Duration
	max int
	now func() time.Time
}

type memoryEntry struct {
	entry   *Entry
	expires time.Time
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMaxEntries caps how many responses are held at once.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.max = n
		}
	}
}

// NewMemory creates an in-process response cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     DefaultTTL,
		max:     DefaultMaxEntries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	me, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && m.now().Before(me.expires) {
		cacheHits.WithLabelValues("memory").Inc()
		return me.entry, true, nil
	}
	if ok {
		m.mu.Lock()
		// Re-check: a writer may have refreshed the key meanwhile.
		if cur, still := m.entries[key]; still && !m.now().Before(cur.expires) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}
	cacheMisses.WithLabelValues("memory").Inc()
	return nil, false, nil
}

func (m *Memory) Set(_ context.Context, key string, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.max {
		m.sweepLocked()
		if len(m.entries) >= m.max {
			return nil // full of live entries; caching is best-effort
		}
	}
	m.entries[key] = memoryEntry{entry: e, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

// sweepLocked drops expired entries. Callers hold the write lock.
func (m *Memory) sweepLocked() {
	now := m.now()
	for key, me := range m.entries {
		if !now.Before(me.expires) {
			delete(m.entries, key)
		}
	}
}
