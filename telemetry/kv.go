package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"
)

// KV is the ephemeral telemetry backing store: a namespaced key-value store
// of lists with most-recent-first reads, prefix scans and time-boxed
// retention. Implementations must be safe for concurrent use and are treated
// as best-effort: callers degrade on error instead of propagating it.
type KV interface {
	// LPush prepends values to the list at key, newest first.
	LPush(ctx context.Context, key string, values ...string) error

	// LRange returns up to limit entries from the list at key, most recent
	// first. A missing key yields an empty slice.
	LRange(ctx context.Context, key string, limit int) ([]string, error)

	// Delete removes the given keys, returning how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Expire marks a key for removal after ttl.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// PurgeOlderThan removes list entries older than age and reaps expired
	// keys, returning the number of entries removed.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// entry is one list element with its insertion timestamp, used for retention.
type entry struct {
	value string
	at    time.Time
}

// MemoryKV is the in-process KV implementation. It keeps all lists in a map
// guarded by an RWMutex and is the default ephemeral store for tests,
// examples and single-process deployments. A networked store can be swapped
// in behind the KV interface without touching the sink.
type MemoryKV struct {
	mu      sync.RWMutex
	lists   map[string][]entry
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryKV returns an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		lists:   make(map[string][]entry),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// LPush prepends values to the list at key.
func (m *MemoryKV) LPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, v := range values {
		m.lists[key] = append([]entry{{value: v, at: now}}, m.lists[key]...)
	}
	return nil
}

// LRange returns up to limit entries, most recent first.
func (m *MemoryKV) LRange(_ context.Context, key string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keyExpiredLocked(key) {
		return []string{}, nil
	}
	list := m.lists[key]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]string, 0, limit)
	for _, e := range list[:limit] {
		out = append(out, e.value)
	}
	return out, nil
}

// Delete removes the given keys.
func (m *MemoryKV) Delete(_ context.Context, keys ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for _, k := range keys {
		if _, ok := m.lists[k]; ok {
			delete(m.lists, k)
			delete(m.expires, k)
			removed++
		}
	}
	return removed, nil
}

// Keys returns all keys with the given prefix.
func (m *MemoryKV) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.lists {
		if strings.HasPrefix(k, prefix) && !m.keyExpiredLocked(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Expire marks a key for removal after ttl.
func (m *MemoryKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = m.now().Add(ttl)
	return nil
}

// PurgeOlderThan removes entries older than age and reaps expired keys.
func (m *MemoryKV) PurgeOlderThan(_ context.Context, age time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-age)
	removed := 0
	for k, list := range m.lists {
		if exp, ok := m.expires[k]; ok && m.now().After(exp) {
			removed += len(list)
			delete(m.lists, k)
			delete(m.expires, k)
			continue
		}
		kept := list[:0]
		for _, e := range list {
			if e.at.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(m.lists, k)
		} else {
			m.lists[k] = kept
		}
	}
	return removed, nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryKV) Ping(context.Context) error { return nil }

// Len returns the number of live keys. Intended for tests and health checks.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lists)
}

func (m *MemoryKV) keyExpiredLocked(key string) bool {
	exp, ok := m.expires[key]
	return ok && m.now().After(exp)
}
