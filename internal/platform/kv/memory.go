package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memWindow struct {
	hits []time.Time
	span time.Duration
}

type memEntry struct {
	value   string
	expires time.Time
}

// Memory is a per-process store. State is not shared between instances.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	windows map[string]*memWindow
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memEntry),
		windows: make(map[string]*memWindow),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for entry expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.expired(entry) {
		delete(m.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expires: m.deadline(ttl)}
	return nil
}

func (m *Memory) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[key]; ok && !m.expired(entry) {
		return false, nil
	}
	m.entries[key] = memEntry{value: value, expires: m.deadline(ttl)}
	return true, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || m.expired(entry) {
		m.entries[key] = memEntry{value: "1", expires: m.deadline(ttl)}
		return 1, nil
	}
	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	m.entries[key] = entry
	return n, nil
}

func (m *Memory) Window(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (WindowResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok {
		w = &memWindow{}
		m.windows[key] = w
	}
	w.span = window
	kept := w.hits[:0]
	for _, at := range w.hits {
		if now.Sub(at) < window {
			kept = append(kept, at)
		}
	}
	if len(kept) >= limit {
		w.hits = kept
		res := WindowResult{Allowed: false, Count: len(kept)}
		if len(kept) > 0 {
			res.Oldest = kept[0]
		}
		return res, nil
	}
	kept = append(kept, now)
	w.hits = kept
	return WindowResult{Allowed: true, Count: len(kept), Oldest: kept[0]}, nil
}

// Purge drops expired entries and windows with no live hits.
func (m *Memory) Purge(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for key, entry := range m.entries {
		if !entry.expires.IsZero() && !now.Before(entry.expires) {
			delete(m.entries, key)
			removed++
		}
	}
	for key, w := range m.windows {
		if len(w.hits) == 0 || now.Sub(w.hits[len(w.hits)-1]) >= w.span {
			delete(m.windows, key)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *Memory) expired(entry memEntry) bool {
	return !entry.expires.IsZero() && !m.now().Before(entry.expires)
}
