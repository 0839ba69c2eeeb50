package cache

import (
	"context"
	"sync"
	"time"

	"github.com/drg911/htb-pro-card/pkg/profile"
)

// Memory is an in-process TTL store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	return e, ok, nil
}

func (m *Memory) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries[e.Key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
}

type lkg struct {
	profile profile.Profile
	at      time.Time
}

// MemoryFallback is a process-lifetime last-known-good store.
type MemoryFallback struct {
	mu    sync.RWMutex
	slots map[string]lkg
}

func NewMemoryFallback() *MemoryFallback {
	return &MemoryFallback{slots: make(map[string]lkg)}
}

func (m *MemoryFallback) SaveLastKnownGood(_ context.Context, key string, p profile.Profile, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.slots[key]; ok && at.Before(cur.at) {
		return nil
	}
	m.slots[key] = lkg{profile: p, at: at}
	return nil
}

func (m *MemoryFallback) LastKnownGood(_ context.Context, key string) (profile.Profile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[key]
	return s.profile, ok, nil
}
