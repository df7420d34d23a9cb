package infra

import (
	"fmt"
	"sync"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// MemoryStore keeps settings and sessions in process memory. Nothing survives
// a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]string
	sessions map[string]domain.SessionState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[string]string),
		sessions: make(map[string]domain.SessionState),
	}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// SetAll writes every entry under one lock.
func (m *MemoryStore) SetAll(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.settings[k] = v
	}
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, key)
	return nil
}

// AllSettings returns a copy of every stored setting.
func (m *MemoryStore) AllSettings() (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) LoadSession(id string) (domain.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[id]
	if !ok {
		return domain.SessionState{}, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	return state, nil
}

func (m *MemoryStore) SaveSession(id string, state domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = state
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

var (
	_ domain.SettingsStore = (*MemoryStore)(nil)
	_ domain.SessionStore  = (*MemoryStore)(nil)
)
