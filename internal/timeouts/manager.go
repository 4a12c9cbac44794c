// Package timeouts tracks named timers so components can replace or clear
// them without holding on to timer handles.
package timeouts

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	id   uint64
	stop func()
}

// Manager owns a set of named timeouts and intervals. Registering a name that
// is already active replaces the previous timer.
type Manager struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[string]entry
	logger  *zap.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		entries: make(map[string]entry),
		logger:  logger,
	}
}

// SetTimeout runs fn once after d.
func (m *Manager) SetTimeout(name string, d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(name)
	id := m.nextIDLocked()
	t := time.AfterFunc(d, func() {
		if !m.release(name, id) {
			return
		}
		fn()
	})
	m.entries[name] = entry{id: id, stop: func() { t.Stop() }}
}

// SetInterval runs fn every d until cleared.
func (m *Manager) SetInterval(name string, d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(name)
	id := m.nextIDLocked()
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !m.isCurrent(name, id) {
					return
				}
				fn()
			}
		}
	}()
	m.entries[name] = entry{id: id, stop: func() {
		ticker.Stop()
		close(done)
	}}
	m.logger.Debug("interval registered", zap.String("name", name), zap.Duration("every", d))
}

// Clear stops the named timer, if any.
func (m *Manager) Clear(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(name)
}

// ClearAll stops every timer.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.entries {
		m.clearLocked(name)
	}
}

// IsActive reports whether name is registered.
func (m *Manager) IsActive(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[name]
	return ok
}

// Len returns the number of active timers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) clearLocked(name string) {
	if e, ok := m.entries[name]; ok {
		e.stop()
		delete(m.entries, name)
	}
}

func (m *Manager) nextIDLocked() uint64 {
	m.nextID++
	return m.nextID
}

func (m *Manager) isCurrent(name string, id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	return ok && e.id == id
}

// release drops a fired timeout if it is still the current registration.
func (m *Manager) release(name string, id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok || e.id != id {
		return false
	}
	delete(m.entries, name)
	return true
}
