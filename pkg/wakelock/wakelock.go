// Package wakelock keeps the device display awake while a tour session is
// tracking. Walkers glance at the screen between points; letting it lock
// mid-tour also suspends geolocation on most handhelds.
package wakelock

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrUnsupported is returned on platforms without an idle inhibitor.
var ErrUnsupported = errors.New("wakelock: not supported on this platform")

// Locker talks to one platform inhibitor. Implementations need not be
// idempotent; the Manager takes care of that.
type Locker interface {
	Acquire(reason string) error
	Release() error
}

// Manager wraps a Locker with idempotent acquire/release and makes
// failures non-fatal. Losing the wake lock degrades the experience but
// must never stop a session.
type Manager struct {
	log    *slog.Logger
	locker Locker

	mu   sync.Mutex
	held bool
}

func NewManager() *Manager {
	return &Manager{
		log:    slog.With("component", "wakelock"),
		locker: newPlatformLocker(),
	}
}

// NewManagerWith injects a custom Locker.
func NewManagerWith(l Locker) *Manager {
	return &Manager{log: slog.With("component", "wakelock"), locker: l}
}

// Acquire requests the lock if it is not already held.
func (m *Manager) Acquire(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return
	}
	if err := m.locker.Acquire(reason); err != nil {
		if errors.Is(err, ErrUnsupported) {
			m.log.Debug("Wake lock unavailable", "reason", reason)
		} else {
			m.log.Warn("Wake lock acquire failed", "error", err)
		}
		return
	}
	m.held = true
	m.log.Debug("Wake lock acquired", "reason", reason)
}

// Release drops the lock if held.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		return
	}
	if err := m.locker.Release(); err != nil {
		m.log.Warn("Wake lock release failed", "error", err)
	}
	m.held = false
	m.log.Debug("Wake lock released")
}

func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}
