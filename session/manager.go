package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager maintains the registry of connected players.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	logger   *zap.Logger
}

// NewManager creates a new Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		logger:   logger,
	}
}

// Register adds a session. If a previous session exists for the same player,
// it is closed first (handles duplicate login / reconnect).
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[s.ID]; ok && old != s {
		old.Close()
		m.logger.Info("duplicate session displaced", zap.String("player", s.ID.String()))
	}
	m.sessions[s.ID] = s
	m.logger.Info("player session registered",
		zap.String("player", s.ID.String()),
		zap.String("name", s.Name))
}

// Unregister removes s if it is still the current session of its player.
// A session displaced by a reconnect does not evict its replacement.
func (m *Manager) Unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.ID]; ok && cur == s {
		delete(m.sessions, s.ID)
		m.logger.Info("player session unregistered", zap.String("player", s.ID.String()))
	}
}

// Get returns the session for a player, or nil if not connected.
func (m *Manager) Get(id uuid.UUID) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// GetByName finds a connected player by display name (case-insensitive).
func (m *Manager) GetByName(name string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

// IsOnline reports whether a player is currently connected.
func (m *Manager) IsOnline(id uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// Send pushes text to a connected player. It reports false when the player
// is offline or the message could not be queued.
func (m *Manager) Send(id uuid.UUID, text string) bool {
	s := m.Get(id)
	if s == nil {
		return false
	}
	if !s.Send(text) {
		m.logger.Warn("dropped message for slow or closed session", zap.String("player", id.String()))
		return false
	}
	return true
}

// Count returns the number of currently connected sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot slice of all current sessions.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAll closes every session, e.g. on shutdown.
func (m *Manager) CloseAll() {
	for _, s := range m.All() {
		s.Close()
	}
	m.logger.Info("all sessions closed")
}
