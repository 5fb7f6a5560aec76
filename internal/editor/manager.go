package editor

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// ErrSessionNotFound is returned for unknown session IDs
var ErrSessionNotFound = errors.New("editor session not found")

// Manager owns the open sessions of a process
type Manager struct {
	store        storage.Store
	clock        clockwork.Clock
	logger       *slog.Logger
	defaultDelay time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithClock sets the clock handed to new sessions
func WithClock(c clockwork.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger handed to new sessions
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithDefaultDelay sets the auto-save delay for sessions that do not specify one
func WithDefaultDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.defaultDelay = d }
}

// NewManager creates a manager whose sessions persist to store
func NewManager(store storage.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:        store,
		clock:        clockwork.NewRealClock(),
		logger:       slog.Default(),
		defaultDelay: DefaultAutoSaveDelay,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a session and returns its ID
func (m *Manager) Open(cfg Config) (string, *Session) {
	if cfg.Clock == nil {
		cfg.Clock = m.clock
	}
	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}
	if cfg.AutoSaveDelay <= 0 {
		cfg.AutoSaveDelay = m.defaultDelay
	}

	id := uuid.New().String()
	s := New(m.store, cfg)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Debug("editor session opened", "session_id", id, "language", cfg.Language)
	return id, s
}

// Get returns the session with id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close tears down the session with id and forgets it
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	m.logger.Debug("editor session closed", "session_id", id)
	return nil
}

// CloseAll tears down every session
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		m.logger.Info("closed editor sessions", "count", len(sessions))
	}
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
