// Package editor tracks editable code buffers: their dirty state, debounced
// auto-save to a storage.Store, and static validation.
package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// KeyPrefix namespaces persisted buffers in the shared store
const KeyPrefix = "courseware:editor:"

// DefaultAutoSaveDelay is the quiet period before an edit is persisted
const DefaultAutoSaveDelay = time.Second

// timestampLayout matches the ISO-8601 form browsers produce
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrNoAutoSaveKey is returned when saving a session without an auto-save key
	ErrNoAutoSaveKey = errors.New("no auto-save key configured")

	// ErrSessionClosed is returned when saving a session after Close
	ErrSessionClosed = errors.New("editor session closed")
)

// Config describes a new session
type Config struct {
	InitialValue string
	// AutoSaveKey enables persistence when non-empty
	AutoSaveKey string
	// AutoSaveDelay defaults to DefaultAutoSaveDelay
	AutoSaveDelay time.Duration
	Language      string

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// savedBuffer is the persisted form of a buffer
type savedBuffer struct {
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
	Language  string `json:"language"`
}

// Session is one editable buffer. It is safe for concurrent use.
type Session struct {
	store    storage.Store
	clock    clockwork.Clock
	logger   *slog.Logger
	key      string
	delay    time.Duration
	language string
	initial  string

	// saveMu serializes writes so two saves never overlap
	saveMu sync.Mutex

	mu          sync.Mutex
	value       string
	baseline    string
	saving      bool
	lastSavedAt time.Time
	timer       clockwork.Timer
	generation  uint64
	closed      bool
}

// New creates a session. With an auto-save key and a prior save under it,
// the buffer starts from the saved value.
func New(store storage.Store, cfg Config) *Session {
	s := &Session{
		store:    store,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		delay:    cfg.AutoSaveDelay,
		language: cfg.Language,
		initial:  cfg.InitialValue,
		value:    cfg.InitialValue,
		baseline: cfg.InitialValue,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.delay <= 0 {
		s.delay = DefaultAutoSaveDelay
	}
	if cfg.AutoSaveKey != "" {
		s.key = KeyPrefix + cfg.AutoSaveKey
		s.hydrate()
	}
	return s
}

func (s *Session) hydrate() {
	raw, err := s.store.GetItem(s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to load saved editor content", "key", s.key, "error", err)
		}
		return
	}

	var saved savedBuffer
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		s.logger.Warn("ignoring malformed saved editor content", "key", s.key, "error", err)
		return
	}

	s.value = saved.Value
	s.baseline = saved.Value
	if ts, err := time.Parse(time.RFC3339Nano, saved.Timestamp); err == nil {
		s.lastSavedAt = ts
	}
}

// SetValue replaces the buffer contents. A dirty buffer with an auto-save
// key schedules a save after the quiet period, replacing any pending one.
func (s *Session) SetValue(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = value
	if s.closed || s.key == "" {
		return
	}
	if s.value == s.baseline {
		s.cancelPendingLocked()
		return
	}
	s.scheduleAutoSaveLocked()
}

// scheduleAutoSaveLocked restarts the debounce timer under a new generation.
// A timer whose generation is no longer current does nothing when it fires.
func (s *Session) scheduleAutoSaveLocked() {
	s.cancelPendingLocked()
	gen := s.generation
	s.timer = s.clock.AfterFunc(s.delay, func() {
		s.autoSave(gen)
	})
}

func (s *Session) cancelPendingLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) autoSave(gen uint64) {
	s.mu.Lock()
	current := gen == s.generation && !s.closed
	if current {
		s.timer = nil
	}
	s.mu.Unlock()

	if current {
		_ = s.persist()
	}
}

// persist writes the value current at call time. On failure the buffer stays
// dirty so a later save can retry.
func (s *Session) persist() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	value := s.value
	s.saving = true
	s.mu.Unlock()

	now := s.clock.Now()
	data, err := json.Marshal(savedBuffer{
		Value:     value,
		Timestamp: now.UTC().Format(timestampLayout),
		Language:  s.language,
	})
	if err == nil {
		err = s.store.SetItem(s.key, string(data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		s.logger.Warn("editor auto-save failed", "key", s.key, "error", err)
		return fmt.Errorf("save editor content: %w", err)
	}
	s.baseline = value
	s.lastSavedAt = now
	return nil
}

// Save writes the buffer immediately and cancels any pending auto-save
func (s *Session) Save() error {
	if s.key == "" {
		return ErrNoAutoSaveKey
	}
	s.mu.Lock()
	if !s.closed {
		s.cancelPendingLocked()
	}
	s.mu.Unlock()
	return s.persist()
}

// SaveNow is Save reporting only success
func (s *Session) SaveNow() bool {
	return s.Save() == nil
}

// Reset restores the initial value without touching storage
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = s.initial
	s.baseline = s.initial
	s.cancelPendingLocked()
}

// ClearPersisted deletes the saved copy, if any
func (s *Session) ClearPersisted() error {
	if s.key == "" {
		return nil
	}
	if err := s.store.RemoveItem(s.key); err != nil {
		s.logger.Warn("failed to clear saved editor content", "key", s.key, "error", err)
		return fmt.Errorf("clear editor content: %w", err)
	}

	s.mu.Lock()
	s.lastSavedAt = time.Time{}
	s.mu.Unlock()
	return nil
}

// Close stops any pending auto-save. No write happens after Close returns
// unless one was already in progress. Persisted content is kept.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancelPendingLocked()
}

// Validate checks the buffer for syntax errors and style problems
func (s *Session) Validate() ValidationResult {
	return Validate(s.Value(), s.language)
}

// Value returns the current buffer
func (s *Session) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// IsDirty reports whether the buffer differs from its baseline: the initial
// value, or the last value saved. Once a save succeeds, typing the initial
// value back counts as a change, since it no longer matches what is stored.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value != s.baseline
}

// IsSaving reports whether a write is in flight
func (s *Session) IsSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// LastSavedAt returns the time of the last successful save, zero if none
func (s *Session) LastSavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSavedAt
}

// Language returns the language the buffer is validated as
func (s *Session) Language() string { return s.language }

// AutoSaveKey returns the storage key, empty when persistence is disabled
func (s *Session) AutoSaveKey() string { return s.key }

// LineCount counts newline-separated lines; an empty buffer has one line
func (s *Session) LineCount() int {
	return strings.Count(s.Value(), "\n") + 1
}

// CharacterCount counts Unicode code points
func (s *Session) CharacterCount() int {
	return utf8.RuneCountInString(s.Value())
}

// IsEmpty reports whether the buffer holds only whitespace
func (s *Session) IsEmpty() bool {
	return strings.TrimSpace(s.Value()) == ""
}

// State is a point-in-time view of a session
type State struct {
	Value          string     `json:"value"`
	Language       string     `json:"language"`
	IsDirty        bool       `json:"isDirty"`
	IsSaving       bool       `json:"isSaving"`
	LastSavedAt    *time.Time `json:"lastSavedAt,omitempty"`
	LineCount      int        `json:"lineCount"`
	CharacterCount int        `json:"characterCount"`
	IsEmpty        bool       `json:"isEmpty"`
	AutoSave       bool       `json:"autoSave"`
}

// State captures the session's current state
func (s *Session) State() State {
	s.mu.Lock()
	value := s.value
	st := State{
		Value:    value,
		Language: s.language,
		IsDirty:  value != s.baseline,
		IsSaving: s.saving,
		AutoSave: s.key != "",
	}
	if !s.lastSavedAt.IsZero() {
		t := s.lastSavedAt
		st.LastSavedAt = &t
	}
	s.mu.Unlock()

	st.LineCount = strings.Count(value, "\n") + 1
	st.CharacterCount = utf8.RuneCountInString(value)
	st.IsEmpty = strings.TrimSpace(value) == ""
	return st
}
