package memory

import (
	"sync"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// Store keeps entries in a map. A non-zero quota bounds the total size of
// keys plus values in bytes, mimicking a browser storage quota.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	quota   int
	used    int
}

// Option configures a Store
type Option func(*Store)

// WithQuota limits the total stored bytes
func WithQuota(bytes int) Option {
	return func(s *Store) {
		s.quota = bytes
	}
}

// New creates an empty in-memory store
func New(opts ...Option) *Store {
	s := &Store{entries: make(map[string]string)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetItem(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used
	if old, ok := s.entries[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)

	if s.quota > 0 && used > s.quota {
		return storage.ErrQuotaExceeded
	}

	s.entries[key] = value
	s.used = used
	return nil
}

func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		s.used -= len(key) + len(old)
		delete(s.entries, key)
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len returns the number of stored entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ storage.Store = (*Store)(nil)
