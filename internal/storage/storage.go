// Package storage defines the key-value port shared by the quiz stores and
// editor sessions, plus the errors every backend reports.
package storage

import "errors"

var (
	// ErrNotFound is returned when a key is not present
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is returned when a write would exceed the backend's capacity
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store is a durable string-keyed blob store. Implementations must be safe
// for concurrent use.
type Store interface {
	// GetItem returns the value stored under key, or ErrNotFound
	GetItem(key string) (string, error)

	// SetItem writes value under key, replacing any previous value
	SetItem(key, value string) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(key string) error

	// Keys lists every stored key in unspecified order
	Keys() ([]string, error)
}

// Closer is implemented by backends holding connections or handles.
type Closer interface {
	Close() error
}

// Close releases the store's resources if it has any.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
