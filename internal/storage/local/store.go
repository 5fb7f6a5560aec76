package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

const fileExt = ".json"

// record is the on-disk envelope for a single key
type record struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Store provides thread-safe key-value storage with one JSON file per key
type Store struct {
	basePath string
	mu       sync.RWMutex
}

// NewStore creates a new local JSON store
func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// path maps a key to its file. Keys are path-escaped so a '/' in a key
// cannot leave the base directory.
func (s *Store) path(key string) string {
	return filepath.Join(s.basePath, url.PathEscape(key)+fileExt)
}

// SetItem persists a value, writing to a temp file first so readers never
// observe a partially written entry
func (s *Store) SetItem(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(record{Key: key, Value: value}); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode json: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename file: %w", err)
	}

	return nil
}

// GetItem reads a value
func (s *Store) GetItem(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	var rec record
	if err := json.NewDecoder(file).Decode(&rec); err != nil {
		return "", fmt.Errorf("decode json: %w", err)
	}

	return rec.Value, nil
}

// RemoveItem deletes a key's file
func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}

	return nil
}

// Keys returns all stored keys
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// Exists checks if a key is stored
func (s *Store) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(key))
	return err == nil
}

var _ storage.Store = (*Store)(nil)
