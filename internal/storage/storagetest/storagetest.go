// Package storagetest provides a conformance suite for storage backends and
// a recording store for asserting on writes.
package storagetest

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// Conformance exercises the storage.Store contract against a fresh store
// returned by newStore for each subtest.
func Conformance(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("GetItem missing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetItem("missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetItem() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("SetItem then GetItem", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetItem("courseware:a", `{"x":1}`); err != nil {
			t.Fatalf("SetItem() error = %v", err)
		}
		got, err := s.GetItem("courseware:a")
		if err != nil {
			t.Fatalf("GetItem() error = %v", err)
		}
		if got != `{"x":1}` {
			t.Errorf("GetItem() = %q, want %q", got, `{"x":1}`)
		}
	})

	t.Run("SetItem overwrites", func(t *testing.T) {
		s := newStore(t)
		_ = s.SetItem("k", "one")
		if err := s.SetItem("k", "two"); err != nil {
			t.Fatalf("SetItem() error = %v", err)
		}
		got, _ := s.GetItem("k")
		if got != "two" {
			t.Errorf("GetItem() = %q, want two", got)
		}
	})

	t.Run("RemoveItem is idempotent", func(t *testing.T) {
		s := newStore(t)
		_ = s.SetItem("k", "v")
		if err := s.RemoveItem("k"); err != nil {
			t.Fatalf("RemoveItem() error = %v", err)
		}
		if err := s.RemoveItem("k"); err != nil {
			t.Fatalf("second RemoveItem() error = %v", err)
		}
		if _, err := s.GetItem("k"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetItem() after remove error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Keys lists stored keys", func(t *testing.T) {
		s := newStore(t)
		want := []string{"courseware:quiz:progress:a", "courseware:quiz:progress:b", "courseware:quiz:results"}
		for _, k := range want {
			if err := s.SetItem(k, "{}"); err != nil {
				t.Fatalf("SetItem(%q) error = %v", k, err)
			}
		}
		got, err := s.Keys()
		if err != nil {
			t.Fatalf("Keys() error = %v", err)
		}
		sort.Strings(got)
		if len(got) != len(want) {
			t.Fatalf("Keys() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("empty value round trips", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetItem("empty", ""); err != nil {
			t.Fatalf("SetItem() error = %v", err)
		}
		got, err := s.GetItem("empty")
		if err != nil {
			t.Fatalf("GetItem() error = %v", err)
		}
		if got != "" {
			t.Errorf("GetItem() = %q, want empty", got)
		}
	})
}

// Recorder wraps a Store, counting writes per key and optionally failing
// every write with FailWith.
type Recorder struct {
	storage.Store

	mu       sync.Mutex
	writes   map[string][]string
	failWith error
}

// NewRecorder wraps inner
func NewRecorder(inner storage.Store) *Recorder {
	return &Recorder{Store: inner, writes: make(map[string][]string)}
}

// FailWith makes subsequent writes return err; nil restores normal writes
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

func (r *Recorder) SetItem(key, value string) error {
	r.mu.Lock()
	failWith := r.failWith
	r.mu.Unlock()

	if failWith != nil {
		return failWith
	}
	if err := r.Store.SetItem(key, value); err != nil {
		return err
	}

	r.mu.Lock()
	r.writes[key] = append(r.writes[key], value)
	r.mu.Unlock()
	return nil
}

// Writes returns every successful value written under key, oldest first
func (r *Recorder) Writes(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes[key]...)
}
