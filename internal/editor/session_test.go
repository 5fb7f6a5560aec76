package editor_test

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/courseware/internal/editor"
	"github.com/felixgeelhaar/courseware/internal/storage"
	"github.com/felixgeelhaar/courseware/internal/storage/memory"
	"github.com/felixgeelhaar/courseware/internal/storage/storagetest"
)

const (
	lessonKey = "lesson-arrow-functions"
	storedKey = editor.KeyPrefix + lessonKey
	waitFor   = time.Second
	tick      = 5 * time.Millisecond
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newSession(t *testing.T, initial string) (*editor.Session, *storagetest.Recorder, *clockwork.FakeClock) {
	t.Helper()
	rec := storagetest.NewRecorder(memory.New())
	clock := clockwork.NewFakeClockAt(epoch)
	s := editor.New(rec, editor.Config{
		InitialValue: initial,
		AutoSaveKey:  lessonKey,
		Language:     "javascript",
		Clock:        clock,
	})
	t.Cleanup(s.Close)
	return s, rec, clock
}

func writeCount(rec *storagetest.Recorder) func() bool {
	return func() bool { return len(rec.Writes(storedKey)) == 1 }
}

func TestSession_DebounceCoalescesEdits(t *testing.T) {
	s, rec, clock := newSession(t, "")

	s.SetValue("a")
	clock.Advance(300 * time.Millisecond)
	s.SetValue("ab")
	clock.Advance(300 * time.Millisecond)
	s.SetValue("abc")
	clock.Advance(999 * time.Millisecond)

	assert.Empty(t, rec.Writes(storedKey), "no write before the quiet period ends")

	clock.Advance(time.Millisecond)
	require.Eventually(t, writeCount(rec), waitFor, tick)

	var saved map[string]string
	require.NoError(t, json.Unmarshal([]byte(rec.Writes(storedKey)[0]), &saved))
	assert.Equal(t, "abc", saved["value"])
	assert.Equal(t, "javascript", saved["language"])
	assert.Equal(t, "2025-03-01T09:00:01.600Z", saved["timestamp"])

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return len(rec.Writes(storedKey)) > 1 }, 50*time.Millisecond, tick)
}

func TestSession_AutoSaveClearsDirty(t *testing.T) {
	s, rec, clock := newSession(t, "const x = 1;")

	s.SetValue("const x = 2;")
	assert.True(t, s.IsDirty())

	clock.Advance(time.Second)
	require.Eventually(t, writeCount(rec), waitFor, tick)
	require.Eventually(t, func() bool { return !s.IsDirty() }, waitFor, tick)
	assert.False(t, s.IsSaving())
	assert.Equal(t, clock.Now(), s.LastSavedAt())
}

func TestSession_DirtyStateRoundTrip(t *testing.T) {
	s := editor.New(memory.New(), editor.Config{InitialValue: "x"})
	defer s.Close()

	assert.False(t, s.IsDirty())
	s.SetValue("y")
	assert.True(t, s.IsDirty())
	s.Reset()
	assert.False(t, s.IsDirty())
	assert.Equal(t, "x", s.Value())
}

func TestSession_InitialValueAfterSaveIsDirty(t *testing.T) {
	s, rec, clock := newSession(t, "x")

	s.SetValue("y")
	require.True(t, s.SaveNow())
	require.Len(t, rec.Writes(storedKey), 1)

	s.SetValue("x")
	assert.True(t, s.IsDirty(), "stored value is y")

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.Writes(storedKey)) == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return !s.IsDirty() }, waitFor, tick)
}

func TestSession_ResetCancelsPendingSave(t *testing.T) {
	s, rec, clock := newSession(t, "start")

	s.SetValue("edited")
	s.Reset()
	clock.Advance(2 * time.Second)

	assert.Never(t, func() bool { return len(rec.Writes(storedKey)) > 0 }, 50*time.Millisecond, tick)
	assert.Equal(t, "start", s.Value())
}

func TestSession_RevertingEditCancelsPendingSave(t *testing.T) {
	s, rec, clock := newSession(t, "start")

	s.SetValue("edited")
	s.SetValue("start")
	assert.False(t, s.IsDirty())
	clock.Advance(2 * time.Second)

	assert.Never(t, func() bool { return len(rec.Writes(storedKey)) > 0 }, 50*time.Millisecond, tick)
}

func TestSession_CloseCancelsPendingSave(t *testing.T) {
	s, rec, clock := newSession(t, "")

	s.SetValue("draft")
	s.Close()
	clock.Advance(2 * time.Second)

	assert.Never(t, func() bool { return len(rec.Writes(storedKey)) > 0 }, 50*time.Millisecond, tick)
	assert.False(t, s.SaveNow())
	assert.ErrorIs(t, s.Save(), editor.ErrSessionClosed)

	s.Close()
}

func TestSession_SaveNowFailureKeepsDirty(t *testing.T) {
	s, rec, _ := newSession(t, "")

	s.SetValue("let y = 1;")
	rec.FailWith(storage.ErrQuotaExceeded)

	assert.False(t, s.SaveNow())
	assert.True(t, s.IsDirty())
	assert.False(t, s.IsSaving())
	assert.True(t, s.LastSavedAt().IsZero())
	assert.ErrorIs(t, s.Save(), storage.ErrQuotaExceeded)

	rec.FailWith(nil)
	assert.True(t, s.SaveNow())
	assert.False(t, s.IsDirty())
	assert.Len(t, rec.Writes(storedKey), 1)
}

func TestSession_SaveNowCancelsPendingAutoSave(t *testing.T) {
	s, rec, clock := newSession(t, "")

	s.SetValue("typed")
	require.True(t, s.SaveNow())
	clock.Advance(2 * time.Second)

	assert.Never(t, func() bool { return len(rec.Writes(storedKey)) > 1 }, 50*time.Millisecond, tick)
}

// attemptStore counts writes and fails them while failing is set
type attemptStore struct {
	storage.Store
	attempts atomic.Int32
	failing  atomic.Bool
}

func (a *attemptStore) SetItem(key, value string) error {
	a.attempts.Add(1)
	if a.failing.Load() {
		return errors.New("storage unavailable")
	}
	return a.Store.SetItem(key, value)
}

func TestSession_AutoSaveFailureKeepsDirty(t *testing.T) {
	store := &attemptStore{Store: memory.New()}
	store.failing.Store(true)
	clock := clockwork.NewFakeClockAt(epoch)
	s := editor.New(store, editor.Config{AutoSaveKey: lessonKey, Clock: clock})
	defer s.Close()

	s.SetValue("unsaved")
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return store.attempts.Load() == 1 && !s.IsSaving() }, waitFor, tick)
	assert.True(t, s.IsDirty())
	assert.True(t, s.LastSavedAt().IsZero())

	store.failing.Store(false)
	s.SetValue("unsaved!")
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return !s.IsDirty() }, waitFor, tick)
}

func TestSession_WithoutAutoSaveKey(t *testing.T) {
	store := memory.New()
	clock := clockwork.NewFakeClockAt(epoch)
	s := editor.New(store, editor.Config{Clock: clock})
	defer s.Close()

	s.SetValue("anything")
	clock.Advance(5 * time.Second)

	assert.False(t, s.SaveNow())
	assert.ErrorIs(t, s.Save(), editor.ErrNoAutoSaveKey)
	assert.NoError(t, s.ClearPersisted())
	assert.Zero(t, store.Len())
	assert.Empty(t, s.AutoSaveKey())
}

func TestSession_HydratesFromSavedContent(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.SetItem(storedKey,
		`{"value":"saved code","timestamp":"2025-02-28T18:30:00.000Z","language":"javascript"}`))

	s := editor.New(store, editor.Config{InitialValue: "starter", AutoSaveKey: lessonKey})
	defer s.Close()

	assert.Equal(t, "saved code", s.Value())
	assert.False(t, s.IsDirty())
	assert.Equal(t, time.Date(2025, 2, 28, 18, 30, 0, 0, time.UTC), s.LastSavedAt().UTC())

	s.Reset()
	assert.Equal(t, "starter", s.Value())
}

func TestSession_IgnoresMalformedSavedContent(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.SetItem(storedKey, "not json"))

	s := editor.New(store, editor.Config{InitialValue: "starter", AutoSaveKey: lessonKey})
	defer s.Close()

	assert.Equal(t, "starter", s.Value())
	assert.True(t, s.LastSavedAt().IsZero())
}

func TestSession_ClearPersisted(t *testing.T) {
	s, rec, _ := newSession(t, "")
	s.SetValue("x")
	require.True(t, s.SaveNow())
	require.False(t, s.LastSavedAt().IsZero())

	require.NoError(t, s.ClearPersisted())
	assert.True(t, s.LastSavedAt().IsZero())
	_, err := rec.GetItem(storedKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, "x", s.Value(), "clearing storage keeps the buffer")

	require.NoError(t, s.ClearPersisted())
}

func TestSession_Counts(t *testing.T) {
	tests := []struct {
		name  string
		value string
		lines int
		chars int
		empty bool
	}{
		{"empty", "", 1, 0, true},
		{"whitespace", "  \n\t", 2, 4, true},
		{"single line", "let a = 1;", 1, 10, false},
		{"trailing newline", "a\nb\n", 3, 4, false},
		{"multibyte", "const π = '日本';", 1, 15, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := editor.New(memory.New(), editor.Config{InitialValue: tt.value})
			defer s.Close()

			assert.Equal(t, tt.lines, s.LineCount())
			assert.Equal(t, tt.chars, s.CharacterCount())
			assert.Equal(t, tt.empty, s.IsEmpty())

			st := s.State()
			assert.Equal(t, tt.lines, st.LineCount)
			assert.Equal(t, tt.chars, st.CharacterCount)
			assert.Equal(t, tt.empty, st.IsEmpty)
		})
	}
}

func TestSession_State(t *testing.T) {
	s, _, _ := newSession(t, "a")

	st := s.State()
	assert.True(t, st.AutoSave)
	assert.False(t, st.IsDirty)
	assert.Nil(t, st.LastSavedAt)
	assert.Equal(t, "javascript", st.Language)

	s.SetValue("b")
	require.True(t, s.SaveNow())
	st = s.State()
	require.NotNil(t, st.LastSavedAt)
	assert.Equal(t, epoch, *st.LastSavedAt)
}
