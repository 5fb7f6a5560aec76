package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/felixgeelhaar/courseware/internal/config"
	"github.com/felixgeelhaar/courseware/internal/content"
	"github.com/felixgeelhaar/courseware/internal/editor"
	"github.com/felixgeelhaar/courseware/internal/quiz"
	"github.com/felixgeelhaar/courseware/internal/storage"
	"github.com/felixgeelhaar/courseware/internal/storage/memory"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// bankSource serves fixed questions and counts selections
type bankSource struct {
	banks    map[string][]quiz.Question
	selected int
}

func (b *bankSource) SelectQuestions(topicID string) ([]quiz.Question, error) {
	qs, ok := b.banks[topicID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", content.ErrTopicNotFound, topicID)
	}
	b.selected++
	return qs, nil
}

// quotaStore rejects every write
type quotaStore struct {
	storage.Store
}

func (quotaStore) SetItem(string, string) error { return storage.ErrQuotaExceeded }

type ServerSuite struct {
	suite.Suite

	store  *memory.Store
	clock  *clockwork.FakeClock
	source *bankSource
	server *Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.store = memory.New()
	s.clock = clockwork.NewFakeClockAt(epoch)
	s.source = &bankSource{banks: map[string][]quiz.Question{
		"closures": {
			{ID: "c1", Question: "What is a closure?", Options: []string{"a", "b"}, CorrectAnswer: 0},
			{ID: "c2", Question: "When is it created?", Options: []string{"a", "b"}, CorrectAnswer: 1},
		},
	}}
	s.server = s.newServer(s.store, s.source)
}

func (s *ServerSuite) TearDownTest() {
	s.server.editors.CloseAll()
}

func (s *ServerSuite) newServer(store storage.Store, source quiz.QuestionSource) *Server {
	cfg := config.DefaultLocalConfig()
	cfg.Daemon.Port = 0

	srv, err := NewServer(context.Background(), ServerConfig{
		Config: cfg,
		Store:  store,
		Source: source,
		Clock:  s.clock,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.Require().NoError(err)
	return srv
}

func (s *ServerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	return s.doOn(s.server, method, path, body)
}

func (s *ServerSuite) doOn(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (s *ServerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/v1/health", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.NotEmpty(rec.Header().Get(CorrelationIDHeader))

	resp := decodeJSON[map[string]any](s.T(), rec)
	s.Equal("healthy", resp["status"])
	s.Equal("2025-03-01T09:00:00Z", resp["timestamp"])
}

func (s *ServerSuite) TestStatus() {
	rec := s.do(http.MethodGet, "/v1/status", nil)
	s.Equal(http.StatusOK, rec.Code)

	resp := decodeJSON[map[string]any](s.T(), rec)
	s.Equal("running", resp["status"])
	s.Equal(config.BackendSQLite, resp["storage"])
	s.EqualValues(0, resp["editor_sessions"])
}

func (s *ServerSuite) TestQuestions_SelectThenCache() {
	rec := s.do(http.MethodGet, "/v1/quiz/closures/questions", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	first := decodeJSON[map[string]any](s.T(), rec)
	s.Equal(false, first["fromCache"])
	s.Len(first["questions"], 2)

	rec = s.do(http.MethodGet, "/v1/quiz/closures/questions", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	second := decodeJSON[map[string]any](s.T(), rec)
	s.Equal(true, second["fromCache"])
	s.Equal(1, s.source.selected)

	// The cached copy expires after a day
	s.clock.Advance(24*time.Hour + time.Millisecond)
	rec = s.do(http.MethodGet, "/v1/quiz/closures/questions", nil)
	third := decodeJSON[map[string]any](s.T(), rec)
	s.Equal(false, third["fromCache"])
	s.Equal(2, s.source.selected)
}

func (s *ServerSuite) TestQuestions_UnknownTopic() {
	rec := s.do(http.MethodGet, "/v1/quiz/generators/questions", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	resp := decodeJSON[map[string]any](s.T(), rec)
	s.Equal("topic not found", resp["error"])
	s.EqualValues(404, resp["status"])
	s.Contains(resp["details"], "generators")
}

func (s *ServerSuite) TestQuestions_PutWithoutSource() {
	srv := s.newServer(memory.New(), nil)

	rec := s.doOn(srv, http.MethodGet, "/v1/quiz/promises/questions", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	body := map[string]any{"questions": []quiz.Question{{ID: "p1", Question: "?", Options: []string{"x"}}}}
	rec = s.doOn(srv, http.MethodPut, "/v1/quiz/promises/questions", body)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.doOn(srv, http.MethodGet, "/v1/quiz/promises/questions", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	resp := decodeJSON[map[string]any](s.T(), rec)
	s.Equal(true, resp["fromCache"])
}

func (s *ServerSuite) TestQuestions_PutRejectsEmpty() {
	rec := s.do(http.MethodPut, "/v1/quiz/closures/questions", map[string]any{"questions": []any{}})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestProgressLifecycle() {
	rec := s.do(http.MethodGet, "/v1/quiz/closures/progress", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	snap := map[string]any{
		"topicId":              "ignored",
		"currentQuestionIndex": 1,
		"userAnswers":          []any{2, nil},
		"score":                1,
		"isActive":             true,
	}
	rec = s.do(http.MethodPut, "/v1/quiz/closures/progress", snap)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/v1/quiz/closures/progress", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	got := decodeJSON[quiz.ProgressSnapshot](s.T(), rec)
	s.Equal("closures", got.TopicID)
	s.Equal(1, got.CurrentQuestionIndex)
	s.Require().Len(got.UserAnswers, 2)
	s.Equal(2, *got.UserAnswers[0])
	s.Nil(got.UserAnswers[1])
	s.Equal(epoch.UnixMilli(), got.Timestamp)

	rec = s.do(http.MethodDelete, "/v1/quiz/closures/progress", nil)
	s.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/v1/quiz/closures/progress", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestProgress_BadBody() {
	req := httptest.NewRequest(http.MethodPut, "/v1/quiz/closures/progress", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestResultsAndStatistics() {
	rec := s.do(http.MethodGet, "/v1/quiz/stats", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	for _, r := range []quiz.AttemptResult{
		{TopicID: "closures", Score: 8, TotalQuestions: 10, Passed: true, CompletionTime: 60000},
		{TopicID: "promises", Score: 4, TotalQuestions: 10, Passed: false, CompletionTime: 30000},
	} {
		rec = s.do(http.MethodPost, "/v1/quiz/results", r)
		s.Require().Equal(http.StatusCreated, rec.Code)
		stored := decodeJSON[quiz.AttemptResult](s.T(), rec)
		s.Equal(epoch.UnixMilli(), stored.Timestamp)
	}

	rec = s.do(http.MethodGet, "/v1/quiz/results", nil)
	list := decodeJSON[struct {
		Results []quiz.AttemptResult `json:"results"`
	}](s.T(), rec)
	s.Len(list.Results, 2)

	rec = s.do(http.MethodGet, "/v1/quiz/closures/result", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(8, decodeJSON[quiz.AttemptResult](s.T(), rec).Score)

	rec = s.do(http.MethodGet, "/v1/quiz/generators/result", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/v1/quiz/stats", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	stats := decodeJSON[quiz.Statistics](s.T(), rec)
	s.Equal(2, stats.TotalAttempts)
	s.Equal(1, stats.PassedAttempts)
	s.Equal(50, stats.PassRate)
	s.InDelta(6.0, stats.AvgScore, 0.001)
	s.EqualValues(45000, stats.AvgCompletionTime)

	rec = s.do(http.MethodGet, "/v1/quiz/stats?topic=promises", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(1, decodeJSON[quiz.Statistics](s.T(), rec).TotalAttempts)

	rec = s.do(http.MethodGet, "/v1/quiz/topics/summary", nil)
	summary := decodeJSON[struct {
		Topics []quiz.TopicSummary `json:"topics"`
	}](s.T(), rec)
	s.Require().Len(summary.Topics, 2)
	s.Equal("closures", summary.Topics[0].TopicID)
	s.Equal(80, summary.Topics[0].Percent)
}

func (s *ServerSuite) TestRecordResult_OlderThanFullLog() {
	for i := 0; i < quiz.DefaultMaxResults; i++ {
		rec := s.do(http.MethodPost, "/v1/quiz/results", quiz.AttemptResult{
			TopicID: "topic-" + strconv.Itoa(i), Score: 1, TotalQuestions: 1, Timestamp: int64(1000 + i),
		})
		s.Require().Equal(http.StatusCreated, rec.Code)
	}

	rec := s.do(http.MethodPost, "/v1/quiz/results",
		quiz.AttemptResult{TopicID: "late", Score: 1, TotalQuestions: 1, Timestamp: 5})
	s.Equal(http.StatusConflict, rec.Code)
	resp := decodeJSON[map[string]any](s.T(), rec)
	s.NotEmpty(resp["error"])

	rec = s.do(http.MethodGet, "/v1/quiz/late/result", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestRecordResult_Validation() {
	tests := []struct {
		name string
		body quiz.AttemptResult
	}{
		{"missing topic", quiz.AttemptResult{Score: 1, TotalQuestions: 2}},
		{"no questions", quiz.AttemptResult{TopicID: "closures"}},
		{"score above total", quiz.AttemptResult{TopicID: "closures", Score: 3, TotalQuestions: 2}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodPost, "/v1/quiz/results", tt.body)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *ServerSuite) TestWritesFailWithFullStorage() {
	srv := s.newServer(quotaStore{Store: memory.New()}, s.source)

	rec := s.doOn(srv, http.MethodPost, "/v1/quiz/results",
		quiz.AttemptResult{TopicID: "closures", Score: 1, TotalQuestions: 2})
	s.Equal(http.StatusInsufficientStorage, rec.Code)
	resp := decodeJSON[map[string]any](s.T(), rec)
	s.Contains(resp["details"], "quota")

	// Selection still succeeds even though caching fails
	rec = s.doOn(srv, http.MethodGet, "/v1/quiz/closures/questions", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *ServerSuite) TestCacheAdministration() {
	s.do(http.MethodGet, "/v1/quiz/closures/questions", nil)
	s.do(http.MethodPut, "/v1/quiz/closures/progress", map[string]any{"currentQuestionIndex": 0, "isActive": true})
	s.do(http.MethodPost, "/v1/quiz/results", quiz.AttemptResult{TopicID: "closures", Score: 2, TotalQuestions: 2, Passed: true})

	rec := s.do(http.MethodGet, "/v1/cache", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	info := decodeJSON[quiz.Inspection](s.T(), rec)
	s.True(info.Available)
	s.Equal(1, info.CachedTopics)
	s.Equal(1, info.Results)
	s.Equal(1, info.ProgressEntries)

	rec = s.do(http.MethodGet, "/v1/cache/offline", nil)
	offline := decodeJSON[struct {
		Topics []string `json:"topics"`
	}](s.T(), rec)
	s.Equal([]string{"closures"}, offline.Topics)

	rec = s.do(http.MethodDelete, "/v1/cache", nil)
	s.Equal(http.StatusOK, rec.Code)

	keys, err := s.store.Keys()
	s.Require().NoError(err)
	s.Empty(keys)
}

func (s *ServerSuite) TestEditorSessionLifecycle() {
	rec := s.do(http.MethodPost, "/v1/editor/sessions", openSessionRequest{
		InitialValue: "const x = 1;",
		AutoSaveKey:  "lesson-1",
		Language:     "javascript",
	})
	s.Require().Equal(http.StatusCreated, rec.Code)
	opened := decodeJSON[sessionResponse](s.T(), rec)
	s.NotEmpty(opened.ID)
	s.False(opened.IsDirty)
	s.True(opened.AutoSave)
	base := "/v1/editor/sessions/" + opened.ID

	rec = s.do(http.MethodPut, base+"/value", map[string]string{"value": "var y = 2;"})
	s.Require().Equal(http.StatusOK, rec.Code)
	s.True(decodeJSON[sessionResponse](s.T(), rec).IsDirty)

	rec = s.do(http.MethodGet, base+"/validate", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	result := decodeJSON[editor.ValidationResult](s.T(), rec)
	s.False(result.IsValid)
	s.NotEmpty(result.Errors)

	rec = s.do(http.MethodPost, base+"/save", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	saved := decodeJSON[sessionResponse](s.T(), rec)
	s.False(saved.IsDirty)
	s.Require().NotNil(saved.LastSavedAt)

	raw, err := s.store.GetItem(editor.KeyPrefix + "lesson-1")
	s.Require().NoError(err)
	s.Contains(raw, `"value":"var y = 2;"`)

	rec = s.do(http.MethodPost, base+"/reset", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("const x = 1;", decodeJSON[sessionResponse](s.T(), rec).Value)

	rec = s.do(http.MethodDelete, base+"/persisted", nil)
	s.Equal(http.StatusNoContent, rec.Code)
	_, err = s.store.GetItem(editor.KeyPrefix + "lesson-1")
	s.ErrorIs(err, storage.ErrNotFound)

	rec = s.do(http.MethodDelete, base, nil)
	s.Equal(http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, base, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestEditorSession_SaveWithoutKey() {
	rec := s.do(http.MethodPost, "/v1/editor/sessions", openSessionRequest{InitialValue: "x"})
	opened := decodeJSON[sessionResponse](s.T(), rec)
	s.Equal("javascript", opened.Language)

	rec = s.do(http.MethodPost, "/v1/editor/sessions/"+opened.ID+"/save", nil)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *ServerSuite) TestEditorSession_SetValueRequiresValue() {
	rec := s.do(http.MethodPost, "/v1/editor/sessions", openSessionRequest{})
	opened := decodeJSON[sessionResponse](s.T(), rec)

	rec = s.do(http.MethodPut, "/v1/editor/sessions/"+opened.ID+"/value", map[string]any{})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestEditorSession_AutoSaveAfterQuietPeriod() {
	rec := s.do(http.MethodPost, "/v1/editor/sessions", openSessionRequest{
		AutoSaveKey:   "lesson-2",
		AutoSaveDelay: 500,
	})
	opened := decodeJSON[sessionResponse](s.T(), rec)

	s.do(http.MethodPut, "/v1/editor/sessions/"+opened.ID+"/value", map[string]string{"value": "let a = 1;"})
	s.clock.Advance(500 * time.Millisecond)

	s.Eventually(func() bool {
		_, err := s.store.GetItem(editor.KeyPrefix + "lesson-2")
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func (s *ServerSuite) TestShutdownClosesEditorSessions() {
	rec := s.do(http.MethodPost, "/v1/editor/sessions", openSessionRequest{AutoSaveKey: "lesson-3"})
	opened := decodeJSON[sessionResponse](s.T(), rec)
	s.do(http.MethodPut, "/v1/editor/sessions/"+opened.ID+"/value", map[string]string{"value": "pending"})

	s.Require().NoError(s.server.Shutdown(context.Background()))
	s.Equal(0, s.server.editors.Len())

	s.clock.Advance(time.Minute)
	s.Never(func() bool {
		_, err := s.store.GetItem(editor.KeyPrefix + "lesson-3")
		return err == nil
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestNewServer_RequiresStore(t *testing.T) {
	_, err := NewServer(context.Background(), ServerConfig{})
	assert.Error(t, err)
}

func TestNewServer_Addr(t *testing.T) {
	cfg := config.DefaultLocalConfig()
	srv, err := NewServer(context.Background(), ServerConfig{Config: cfg, Store: memory.New()})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7433", srv.server.Addr)
}
