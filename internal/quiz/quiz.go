// Package quiz persists quiz state over a storage.Store: the per-topic
// question cache, in-flight progress snapshots, and the bounded log of
// completed attempts with its statistics.
//
// Every operation is best-effort. Reads that fail for any reason report the
// entry as absent and writes report a WriteResult instead of an error, so a
// broken or full store degrades to an empty cache.
package quiz

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// Storage keys. Progress snapshots use one key per topic under ProgressKeyPrefix.
const (
	QuestionsKey      = "courseware:quiz:questions"
	ResultsKey        = "courseware:quiz:results"
	ProgressKeyPrefix = "courseware:quiz:progress:"
)

// Defaults
const (
	DefaultQuestionTTL   = 24 * time.Hour
	DefaultProgressTTL   = time.Hour
	DefaultMaxTopics     = 50
	DefaultMaxResults    = 100
	DefaultSchemaVersion = "1.0.0"
)

// Question is one multiple-choice question as selected by the content
// provider. The cache stores it without interpreting it.
type Question struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
}

// WriteResult reports the outcome of a best-effort write. Err is already
// logged when set.
type WriteResult struct {
	Stored bool
	Err    error
}

// Option configures a Cache
type Option func(*settings)

// WithClock sets the time source
func WithClock(c clockwork.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithLogger sets the logger used for failed writes
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithQuestionTTL sets how long a cached question set stays valid
func WithQuestionTTL(d time.Duration) Option {
	return func(s *settings) { s.questionTTL = d }
}

// WithProgressTTL sets how long a progress snapshot stays resumable
func WithProgressTTL(d time.Duration) Option {
	return func(s *settings) { s.progressTTL = d }
}

// WithMaxTopics bounds the number of cached question sets
func WithMaxTopics(n int) Option {
	return func(s *settings) { s.maxTopics = n }
}

// WithMaxResults bounds the result log
func WithMaxResults(n int) Option {
	return func(s *settings) { s.maxResults = n }
}

// WithSchemaVersion sets the version tag written to and required of cached
// question sets
func WithSchemaVersion(v string) Option {
	return func(s *settings) { s.version = v }
}

// WithPublisher registers a publisher notified after each recorded result
func WithPublisher(p ResultPublisher) Option {
	return func(s *settings) { s.publisher = p }
}

type settings struct {
	clock       clockwork.Clock
	logger      *slog.Logger
	questionTTL time.Duration
	progressTTL time.Duration
	maxTopics   int
	maxResults  int
	version     string
	publisher   ResultPublisher
}

func newSettings(opts []Option) *settings {
	s := &settings{
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		questionTTL: DefaultQuestionTTL,
		progressTTL: DefaultProgressTTL,
		maxTopics:   DefaultMaxTopics,
		maxResults:  DefaultMaxResults,
		version:     DefaultSchemaVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.questionTTL <= 0 {
		s.questionTTL = DefaultQuestionTTL
	}
	if s.progressTTL <= 0 {
		s.progressTTL = DefaultProgressTTL
	}
	if s.version == "" {
		s.version = DefaultSchemaVersion
	}
	if s.maxTopics <= 0 {
		s.maxTopics = DefaultMaxTopics
	}
	if s.maxResults <= 0 {
		s.maxResults = DefaultMaxResults
	}
	return s
}

func (s *settings) nowMillis() int64 {
	return s.clock.Now().UnixMilli()
}

// expired reports whether a millisecond timestamp is older than ttl
func (s *settings) expired(ts int64, ttl time.Duration) bool {
	return s.nowMillis()-ts > ttl.Milliseconds()
}

// write marshals v under key, logging and reporting any failure
func (s *settings) write(store storage.Store, key string, v any, attrs ...any) WriteResult {
	data, err := json.Marshal(v)
	if err == nil {
		err = store.SetItem(key, string(data))
	}
	if err != nil {
		s.logger.Warn("quiz cache write failed", append([]any{"key", key, "error", err}, attrs...)...)
		return WriteResult{Err: err}
	}
	return WriteResult{Stored: true}
}

func (s *settings) remove(store storage.Store, key string, attrs ...any) WriteResult {
	if err := store.RemoveItem(key); err != nil {
		s.logger.Warn("quiz cache remove failed", append([]any{"key", key, "error", err}, attrs...)...)
		return WriteResult{Err: err}
	}
	return WriteResult{Stored: true}
}

// read unmarshals the value under key into v. Missing keys, storage errors
// and malformed JSON all report false.
func (s *settings) read(store storage.Store, key string, v any) bool {
	raw, err := store.GetItem(key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Debug("ignoring malformed quiz cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// Cache groups the quiz stores over one shared storage backend. Construct it
// once and pass it to whatever needs quiz state.
type Cache struct {
	Questions *QuestionCache
	Progress  *ProgressStore
	Results   *ResultLog
	Admin     *Admin

	store    storage.Store
	settings *settings
}

// New creates the quiz stores over store
func New(store storage.Store, opts ...Option) *Cache {
	s := newSettings(opts)
	c := &Cache{
		Questions: &QuestionCache{store: store, s: s},
		Progress:  &ProgressStore{store: store, s: s},
		Results:   &ResultLog{store: store, s: s},
		store:     store,
		settings:  s,
	}
	c.Admin = &Admin{store: store, s: s, questions: c.Questions, results: c.Results}
	return c
}

// Store returns the backing store
func (c *Cache) Store() storage.Store {
	return c.store
}
