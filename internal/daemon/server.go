package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/felixgeelhaar/courseware/internal/config"
	"github.com/felixgeelhaar/courseware/internal/editor"
	"github.com/felixgeelhaar/courseware/internal/quiz"
	"github.com/felixgeelhaar/courseware/internal/storage"
)

// Version is reported by the health and status endpoints
var Version = "dev"

// Server represents the courseware daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router chi.Router
	logger *slog.Logger
	clock  clockwork.Clock

	quiz    *quiz.Cache
	editors *editor.Manager
	source  quiz.QuestionSource
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config *config.LocalConfig
	// Store backs both the quiz cache and editor sessions
	Store storage.Store
	// Source selects questions on a cache miss. Nil disables selection.
	Source quiz.QuestionSource
	// Publisher is notified of recorded results. Optional.
	Publisher quiz.ResultPublisher

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// NewServer creates a new daemon server
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		cfg.Config = config.DefaultLocalConfig()
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("server requires a store")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg.Config,
		logger: cfg.Logger,
		clock:  cfg.Clock,
		source: cfg.Source,
	}

	opts := QuizOptions(cfg.Config.Quiz, cfg.Clock, cfg.Logger)
	if cfg.Publisher != nil {
		opts = append(opts, quiz.WithPublisher(cfg.Publisher))
	}
	s.quiz = quiz.New(cfg.Store, opts...)

	s.editors = editor.NewManager(cfg.Store,
		editor.WithClock(cfg.Clock),
		editor.WithLogger(cfg.Logger),
		editor.WithDefaultDelay(cfg.Config.Editor.AutoSaveDelay()),
	)

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	return s, nil
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(correlationIDMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)

	rl := s.cfg.Daemon.RateLimit
	if general := s.limiterFor(rl.RequestsPerMinute, rl.BurstMultiplier); general != nil {
		r.Use(s.rateLimitMiddleware(general))
	}
	var validateHandler http.Handler = http.HandlerFunc(s.handleValidateSession)
	if strict := s.limiterFor(rl.ValidateRequestsPerMinute, rl.BurstMultiplier); strict != nil {
		validateHandler = s.rateLimitMiddleware(strict)(validateHandler)
	}

	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/status", s.handleStatus)

	r.Route("/v1/quiz", func(r chi.Router) {
		r.Get("/results", s.handleListResults)
		r.Post("/results", s.handleRecordResult)
		r.Get("/stats", s.handleStatistics)
		r.Get("/topics/summary", s.handleTopicSummaries)

		r.Get("/{topic}/questions", s.handleGetQuestions)
		r.Put("/{topic}/questions", s.handlePutQuestions)

		r.Get("/{topic}/progress", s.handleGetProgress)
		r.Put("/{topic}/progress", s.handleSaveProgress)
		r.Delete("/{topic}/progress", s.handleClearProgress)

		r.Get("/{topic}/result", s.handleGetResult)
	})

	r.Route("/v1/cache", func(r chi.Router) {
		r.Get("/", s.handleInspect)
		r.Delete("/", s.handleWipe)
		r.Get("/offline", s.handleOfflineTopics)
	})

	r.Route("/v1/editor/sessions", func(r chi.Router) {
		r.Post("/", s.handleOpenSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)
			r.Put("/value", s.handleSetValue)
			r.Post("/save", s.handleSaveSession)
			r.Post("/reset", s.handleResetSession)
			r.Delete("/persisted", s.handleClearPersisted)
			r.Method(http.MethodGet, "/validate", validateHandler)
		})
	})

	s.router = r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting courseware daemon",
		"addr", s.server.Addr,
		"storage", s.cfg.Storage.Backend,
		"events", s.cfg.Events.Enabled,
	)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then closes every open editor session
// so no auto-save fires after the daemon exits
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)
	s.editors.CloseAll()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if !s.quiz.Admin.Inspect().Available {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.jsonResponse(w, code, map[string]any{
		"status":    status,
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":          "running",
		"version":         Version,
		"storage":         s.cfg.Storage.Backend,
		"events":          s.cfg.Events.Enabled,
		"editor_sessions": s.editors.Len(),
	})
}

// QuizOptions translates the quiz configuration into cache options
func QuizOptions(qc config.QuizConfig, clock clockwork.Clock, logger *slog.Logger) []quiz.Option {
	return []quiz.Option{
		quiz.WithClock(clock),
		quiz.WithLogger(logger),
		quiz.WithQuestionTTL(qc.QuestionTTL),
		quiz.WithProgressTTL(qc.ProgressTTL),
		quiz.WithMaxTopics(qc.MaxTopics),
		quiz.WithMaxResults(qc.MaxResults),
		quiz.WithSchemaVersion(qc.SchemaVersion),
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// writeResult maps a best-effort write outcome onto a response
func (s *Server) writeResult(w http.ResponseWriter, res quiz.WriteResult) {
	if !res.Stored {
		s.jsonError(w, http.StatusInsufficientStorage, "not stored", res.Err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"stored": true})
}
