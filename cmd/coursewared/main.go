package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/courseware/internal/config"
	"github.com/felixgeelhaar/courseware/internal/content"
	"github.com/felixgeelhaar/courseware/internal/daemon"
	"github.com/felixgeelhaar/courseware/internal/events"
	"github.com/felixgeelhaar/courseware/internal/quiz"
	"github.com/felixgeelhaar/courseware/internal/storage"
	"github.com/felixgeelhaar/courseware/internal/storage/backend"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFileName = "coursewared.pid"

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("ensure courseware dir: %w", err)
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logFile, err := setupLogging(dir, parseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()
	logger := slog.Default()

	pidPath := filepath.Join(dir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := backend.Open(openCtx, dir, cfg.Storage, logger)
	openCancel()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := storage.Close(store); err != nil {
			logger.Warn("failed to close storage", "error", err)
		}
	}()

	// Use ./questions when present, otherwise the configured directory
	questionsPath := "./questions"
	if _, err := os.Stat(questionsPath); os.IsNotExist(err) {
		questionsPath = config.ResolvePath(dir, cfg.Content.Dir)
	}
	registry := content.NewRegistry(content.NewLoader(questionsPath),
		content.WithQuestionsPerQuiz(cfg.Content.QuestionsPerQuiz))
	if err := registry.Load(); err != nil {
		logger.Warn("no question banks loaded; serving cached questions only", "path", questionsPath, "error", err)
	} else {
		logger.Info("question banks loaded", "path", questionsPath, "topics", len(registry.ListTopics()))
	}

	var publisher quiz.ResultPublisher
	if cfg.Events.Enabled {
		conn, err := events.NewConnection(cfg.Events.URL, logger, cfg.Events.Queue)
		if err != nil {
			logger.Warn("event publishing disabled", "error", err)
		} else {
			defer conn.Close()
			publisher = events.NewPublisher(conn, cfg.Events.Queue, logger)
		}
	}

	daemon.Version = Version
	server, err := daemon.NewServer(ctx, daemon.ServerConfig{
		Config:    cfg,
		Store:     store,
		Source:    registry,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("daemon stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs a default logger writing JSON to
// logs/coursewared.log and text to stderr
func setupLogging(dir string, level slog.Level) (*os.File, error) {
	logPath := filepath.Join(dir, "logs", "coursewared.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	slog.SetDefault(slog.New(&multiHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(logFile, opts),
			slog.NewTextHandler(os.Stderr, opts),
		},
	}))

	return logFile, nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// multiHandler fans records out to every handler that accepts the level
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			errs = append(errs, handler.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
