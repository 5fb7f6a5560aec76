// Package backend opens the storage.Store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/courseware/internal/config"
	"github.com/felixgeelhaar/courseware/internal/storage"
	"github.com/felixgeelhaar/courseware/internal/storage/local"
	"github.com/felixgeelhaar/courseware/internal/storage/memory"
	"github.com/felixgeelhaar/courseware/internal/storage/redis"
	"github.com/felixgeelhaar/courseware/internal/storage/resilient"
	"github.com/felixgeelhaar/courseware/internal/storage/sqlite"
	"github.com/felixgeelhaar/courseware/internal/storage/sqlstore"
)

// Open creates the configured backend. Relative paths resolve against dir.
// Remote backends are wrapped with retries and a circuit breaker when
// cfg.Resilient is set.
func Open(ctx context.Context, dir string, cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store  storage.Store
		remote bool
		err    error
	)

	switch cfg.Backend {
	case config.BackendMemory:
		store = memory.New(memory.WithQuota(cfg.QuotaBytes))

	case config.BackendFile:
		path := config.ResolvePath(dir, cfg.Path)
		if path == "" {
			path = filepath.Join(dir, "data", "kv")
		}
		store, err = local.NewStore(path)

	case config.BackendSQLite:
		path := config.ResolvePath(dir, cfg.Path)
		if path == "" {
			path = filepath.Join(dir, "data", "courseware.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		store, err = sqlite.OpenStore(path)

	case config.BackendPostgres:
		driver := cfg.Driver
		if driver == "" {
			driver = "pgx"
		}
		store, err = sqlstore.Open(ctx, driver, cfg.DSN, cfg.Table)
		remote = true

	case config.BackendMySQL:
		store, err = sqlstore.Open(ctx, "mysql", cfg.DSN, cfg.Table)
		remote = true

	case config.BackendRedis:
		store, err = redis.Open(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		remote = true

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Backend, err)
	}

	logger.Info("storage opened", "backend", cfg.Backend, "resilient", remote && cfg.Resilient)

	if remote && cfg.Resilient {
		rc := resilient.DefaultConfig()
		rc.Logger = logger
		return resilient.Wrap(store, rc), nil
	}
	return store, nil
}
