package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// applyEnv overlays COURSEWARE_* variables. A .env file in the working
// directory is loaded first; variables already set in the process win.
func applyEnv(cfg *LocalConfig) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg.Daemon.Port = getEnvInt("COURSEWARE_PORT", cfg.Daemon.Port)
	cfg.Daemon.Bind = getEnv("COURSEWARE_BIND", cfg.Daemon.Bind)
	cfg.Daemon.LogLevel = getEnv("COURSEWARE_LOG_LEVEL", cfg.Daemon.LogLevel)

	cfg.Storage.Backend = getEnv("COURSEWARE_STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Path = getEnv("COURSEWARE_STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.Driver = getEnv("COURSEWARE_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = getEnv("COURSEWARE_STORAGE_DSN", cfg.Storage.DSN)
	cfg.Storage.Resilient = getEnvBool("COURSEWARE_STORAGE_RESILIENT", cfg.Storage.Resilient)
	cfg.Storage.Redis.Addr = getEnv("COURSEWARE_REDIS_ADDR", cfg.Storage.Redis.Addr)
	cfg.Storage.Redis.Password = getEnv("COURSEWARE_REDIS_PASSWORD", cfg.Storage.Redis.Password)
	cfg.Storage.Redis.DB = getEnvInt("COURSEWARE_REDIS_DB", cfg.Storage.Redis.DB)

	cfg.Editor.AutoSaveDelayMS = getEnvInt("COURSEWARE_AUTOSAVE_DELAY_MS", cfg.Editor.AutoSaveDelayMS)

	if url := getEnv("COURSEWARE_AMQP_URL", ""); url != "" {
		cfg.Events.URL = url
		cfg.Events.Enabled = true
	}
	cfg.Events.Queue = getEnv("COURSEWARE_AMQP_QUEUE", cfg.Events.Queue)

	cfg.Content.Dir = getEnv("COURSEWARE_CONTENT_DIR", cfg.Content.Dir)
	cfg.Content.QuestionsPerQuiz = getEnvInt("COURSEWARE_QUESTIONS_PER_QUIZ", cfg.Content.QuestionsPerQuiz)

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
