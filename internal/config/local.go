package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendRedis    = "redis"
)

// ErrUnknownBackend is returned for a storage backend name that is not supported
var ErrUnknownBackend = errors.New("unknown storage backend")

// LocalConfig holds configuration for the CLI and daemon
type LocalConfig struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Storage StorageConfig `yaml:"storage"`
	Quiz    QuizConfig    `yaml:"quiz"`
	Editor  EditorConfig  `yaml:"editor"`
	Events  EventsConfig  `yaml:"events"`
	Content ContentConfig `yaml:"content"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port      int             `yaml:"port"`
	Bind      string          `yaml:"bind"`
	LogLevel  string          `yaml:"log_level"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds requests per client. Zero rates disable a limit.
type RateLimitConfig struct {
	RequestsPerMinute         int `yaml:"requests_per_minute"`
	ValidateRequestsPerMinute int `yaml:"validate_requests_per_minute"`
	// Burst size is rate * BurstMultiplier
	BurstMultiplier int `yaml:"burst_multiplier"`
}

// StorageConfig selects and configures the key-value backend
type StorageConfig struct {
	Backend string `yaml:"backend"`
	// Path is the directory for "file" and the database file for "sqlite".
	// Relative paths resolve against the courseware directory.
	Path string `yaml:"path,omitempty"`
	// Driver overrides the database/sql driver for "postgres" (pgx or postgres)
	Driver string      `yaml:"driver,omitempty"`
	DSN    string      `yaml:"-"` // Loaded from secrets.yaml or the environment
	Table  string      `yaml:"table,omitempty"`
	Redis  RedisConfig `yaml:"redis"`
	// Resilient wraps remote backends with retries and a circuit breaker
	Resilient  bool `yaml:"resilient"`
	QuotaBytes int  `yaml:"quota_bytes,omitempty"` // For memory
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"` // Loaded from secrets.yaml or the environment
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// QuizConfig holds quiz cache policy
type QuizConfig struct {
	QuestionTTL   time.Duration `yaml:"question_ttl"`
	ProgressTTL   time.Duration `yaml:"progress_ttl"`
	MaxTopics     int           `yaml:"max_topics"`
	MaxResults    int           `yaml:"max_results"`
	SchemaVersion string        `yaml:"schema_version"`
}

// EditorConfig holds editor session settings
type EditorConfig struct {
	AutoSaveDelayMS int `yaml:"auto_save_delay_ms"`
}

// AutoSaveDelay returns the configured delay as a duration
func (c EditorConfig) AutoSaveDelay() time.Duration {
	return time.Duration(c.AutoSaveDelayMS) * time.Millisecond
}

// EventsConfig holds RabbitMQ publishing settings
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"-"` // Loaded from secrets.yaml or the environment
	Queue   string `yaml:"queue"`
}

// ContentConfig holds question bank settings
type ContentConfig struct {
	Dir              string `yaml:"dir,omitempty"`
	QuestionsPerQuiz int    `yaml:"questions_per_quiz"`
}

// SecretsConfig holds connection secrets loaded from secrets.yaml
type SecretsConfig struct {
	Storage struct {
		DSN           string `yaml:"dsn"`
		RedisPassword string `yaml:"redis_password"`
	} `yaml:"storage"`
	Events struct {
		URL string `yaml:"url"`
	} `yaml:"events"`
}

// Dir returns the path to ~/.courseware
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".courseware"), nil
}

// EnsureDir creates ~/.courseware and subdirectories if they don't exist
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	subdirs := []string{
		"",
		"logs",
		"data",
		"questions",
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7433,
			Bind:     "127.0.0.1",
			LogLevel: "info",
			RateLimit: RateLimitConfig{
				RequestsPerMinute:         600,
				ValidateRequestsPerMinute: 60,
				BurstMultiplier:           3,
			},
		},
		Storage: StorageConfig{
			Backend:   BackendSQLite,
			Path:      "data/courseware.db",
			Table:     "kv_entries",
			Resilient: true,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "courseware:",
			},
		},
		Quiz: QuizConfig{
			QuestionTTL:   24 * time.Hour,
			ProgressTTL:   time.Hour,
			MaxTopics:     50,
			MaxResults:    100,
			SchemaVersion: "1.0.0",
		},
		Editor: EditorConfig{
			AutoSaveDelayMS: 1000,
		},
		Events: EventsConfig{
			Enabled: false,
			Queue:   "quiz.attempt.completed",
		},
		Content: ContentConfig{
			Dir:              "questions",
			QuestionsPerQuiz: 10,
		},
	}
}

// Validate checks settings that cannot be defaulted
func (c *LocalConfig) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendPostgres, BackendMySQL, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Storage.Backend)
	}
	if (c.Storage.Backend == BackendPostgres || c.Storage.Backend == BackendMySQL) && c.Storage.DSN == "" {
		return fmt.Errorf("storage backend %s requires a dsn", c.Storage.Backend)
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return errors.New("events enabled without an amqp url")
	}
	return nil
}

// ResolvePath returns p relative to dir unless it is already absolute
func ResolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// LoadLocalConfig loads ~/.courseware/config.yaml and secrets.yaml, then
// applies COURSEWARE_* environment overrides (including those from a .env
// file in the working directory)
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(dir)
}

// LoadLocalConfigFrom loads configuration from dir
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	configPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// Defaults
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	return cfg, nil
}

// loadSecrets loads connection secrets from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	secretsPath := filepath.Join(dir, "secrets.yaml")

	// If secrets file doesn't exist, skip
	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(secretsPath)
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	if secrets.Storage.DSN != "" {
		cfg.Storage.DSN = secrets.Storage.DSN
	}
	if secrets.Storage.RedisPassword != "" {
		cfg.Storage.Redis.Password = secrets.Storage.RedisPassword
	}
	if secrets.Events.URL != "" {
		cfg.Events.URL = secrets.Events.URL
	}

	return nil
}

// SaveLocalConfig saves configuration to ~/.courseware/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(dir, "config.yaml")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
