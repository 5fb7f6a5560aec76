// Package resilient decorates a storage backend with retry and circuit
// breaking for remote stores.
package resilient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// Config holds resilience settings
type Config struct {
	// MaxAttempts per operation, including the first (default: 3)
	MaxAttempts int

	// InitialDelay before the first retry (default: 50ms)
	InitialDelay time.Duration

	// FailureThreshold is the number of consecutive failures that opens the
	// circuit (default: 5)
	FailureThreshold uint32

	// OpenTimeout is how long the circuit stays open (default: 30s)
	OpenTimeout time.Duration

	// OperationTimeout bounds one operation including retries (default: 10s)
	OperationTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns defaults tuned for a store on the local network
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialDelay:     50 * time.Millisecond,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		OperationTimeout: 10 * time.Second,
	}
}

// notFound marks a successful lookup of an absent key so it does not count
// as a failure against the breaker
type notFound struct{}

// Store wraps another Store
type Store struct {
	inner   storage.Store
	breaker circuitbreaker.CircuitBreaker[any]
	retrier retry.Retry[any]
	timeout time.Duration
	logger  *slog.Logger
}

// Wrap decorates inner with retry and circuit breaking
func Wrap(inner storage.Store, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = def.OperationTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		inner:   inner,
		timeout: cfg.OperationTimeout,
		logger:  logger,
	}

	threshold := cfg.FailureThreshold
	s.breaker = circuitbreaker.New[any](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("storage circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	s.retrier = retry.New[any](retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryable,
	})

	return s
}

// Quota errors are permanent for the value being written
func isRetryable(err error) bool {
	return !errors.Is(err, storage.ErrQuotaExceeded) && !errors.Is(err, context.Canceled)
}

func (s *Store) do(op string, fn func() (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, err := s.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return s.retrier.Do(ctx, func(ctx context.Context) (any, error) {
			return fn()
		})
	})
	if err != nil {
		s.logger.Debug("storage operation failed", "op", op, "error", err)
	}
	return v, err
}

func (s *Store) GetItem(key string) (string, error) {
	v, err := s.do("get", func() (any, error) {
		value, err := s.inner.GetItem(key)
		if errors.Is(err, storage.ErrNotFound) {
			return notFound{}, nil
		}
		return value, err
	})
	if err != nil {
		return "", err
	}
	if _, ok := v.(notFound); ok {
		return "", storage.ErrNotFound
	}
	value, _ := v.(string)
	return value, nil
}

func (s *Store) SetItem(key, value string) error {
	_, err := s.do("set", func() (any, error) {
		return nil, s.inner.SetItem(key, value)
	})
	return err
}

func (s *Store) RemoveItem(key string) error {
	_, err := s.do("remove", func() (any, error) {
		return nil, s.inner.RemoveItem(key)
	})
	return err
}

func (s *Store) Keys() ([]string, error) {
	v, err := s.do("keys", func() (any, error) {
		return s.inner.Keys()
	})
	if err != nil {
		return nil, err
	}
	keys, _ := v.([]string)
	return keys, nil
}

// Close closes the wrapped store
func (s *Store) Close() error {
	return storage.Close(s.inner)
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Closer = (*Store)(nil)
)
