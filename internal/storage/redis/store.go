// Package redis implements the storage port on a Redis keyspace.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

const (
	defaultTimeout = 3 * time.Second
	scanCount      = 100
)

// Options configures a Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key, e.g. "courseware:"
	Prefix string
}

// Store keeps each entry as a plain Redis string under Prefix+key
type Store struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// New wraps an existing client
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix, timeout: defaultTimeout}
}

// Open connects and verifies the server is reachable
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return New(client, opts.Prefix), nil
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) GetItem(key string) (string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (s *Store) SetItem(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		if isOOM(err) {
			return fmt.Errorf("redis set: %w: %v", storage.ErrQuotaExceeded, err)
		}
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) RemoveItem(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys scans the prefix namespace with SCAN so large keyspaces are not
// blocked by KEYS
func (s *Store) Keys() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	pattern := escapeGlob(s.prefix) + "*"
	keys := []string{}

	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return dedupe(keys), nil
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

// SCAN may return a key more than once
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isOOM(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM")
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Closer = (*Store)(nil)
)
