// Package sqlstore implements the storage port on a database/sql table.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// DefaultTable is the key-value table name used when none is configured
const DefaultTable = "kv_entries"

const defaultTimeout = 5 * time.Second

// Store is a key-value table accessed through database/sql
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	builder squirrel.StatementBuilderType
	timeout time.Duration
	ownsDB  bool
}

// New wraps an open database. The table must already exist; call
// EnsureSchema otherwise.
func New(db *sql.DB, dialect Dialect, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{
		db:      db,
		dialect: dialect,
		table:   dialect.QuoteIdent(table),
		builder: squirrel.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
		timeout: defaultTimeout,
	}
}

// EnsureSchema creates the key-value table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(s.dialect.createTable, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s table: %w", s.dialect.Name, err)
	}
	return nil
}

// Dialect returns the store's dialect
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// GetItem reads a value
func (s *Store) GetItem(key string) (string, error) {
	query, args, err := s.builder.Select("entry_value").
		From(s.table).
		Where(squirrel.Eq{"entry_key": key}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select: %w", err)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	var value string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("select entry: %w", err)
	}
	return value, nil
}

// SetItem upserts a value
func (s *Store) SetItem(key, value string) error {
	query, args, err := s.builder.Insert(s.table).
		Columns("entry_key", "entry_value", "updated_at").
		Values(key, value, time.Now().UTC()).
		Suffix(s.dialect.upsert).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// RemoveItem deletes a value; deleting a missing key is a no-op
func (s *Store) RemoveItem(key string) error {
	query, args, err := s.builder.Delete(s.table).
		Where(squirrel.Eq{"entry_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Keys lists all keys
func (s *Store) Keys() ([]string, error) {
	query, args, err := s.builder.Select("entry_key").From(s.table).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select keys: %w", err)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close closes the underlying database when the store opened it
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Closer = (*Store)(nil)
)
