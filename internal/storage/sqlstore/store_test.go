package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/courseware/internal/storage"
	"github.com/felixgeelhaar/courseware/internal/storage/storagetest"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_Conformance_SQLite(t *testing.T) {
	storagetest.Conformance(t, func(t *testing.T) storage.Store {
		s := New(openSQLite(t), SQLite, "")
		if err := s.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("EnsureSchema() error = %v", err)
		}
		return s
	})
}

func TestStore_CustomTableName(t *testing.T) {
	db := openSQLite(t)
	s := New(db, SQLite, "course kv")
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	if err := s.SetItem("k", "v"); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "course kv"`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestStore_EnsureSchema_Idempotent(t *testing.T) {
	s := New(openSQLite(t), SQLite, "")
	for i := 0; i < 2; i++ {
		if err := s.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("EnsureSchema() #%d error = %v", i, err)
		}
	}
}

func TestStore_Close_DoesNotCloseBorrowedDB(t *testing.T) {
	db := openSQLite(t)
	s := New(db, SQLite, "")

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Errorf("borrowed db should remain open, Ping() error = %v", err)
	}
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{"sqlite3", "sqlite", false},
		{"pgx", "postgres", false},
		{"postgres", "postgres", false},
		{"mysql", "mysql", false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := DialectFor(tt.driver)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DialectFor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d.Name != tt.want {
				t.Errorf("DialectFor() = %q, want %q", d.Name, tt.want)
			}
		})
	}
}

func TestDialect_Statements(t *testing.T) {
	tests := []struct {
		dialect    Dialect
		wantQuote  string
		wantPH     string
		wantUpsert string
	}{
		{Postgres, `"kv_entries"`, "$1", "ON CONFLICT (entry_key)"},
		{SQLite, `"kv_entries"`, "?", "ON CONFLICT(entry_key)"},
		{MySQL, "`kv_entries`", "?", "ON DUPLICATE KEY UPDATE"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			s := New(nil, tt.dialect, "")
			if s.table != tt.wantQuote {
				t.Errorf("table = %s, want %s", s.table, tt.wantQuote)
			}

			query, _, err := s.builder.Insert(s.table).
				Columns("entry_key", "entry_value").
				Values("k", "v").
				Suffix(tt.dialect.upsert).
				ToSql()
			if err != nil {
				t.Fatalf("ToSql() error = %v", err)
			}
			if !strings.Contains(query, tt.wantPH) {
				t.Errorf("query %q missing placeholder %s", query, tt.wantPH)
			}
			if !strings.Contains(query, tt.wantUpsert) {
				t.Errorf("query %q missing upsert clause %s", query, tt.wantUpsert)
			}
		})
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "dsn", ""); err == nil {
		t.Error("Open() should fail for unsupported driver")
	}
}

func TestOpen_InvalidMySQLDSN(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "not a dsn", ""); err == nil {
		t.Error("Open() should fail for an invalid mysql dsn")
	}
}
