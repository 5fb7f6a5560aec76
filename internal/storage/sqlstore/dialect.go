package sqlstore

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// Dialect captures the per-database differences of the key-value table
type Dialect struct {
	// Name identifies the dialect in logs and configuration
	Name string

	// Placeholder is the bind-parameter style used by the driver
	Placeholder squirrel.PlaceholderFormat

	// createTable is a DDL template taking the quoted table name
	createTable string

	// upsert is appended to the INSERT to turn it into an upsert
	upsert string

	// quote quotes a table identifier
	quote func(string) string
}

// QuoteIdent quotes a table identifier
func (d Dialect) QuoteIdent(name string) string {
	return d.quote(name)
}

var (
	SQLite = Dialect{
		Name:        "sqlite",
		Placeholder: squirrel.Question,
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			entry_key   TEXT PRIMARY KEY,
			entry_value TEXT NOT NULL,
			updated_at  DATETIME NOT NULL
		)`,
		upsert: "ON CONFLICT(entry_key) DO UPDATE SET entry_value = excluded.entry_value, updated_at = excluded.updated_at",
		quote:  pq.QuoteIdentifier,
	}

	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: squirrel.Dollar,
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			entry_key   TEXT PRIMARY KEY,
			entry_value TEXT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		upsert: "ON CONFLICT (entry_key) DO UPDATE SET entry_value = EXCLUDED.entry_value, updated_at = EXCLUDED.updated_at",
		quote:  pq.QuoteIdentifier,
	}

	MySQL = Dialect{
		Name:        "mysql",
		Placeholder: squirrel.Question,
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			entry_key   VARCHAR(512) NOT NULL PRIMARY KEY,
			entry_value LONGTEXT NOT NULL,
			updated_at  DATETIME(3) NOT NULL
		)`,
		upsert: "ON DUPLICATE KEY UPDATE entry_value = VALUES(entry_value), updated_at = VALUES(updated_at)",
		quote: func(name string) string {
			return "`" + strings.ReplaceAll(name, "`", "``") + "`"
		},
	}
)

// DialectFor maps a database/sql driver name to its dialect
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}
