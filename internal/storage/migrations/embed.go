package migrations

import "embed"

// FS embeds the SQL migrations for the SQLite key-value backend.
//
//go:embed *.sql
var FS embed.FS
