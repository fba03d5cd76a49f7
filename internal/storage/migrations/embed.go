// Package migrations holds the embedded, forward-only schema for both
// backends. Files apply in lexical order and are idempotent.
package migrations

import "embed"

// SQLiteFS embeds all SQLite migration files.
//
//go:embed sqlite/*.sql
var SQLiteFS embed.FS

// PostgresFS embeds all PostgreSQL migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS
