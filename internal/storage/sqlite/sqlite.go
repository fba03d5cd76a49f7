// Package sqlite is the default persistence backend: a single-writer
// database file under the state directory.
package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"hightrade/internal/storage"
	"hightrade/internal/storage/migrations"
)

// timeLayout is how timestamps are stored. Fixed width and always UTC, so
// lexical order equals time order and SQL comparisons work on the text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// requiredTables is the expected table set verified at startup.
var requiredTables = []string{
	"positions",
	"news_signals",
	"defcon_history",
	"market_snapshots",
	"pending_decisions",
}

// DB wraps the sqlx handle for dependency injection.
type DB struct {
	*sqlx.DB
}

// Open opens (creating if needed) the database file, applies migrations
// and verifies the expected table set.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Single writer; additional connections only serve concurrent readers.
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if err := migrations.RunSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := verifyTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{DB: db}, nil
}

// verifyTables compares the live schema against the expected table set.
// Unknown tables and columns are ignored.
func verifyTables(ctx context.Context, db *sqlx.DB) error {
	var names []string
	if err := db.SelectContext(ctx, &names, `SELECT name FROM sqlite_master WHERE type = 'table'`); err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	have := make(map[string]struct{}, len(names))
	for _, n := range names {
		have[n] = struct{}{}
	}
	var missing []string
	for _, want := range requiredTables {
		if _, ok := have[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema missing tables after migration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// isDuplicateKeyError detects a unique/primary key violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") && strings.Contains(msg, "unique")
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// Store bundles the sqlite per-table stores behind storage.Store.
type Store struct {
	db        *DB
	positions *PositionStore
	signals   *NewsSignalStore
	defcon    *DefconStore
	snapshots *SnapshotStore
	decisions *DecisionStore
}

// NewStore opens the backend at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:        db,
		positions: NewPositionStore(db),
		signals:   NewNewsSignalStore(db),
		defcon:    NewDefconStore(db),
		snapshots: NewSnapshotStore(db),
		decisions: NewDecisionStore(db),
	}, nil
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Positions() storage.PositionStore     { return s.positions }
func (s *Store) NewsSignals() storage.NewsSignalStore { return s.signals }
func (s *Store) Defcon() storage.DefconStore          { return s.defcon }
func (s *Store) Snapshots() storage.SnapshotStore     { return s.snapshots }
func (s *Store) Decisions() storage.DecisionStore     { return s.decisions }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
