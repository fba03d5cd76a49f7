// Package postgres is the optional shared-database backend, for
// deployments where several read-only consumers (dashboards, reporting)
// follow the same state.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hightrade/internal/storage"
	"hightrade/internal/storage/migrations"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool and verifies it.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

const pgErrUniqueViolation = "23505"

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// Store bundles the postgres per-table stores behind storage.Store.
type Store struct {
	pool      *Pool
	positions *PositionStore
	signals   *NewsSignalStore
	defcon    *DefconStore
	snapshots *SnapshotStore
	decisions *DecisionStore
}

// NewStore connects to dsn and applies migrations.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunPostgres(ctx, pool.Pool); err != nil {
		pool.Close()
		return nil, err
	}
	return newStoreFromPool(pool), nil
}

func newStoreFromPool(pool *Pool) *Store {
	return &Store{
		pool:      pool,
		positions: NewPositionStore(pool),
		signals:   NewNewsSignalStore(pool),
		defcon:    NewDefconStore(pool),
		snapshots: NewSnapshotStore(pool),
		decisions: NewDecisionStore(pool),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Positions() storage.PositionStore     { return s.positions }
func (s *Store) NewsSignals() storage.NewsSignalStore { return s.signals }
func (s *Store) Defcon() storage.DefconStore          { return s.defcon }
func (s *Store) Snapshots() storage.SnapshotStore     { return s.snapshots }
func (s *Store) Decisions() storage.DecisionStore     { return s.decisions }

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
