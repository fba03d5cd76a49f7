// Package storage defines the persistence interfaces and shared errors.
// Writes come from the orchestrator task only; reads may be concurrent.
package storage

import (
	"context"
	"time"

	"hightrade/internal/domain"
)

// PositionStore provides access to positions storage, keyed by id.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, p *domain.Position) error

	// Update rewrites an existing position. Returns ErrNotFound if absent.
	Update(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*domain.Position, error)

	// ListOpen retrieves non-closed positions ordered by entry_time ASC.
	ListOpen(ctx context.Context) ([]*domain.Position, error)

	// ListClosed retrieves closed positions, newest exits first.
	ListClosed(ctx context.Context, limit int) ([]*domain.Position, error)
}

// NewsSignalStore provides access to news_signals storage, one row per
// cycle, never mutated.
type NewsSignalStore interface {
	// Insert adds the cycle's signal. Returns ErrDuplicateKey if a row
	// for the cycle exists.
	Insert(ctx context.Context, s *domain.NewsSignal) error

	// Latest retrieves the most recent signal. Returns ErrNotFound when
	// the table is empty.
	Latest(ctx context.Context) (*domain.NewsSignal, error)
}

// DefconStore provides access to the append-only defcon history, keyed by
// entered_at.
type DefconStore interface {
	// Append adds a level-change row.
	Append(ctx context.Context, s *domain.DefconState) error

	// Latest retrieves the current state. Returns ErrNotFound when empty.
	Latest(ctx context.Context) (*domain.DefconState, error)

	// History retrieves recent rows, newest first.
	History(ctx context.Context, limit int) ([]*domain.DefconState, error)
}

// SnapshotStore provides access to market_snapshots storage, one row per
// cycle.
type SnapshotStore interface {
	// Insert adds the cycle's snapshot.
	Insert(ctx context.Context, cycleID int64, s *domain.MarketSnapshot) error

	// Latest retrieves the most recent snapshot. Returns ErrNotFound when
	// empty.
	Latest(ctx context.Context) (*domain.MarketSnapshot, error)
}

// DecisionStore provides access to pending human-approval decisions.
type DecisionStore interface {
	// Insert adds a decision. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, d *domain.PendingDecision) error

	// Update rewrites a decision. Returns ErrNotFound if absent.
	Update(ctx context.Context, d *domain.PendingDecision) error

	// ActiveEntry retrieves the awaiting entry decision, if any. Returns
	// ErrNotFound when none is active at now.
	ActiveEntry(ctx context.Context, now time.Time) (*domain.PendingDecision, error)

	// ExpireOlder marks awaiting decisions past their expiry as expired,
	// returning how many were swept.
	ExpireOlder(ctx context.Context, now time.Time) (int, error)
}

// Store aggregates the per-table stores behind one backend handle.
type Store interface {
	Positions() PositionStore
	NewsSignals() NewsSignalStore
	Defcon() DefconStore
	Snapshots() SnapshotStore
	Decisions() DecisionStore

	// Close releases backend resources.
	Close() error
}
