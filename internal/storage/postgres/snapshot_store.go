package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// SnapshotStore is the postgres implementation of storage.SnapshotStore.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a snapshot store over pool.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds the cycle's snapshot.
func (s *SnapshotStore) Insert(ctx context.Context, cycleID int64, snap *domain.MarketSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO market_snapshots (cycle_id, ts, vix, yield_10y, sp500_pct, prices, stale)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cycleID, snap.Timestamp, snap.VIX, snap.BondYield10Y,
		snap.SP500ChangePct, snap.Prices, snap.Stale)
	if isDuplicateKeyError(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert market snapshot: %w", err)
	}
	return nil
}

// Latest retrieves the most recent snapshot. Returns ErrNotFound when empty.
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.MarketSnapshot, error) {
	var snap domain.MarketSnapshot
	var cycleID int64
	err := s.pool.QueryRow(ctx, `
		SELECT cycle_id, ts, vix, yield_10y, sp500_pct, prices, stale
		FROM market_snapshots ORDER BY ts DESC, cycle_id DESC LIMIT 1`).
		Scan(&cycleID, &snap.Timestamp, &snap.VIX, &snap.BondYield10Y,
			&snap.SP500ChangePct, &snap.Prices, &snap.Stale)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest market snapshot: %w", err)
	}
	return &snap, nil
}
