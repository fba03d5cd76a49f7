package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// SnapshotStore is the sqlite implementation of storage.SnapshotStore.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a snapshot store over db.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

type snapshotRow struct {
	CycleID  int64   `db:"cycle_id"`
	TS       string  `db:"ts"`
	VIX      float64 `db:"vix"`
	Yield10Y float64 `db:"yield_10y"`
	SP500Pct float64 `db:"sp500_pct"`
	Prices   string  `db:"prices"`
	Stale    bool    `db:"stale"`
}

// Insert adds the cycle's snapshot.
func (s *SnapshotStore) Insert(ctx context.Context, cycleID int64, snap *domain.MarketSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}
	prices, err := json.Marshal(snap.Prices)
	if err != nil {
		return fmt.Errorf("marshal prices: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_snapshots (cycle_id, ts, vix, yield_10y, sp500_pct, prices, stale)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cycleID, formatTime(snap.Timestamp), snap.VIX, snap.BondYield10Y,
		snap.SP500ChangePct, string(prices), snap.Stale)
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
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `
		SELECT cycle_id, ts, vix, yield_10y, sp500_pct, prices, stale
		FROM market_snapshots ORDER BY ts DESC, cycle_id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest market snapshot: %w", err)
	}

	ts, err := parseTime(row.TS)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]float64)
	if err := json.Unmarshal([]byte(row.Prices), &prices); err != nil {
		return nil, fmt.Errorf("unmarshal prices: %w", err)
	}
	return &domain.MarketSnapshot{
		Timestamp:      ts,
		VIX:            row.VIX,
		BondYield10Y:   row.Yield10Y,
		SP500ChangePct: row.SP500Pct,
		Prices:         prices,
		Stale:          row.Stale,
	}, nil
}
