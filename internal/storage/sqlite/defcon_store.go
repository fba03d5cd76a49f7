package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// DefconStore is the sqlite implementation of storage.DefconStore.
type DefconStore struct {
	db *DB
}

// NewDefconStore creates a defcon store over db.
func NewDefconStore(db *DB) *DefconStore {
	return &DefconStore{db: db}
}

var _ storage.DefconStore = (*DefconStore)(nil)

type defconRow struct {
	EnteredAt   string  `db:"entered_at"`
	Level       int     `db:"level"`
	SignalScore float64 `db:"signal_score"`
	ReasonCode  string  `db:"reason_code"`
}

func (r defconRow) toDomain() (*domain.DefconState, error) {
	at, err := parseTime(r.EnteredAt)
	if err != nil {
		return nil, err
	}
	return &domain.DefconState{
		Level:       r.Level,
		SignalScore: r.SignalScore,
		EnteredAt:   at,
		ReasonCode:  r.ReasonCode,
	}, nil
}

// Append adds a level-change row.
func (s *DefconStore) Append(ctx context.Context, state *domain.DefconState) error {
	if state == nil || state.Level < domain.DefconCrisis || state.Level > domain.DefconPeacetime {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO defcon_history (entered_at, level, signal_score, reason_code)
		VALUES (?, ?, ?, ?)`,
		formatTime(state.EnteredAt), state.Level, state.SignalScore, state.ReasonCode)
	if isDuplicateKeyError(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("append defcon state: %w", err)
	}
	return nil
}

// Latest retrieves the current state. Returns ErrNotFound when empty.
func (s *DefconStore) Latest(ctx context.Context) (*domain.DefconState, error) {
	var row defconRow
	err := s.db.GetContext(ctx, &row, `
		SELECT entered_at, level, signal_score, reason_code
		FROM defcon_history ORDER BY entered_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest defcon state: %w", err)
	}
	return row.toDomain()
}

// History retrieves recent rows, newest first.
func (s *DefconStore) History(ctx context.Context, limit int) ([]*domain.DefconState, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []defconRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT entered_at, level, signal_score, reason_code
		FROM defcon_history ORDER BY entered_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("defcon history: %w", err)
	}
	out := make([]*domain.DefconState, 0, len(rows))
	for _, r := range rows {
		st, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
