package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// DefconStore is the postgres implementation of storage.DefconStore.
type DefconStore struct {
	pool *Pool
}

// NewDefconStore creates a defcon store over pool.
func NewDefconStore(pool *Pool) *DefconStore {
	return &DefconStore{pool: pool}
}

var _ storage.DefconStore = (*DefconStore)(nil)

// Append adds a level-change row.
func (s *DefconStore) Append(ctx context.Context, state *domain.DefconState) error {
	if state == nil || state.Level < domain.DefconCrisis || state.Level > domain.DefconPeacetime {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO defcon_history (entered_at, level, signal_score, reason_code)
		VALUES ($1, $2, $3, $4)`,
		state.EnteredAt, state.Level, state.SignalScore, state.ReasonCode)
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
	var st domain.DefconState
	err := s.pool.QueryRow(ctx, `
		SELECT entered_at, level, signal_score, reason_code
		FROM defcon_history ORDER BY entered_at DESC LIMIT 1`).
		Scan(&st.EnteredAt, &st.Level, &st.SignalScore, &st.ReasonCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest defcon state: %w", err)
	}
	return &st, nil
}

// History retrieves recent rows, newest first.
func (s *DefconStore) History(ctx context.Context, limit int) ([]*domain.DefconState, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT entered_at, level, signal_score, reason_code
		FROM defcon_history ORDER BY entered_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("defcon history: %w", err)
	}
	defer rows.Close()

	var out []*domain.DefconState
	for rows.Next() {
		var st domain.DefconState
		if err := rows.Scan(&st.EnteredAt, &st.Level, &st.SignalScore, &st.ReasonCode); err != nil {
			return nil, err
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}
