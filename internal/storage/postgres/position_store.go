package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// PositionStore is the postgres implementation of storage.PositionStore.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a position store over pool.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `id, symbol, qty, entry_price, entry_time, entry_defcon,
	peak_price, current_price, status, exit_price, exit_time, exit_reason`

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var status string
	err := row.Scan(&p.ID, &p.Symbol, &p.Qty, &p.EntryPrice, &p.EntryTime,
		&p.EntryDefcon, &p.PeakPrice, &p.CurrentPrice, &status,
		&p.ExitPrice, &p.ExitTime, &p.ExitReason)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PositionStatus(status)
	return &p, nil
}

// Insert adds a new position. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (`+positionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Symbol, p.Qty, p.EntryPrice, p.EntryTime, p.EntryDefcon,
		p.PeakPrice, p.CurrentPrice, string(p.Status),
		p.ExitPrice, p.ExitTime, p.ExitReason)
	if isDuplicateKeyError(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Update rewrites an existing position. Returns ErrNotFound if absent.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET symbol = $2, qty = $3, entry_price = $4,
			entry_time = $5, entry_defcon = $6, peak_price = $7,
			current_price = $8, status = $9, exit_price = $10,
			exit_time = $11, exit_reason = $12
		WHERE id = $1`,
		p.ID, p.Symbol, p.Qty, p.EntryPrice, p.EntryTime, p.EntryDefcon,
		p.PeakPrice, p.CurrentPrice, string(p.Status),
		p.ExitPrice, p.ExitTime, p.ExitReason)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if absent.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (s *PositionStore) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListOpen retrieves non-closed positions ordered by entry_time ASC.
func (s *PositionStore) ListOpen(ctx context.Context) ([]*domain.Position, error) {
	out, err := s.list(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE status != $1 ORDER BY entry_time ASC, id ASC`,
		string(domain.StatusClosed))
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	return out, nil
}

// ListClosed retrieves closed positions, newest exits first.
func (s *PositionStore) ListClosed(ctx context.Context, limit int) ([]*domain.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	out, err := s.list(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE status = $1 ORDER BY exit_time DESC, id ASC LIMIT $2`,
		string(domain.StatusClosed), limit)
	if err != nil {
		return nil, fmt.Errorf("list closed positions: %w", err)
	}
	return out, nil
}
