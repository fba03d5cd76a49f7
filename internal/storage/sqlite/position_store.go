package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// PositionStore is the sqlite implementation of storage.PositionStore.
type PositionStore struct {
	db *DB
}

// NewPositionStore creates a position store over db.
func NewPositionStore(db *DB) *PositionStore {
	return &PositionStore{db: db}
}

var _ storage.PositionStore = (*PositionStore)(nil)

type positionRow struct {
	ID           string          `db:"id"`
	Symbol       string          `db:"symbol"`
	Qty          float64         `db:"qty"`
	EntryPrice   float64         `db:"entry_price"`
	EntryTime    string          `db:"entry_time"`
	EntryDefcon  int             `db:"entry_defcon"`
	PeakPrice    float64         `db:"peak_price"`
	CurrentPrice float64         `db:"current_price"`
	Status       string          `db:"status"`
	ExitPrice    sql.NullFloat64 `db:"exit_price"`
	ExitTime     sql.NullString  `db:"exit_time"`
	ExitReason   sql.NullString  `db:"exit_reason"`
}

func positionToRow(p *domain.Position) positionRow {
	row := positionRow{
		ID:           p.ID,
		Symbol:       p.Symbol,
		Qty:          p.Qty,
		EntryPrice:   p.EntryPrice,
		EntryTime:    formatTime(p.EntryTime),
		EntryDefcon:  p.EntryDefcon,
		PeakPrice:    p.PeakPrice,
		CurrentPrice: p.CurrentPrice,
		Status:       string(p.Status),
	}
	if p.ExitPrice != nil {
		row.ExitPrice = sql.NullFloat64{Float64: *p.ExitPrice, Valid: true}
	}
	if p.ExitTime != nil {
		row.ExitTime = sql.NullString{String: formatTime(*p.ExitTime), Valid: true}
	}
	if p.ExitReason != nil {
		row.ExitReason = sql.NullString{String: *p.ExitReason, Valid: true}
	}
	return row
}

func (r positionRow) toDomain() (*domain.Position, error) {
	entryTime, err := parseTime(r.EntryTime)
	if err != nil {
		return nil, err
	}
	p := &domain.Position{
		ID:           r.ID,
		Symbol:       r.Symbol,
		Qty:          r.Qty,
		EntryPrice:   r.EntryPrice,
		EntryTime:    entryTime,
		EntryDefcon:  r.EntryDefcon,
		PeakPrice:    r.PeakPrice,
		CurrentPrice: r.CurrentPrice,
		Status:       domain.PositionStatus(r.Status),
	}
	if r.ExitPrice.Valid {
		v := r.ExitPrice.Float64
		p.ExitPrice = &v
	}
	if r.ExitTime.Valid {
		t, err := parseTime(r.ExitTime.String)
		if err != nil {
			return nil, err
		}
		p.ExitTime = &t
	}
	if r.ExitReason.Valid {
		v := r.ExitReason.String
		p.ExitReason = &v
	}
	return p, nil
}

const positionColumns = `id, symbol, qty, entry_price, entry_time, entry_defcon,
	peak_price, current_price, status, exit_price, exit_time, exit_reason`

// Insert adds a new position. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO positions (`+positionColumns+`)
		VALUES (:id, :symbol, :qty, :entry_price, :entry_time, :entry_defcon,
			:peak_price, :current_price, :status, :exit_price, :exit_time, :exit_reason)`,
		positionToRow(p))
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

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE positions SET
			symbol = :symbol, qty = :qty, entry_price = :entry_price,
			entry_time = :entry_time, entry_defcon = :entry_defcon,
			peak_price = :peak_price, current_price = :current_price,
			status = :status, exit_price = :exit_price,
			exit_time = :exit_time, exit_reason = :exit_reason
		WHERE id = :id`,
		positionToRow(p))
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update position rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if absent.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	var row positionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return row.toDomain()
}

// ListOpen retrieves non-closed positions ordered by entry_time ASC.
func (s *PositionStore) ListOpen(ctx context.Context) ([]*domain.Position, error) {
	var rows []positionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+positionColumns+` FROM positions
		WHERE status != ? ORDER BY entry_time ASC, id ASC`,
		string(domain.StatusClosed))
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	return rowsToPositions(rows)
}

// ListClosed retrieves closed positions, newest exits first.
func (s *PositionStore) ListClosed(ctx context.Context, limit int) ([]*domain.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []positionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+positionColumns+` FROM positions
		WHERE status = ? ORDER BY exit_time DESC, id ASC LIMIT ?`,
		string(domain.StatusClosed), limit)
	if err != nil {
		return nil, fmt.Errorf("list closed positions: %w", err)
	}
	return rowsToPositions(rows)
}

func rowsToPositions(rows []positionRow) ([]*domain.Position, error) {
	out := make([]*domain.Position, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
