package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// DecisionStore is the sqlite implementation of storage.DecisionStore.
type DecisionStore struct {
	db *DB
}

// NewDecisionStore creates a decision store over db.
func NewDecisionStore(db *DB) *DecisionStore {
	return &DecisionStore{db: db}
}

var _ storage.DecisionStore = (*DecisionStore)(nil)

type decisionRow struct {
	ID        string `db:"id"`
	Kind      string `db:"kind"`
	Subject   string `db:"subject"`
	CreatedAt string `db:"created_at"`
	ExpiresAt string `db:"expires_at"`
	Status    string `db:"status"`
}

func (r decisionRow) toDomain() (*domain.PendingDecision, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	expires, err := parseTime(r.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &domain.PendingDecision{
		ID:        r.ID,
		Kind:      domain.DecisionKind(r.Kind),
		Subject:   r.Subject,
		CreatedAt: created,
		ExpiresAt: expires,
		Status:    domain.DecisionStatus(r.Status),
	}, nil
}

// Insert adds a decision. Returns ErrDuplicateKey if id exists.
func (s *DecisionStore) Insert(ctx context.Context, d *domain.PendingDecision) error {
	if d == nil || d.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_decisions (id, kind, subject, created_at, expires_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.Kind), d.Subject, formatTime(d.CreatedAt),
		formatTime(d.ExpiresAt), string(d.Status))
	if isDuplicateKeyError(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Update rewrites a decision. Returns ErrNotFound if absent.
func (s *DecisionStore) Update(ctx context.Context, d *domain.PendingDecision) error {
	if d == nil || d.ID == "" {
		return storage.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_decisions SET kind = ?, subject = ?, created_at = ?,
			expires_at = ?, status = ? WHERE id = ?`,
		string(d.Kind), d.Subject, formatTime(d.CreatedAt),
		formatTime(d.ExpiresAt), string(d.Status), d.ID)
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update decision rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ActiveEntry retrieves the awaiting entry decision, if any.
func (s *DecisionStore) ActiveEntry(ctx context.Context, now time.Time) (*domain.PendingDecision, error) {
	var row decisionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, kind, subject, created_at, expires_at, status
		FROM pending_decisions
		WHERE kind = ? AND status = ? AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1`,
		string(domain.DecisionEntry), string(domain.DecisionAwaiting), formatTime(now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active entry decision: %w", err)
	}
	return row.toDomain()
}

// ExpireOlder marks awaiting decisions past expiry as expired.
func (s *DecisionStore) ExpireOlder(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_decisions SET status = ?
		WHERE status = ? AND expires_at <= ?`,
		string(domain.DecisionExpired), string(domain.DecisionAwaiting), formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("expire decisions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire decisions rows affected: %w", err)
	}
	return int(n), nil
}
