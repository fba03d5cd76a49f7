package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// DecisionStore is the postgres implementation of storage.DecisionStore.
type DecisionStore struct {
	pool *Pool
}

// NewDecisionStore creates a decision store over pool.
func NewDecisionStore(pool *Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

var _ storage.DecisionStore = (*DecisionStore)(nil)

// Insert adds a decision. Returns ErrDuplicateKey if id exists.
func (s *DecisionStore) Insert(ctx context.Context, d *domain.PendingDecision) error {
	if d == nil || d.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pending_decisions (id, kind, subject, created_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, string(d.Kind), d.Subject, d.CreatedAt, d.ExpiresAt, string(d.Status))
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

	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_decisions SET kind = $2, subject = $3, created_at = $4,
			expires_at = $5, status = $6 WHERE id = $1`,
		d.ID, string(d.Kind), d.Subject, d.CreatedAt, d.ExpiresAt, string(d.Status))
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ActiveEntry retrieves the awaiting entry decision, if any.
func (s *DecisionStore) ActiveEntry(ctx context.Context, now time.Time) (*domain.PendingDecision, error) {
	var d domain.PendingDecision
	var kind, status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, subject, created_at, expires_at, status
		FROM pending_decisions
		WHERE kind = $1 AND status = $2 AND expires_at > $3
		ORDER BY created_at DESC LIMIT 1`,
		string(domain.DecisionEntry), string(domain.DecisionAwaiting), now).
		Scan(&d.ID, &kind, &d.Subject, &d.CreatedAt, &d.ExpiresAt, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active entry decision: %w", err)
	}
	d.Kind = domain.DecisionKind(kind)
	d.Status = domain.DecisionStatus(status)
	return &d, nil
}

// ExpireOlder marks awaiting decisions past expiry as expired.
func (s *DecisionStore) ExpireOlder(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_decisions SET status = $1
		WHERE status = $2 AND expires_at <= $3`,
		string(domain.DecisionExpired), string(domain.DecisionAwaiting), now)
	if err != nil {
		return 0, fmt.Errorf("expire decisions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
