package memory

import (
	"context"
	"sync"
	"time"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// DecisionStore is an in-memory implementation of storage.DecisionStore.
type DecisionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PendingDecision
}

// NewDecisionStore creates a new in-memory decision store.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{data: make(map[string]*domain.PendingDecision)}
}

var _ storage.DecisionStore = (*DecisionStore)(nil)

// Insert adds a decision. Returns ErrDuplicateKey if id exists.
func (s *DecisionStore) Insert(_ context.Context, d *domain.PendingDecision) error {
	if d == nil || d.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[d.ID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *d
	s.data[d.ID] = &cp
	return nil
}

// Update rewrites a decision. Returns ErrNotFound if absent.
func (s *DecisionStore) Update(_ context.Context, d *domain.PendingDecision) error {
	if d == nil || d.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[d.ID]; !exists {
		return storage.ErrNotFound
	}

	cp := *d
	s.data[d.ID] = &cp
	return nil
}

// ActiveEntry retrieves the awaiting entry decision, if any.
func (s *DecisionStore) ActiveEntry(_ context.Context, now time.Time) (*domain.PendingDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.data {
		if d.Kind == domain.DecisionEntry && d.Active(now) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ExpireOlder marks awaiting decisions past expiry as expired.
func (s *DecisionStore) ExpireOlder(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, d := range s.data {
		if d.Status == domain.DecisionAwaiting && !now.Before(d.ExpiresAt) {
			d.Status = domain.DecisionExpired
			n++
		}
	}
	return n, nil
}
