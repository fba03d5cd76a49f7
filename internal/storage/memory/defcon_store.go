package memory

import (
	"context"
	"sync"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// DefconStore is an in-memory implementation of storage.DefconStore.
// Rows are append-only, keyed by entered_at.
type DefconStore struct {
	mu   sync.RWMutex
	rows []*domain.DefconState
}

// NewDefconStore creates a new in-memory defcon store.
func NewDefconStore() *DefconStore {
	return &DefconStore{}
}

var _ storage.DefconStore = (*DefconStore)(nil)

// Append adds a level-change row.
func (s *DefconStore) Append(_ context.Context, state *domain.DefconState) error {
	if state == nil || state.Level < domain.DefconCrisis || state.Level > domain.DefconPeacetime {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.EnteredAt.Equal(state.EnteredAt) {
			return storage.ErrDuplicateKey
		}
	}

	cp := *state
	s.rows = append(s.rows, &cp)
	return nil
}

// Latest retrieves the current state. Returns ErrNotFound when empty.
func (s *DefconStore) Latest(_ context.Context) (*domain.DefconState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) == 0 {
		return nil, storage.ErrNotFound
	}
	best := s.rows[0]
	for _, r := range s.rows[1:] {
		if r.EnteredAt.After(best.EnteredAt) {
			best = r
		}
	}
	cp := *best
	return &cp, nil
}

// History retrieves recent rows, newest first.
func (s *DefconStore) History(_ context.Context, limit int) ([]*domain.DefconState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.DefconState, len(s.rows))
	for i, r := range s.rows {
		cp := *r
		out[i] = &cp
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
