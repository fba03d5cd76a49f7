package memory

import (
	"context"
	"sync"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.MarketSnapshot
	last *domain.MarketSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[int64]*domain.MarketSnapshot)}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

func copySnapshot(s *domain.MarketSnapshot) *domain.MarketSnapshot {
	cp := *s
	cp.Prices = make(map[string]float64, len(s.Prices))
	for k, v := range s.Prices {
		cp.Prices[k] = v
	}
	return &cp
}

// Insert adds the cycle's snapshot.
func (s *SnapshotStore) Insert(_ context.Context, cycleID int64, snap *domain.MarketSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[cycleID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := copySnapshot(snap)
	s.data[cycleID] = cp
	if s.last == nil || cp.Timestamp.After(s.last.Timestamp) {
		s.last = cp
	}
	return nil
}

// Latest retrieves the most recent snapshot. Returns ErrNotFound when empty.
func (s *SnapshotStore) Latest(_ context.Context) (*domain.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(s.last), nil
}
