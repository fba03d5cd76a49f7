package memory

import (
	"context"
	"sync"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// NewsSignalStore is an in-memory implementation of storage.NewsSignalStore.
type NewsSignalStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.NewsSignal
	last *domain.NewsSignal
}

// NewNewsSignalStore creates a new in-memory news signal store.
func NewNewsSignalStore() *NewsSignalStore {
	return &NewsSignalStore{data: make(map[int64]*domain.NewsSignal)}
}

var _ storage.NewsSignalStore = (*NewsSignalStore)(nil)

// Insert adds the cycle's signal. Returns ErrDuplicateKey on a repeated
// cycle id.
func (s *NewsSignalStore) Insert(_ context.Context, sig *domain.NewsSignal) error {
	if sig == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sig.CycleID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *sig
	cp.TopArticles = append([]string(nil), sig.TopArticles...)
	s.data[sig.CycleID] = &cp
	if s.last == nil || cp.Timestamp.After(s.last.Timestamp) {
		s.last = &cp
	}
	return nil
}

// Latest retrieves the most recent signal. Returns ErrNotFound when empty.
func (s *NewsSignalStore) Latest(_ context.Context) (*domain.NewsSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.last
	cp.TopArticles = append([]string(nil), s.last.TopArticles...)
	return &cp, nil
}
