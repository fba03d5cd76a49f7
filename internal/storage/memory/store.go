package memory

import "hightrade/internal/storage"

// Store bundles the in-memory per-table stores.
type Store struct {
	positions *PositionStore
	signals   *NewsSignalStore
	defcon    *DefconStore
	snapshots *SnapshotStore
	decisions *DecisionStore
}

// NewStore creates an empty in-memory backend.
func NewStore() *Store {
	return &Store{
		positions: NewPositionStore(),
		signals:   NewNewsSignalStore(),
		defcon:    NewDefconStore(),
		snapshots: NewSnapshotStore(),
		decisions: NewDecisionStore(),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Positions() storage.PositionStore     { return s.positions }
func (s *Store) NewsSignals() storage.NewsSignalStore { return s.signals }
func (s *Store) Defcon() storage.DefconStore          { return s.defcon }
func (s *Store) Snapshots() storage.SnapshotStore     { return s.snapshots }
func (s *Store) Decisions() storage.DecisionStore     { return s.decisions }

// Close is a no-op for the in-memory backend.
func (s *Store) Close() error { return nil }
