package memory

import (
	"context"
	"sort"
	"sync"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
// Snapshots are written only through AccrualCommitter.
type SnapshotStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.FeeSnapshot
	latest map[string]*domain.FeeSnapshot // keyed by mint
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		byID:   make(map[string]*domain.FeeSnapshot),
		latest: make(map[string]*domain.FeeSnapshot),
	}
}

// Latest retrieves the highest snapshot for a mint. Returns ErrNotFound if none.
func (s *SnapshotStore) Latest(_ context.Context, mint string) (*domain.FeeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.latest[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *snap
	return &copy, nil
}

// ListByMint retrieves all snapshots for a mint, ordered by lifetime total ASC.
func (s *SnapshotStore) ListByMint(_ context.Context, mint string) ([]*domain.FeeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeeSnapshot
	for _, snap := range s.byID {
		if snap.Mint == mint {
			copy := *snap
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LifetimeTotalLamports < result[j].LifetimeTotalLamports
	})

	return result, nil
}

// latestTotalLocked returns the latest lifetime total for a mint, 0 if none.
// Caller must hold s.mu.
func (s *SnapshotStore) latestTotalLocked(mint string) uint64 {
	if snap, ok := s.latest[mint]; ok {
		return snap.LifetimeTotalLamports
	}
	return 0
}

// insertLocked stores a snapshot. Caller must hold s.mu for writing.
func (s *SnapshotStore) insertLocked(snap *domain.FeeSnapshot) {
	copy := *snap
	s.byID[snap.SnapshotID] = &copy
	s.latest[snap.Mint] = &copy
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
