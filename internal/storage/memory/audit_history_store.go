package memory

import (
	"context"
	"sync"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// AuditHistoryStore is an in-memory implementation of storage.AuditHistoryStore.
type AuditHistoryStore struct {
	mu   sync.RWMutex
	data []*domain.AuditObservation // append order
}

// NewAuditHistoryStore creates a new in-memory audit history store.
func NewAuditHistoryStore() *AuditHistoryStore {
	return &AuditHistoryStore{}
}

// Record appends observations from one audit pass.
func (s *AuditHistoryStore) Record(_ context.Context, obs []*domain.AuditObservation) error {
	for _, o := range obs {
		if o == nil || o.Mint == "" || o.Check == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range obs {
		copy := *o
		s.data = append(s.data, &copy)
	}
	return nil
}

// RecentResults returns outcomes for a mint and check, most recent first.
func (s *AuditHistoryStore) RecentResults(_ context.Context, mint, check string, limit int) ([]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []bool
	for i := len(s.data) - 1; i >= 0; i-- {
		o := s.data[i]
		if o.Mint != mint || o.Check != check {
			continue
		}
		result = append(result, o.Passed)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

var _ storage.AuditHistoryStore = (*AuditHistoryStore)(nil)
