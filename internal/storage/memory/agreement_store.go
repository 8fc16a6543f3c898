package memory

import (
	"context"
	"sort"
	"sync"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// AgreementStore is an in-memory implementation of storage.AgreementStore.
type AgreementStore struct {
	mu       sync.RWMutex
	versions map[string][]*domain.AgreementVersion // keyed by mint, ordered by effective_from
	ids      map[string]struct{}
}

// NewAgreementStore creates a new in-memory agreement store.
func NewAgreementStore() *AgreementStore {
	return &AgreementStore{
		versions: make(map[string][]*domain.AgreementVersion),
		ids:      make(map[string]struct{}),
	}
}

// GetActive retrieves the open version for a mint. Returns ErrNotFound if none.
func (s *AgreementStore) GetActive(_ context.Context, mint string) (*domain.AgreementVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v := activeLocked(s.versions[mint]); v != nil {
		return cloneVersion(v), nil
	}
	return nil, storage.ErrNotFound
}

// GetHistory retrieves all versions for a mint ordered by effective_from ASC.
func (s *AgreementStore) GetHistory(_ context.Context, mint string) ([]*domain.AgreementVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AgreementVersion, 0, len(s.versions[mint]))
	for _, v := range s.versions[mint] {
		result = append(result, cloneVersion(v))
	}
	return result, nil
}

// Rotate closes the active version at next.EffectiveFrom and opens next.
func (s *AgreementStore) Rotate(_ context.Context, next *domain.AgreementVersion) error {
	if next == nil || next.VersionID == "" || next.Mint == "" || next.EffectiveTo != nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[next.VersionID]; exists {
		return storage.ErrDuplicateKey
	}

	if cur := activeLocked(s.versions[next.Mint]); cur != nil {
		if next.EffectiveFrom < cur.EffectiveFrom {
			return storage.ErrInvalidInput
		}
		closedAt := next.EffectiveFrom
		cur.EffectiveTo = &closedAt
	}

	s.ids[next.VersionID] = struct{}{}
	list := append(s.versions[next.Mint], cloneVersion(next))
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].EffectiveFrom < list[j].EffectiveFrom
	})
	s.versions[next.Mint] = list
	return nil
}

func activeLocked(list []*domain.AgreementVersion) *domain.AgreementVersion {
	for _, v := range list {
		if v.IsActive() {
			return v
		}
	}
	return nil
}

func cloneVersion(v *domain.AgreementVersion) *domain.AgreementVersion {
	copy := *v
	if v.EffectiveTo != nil {
		to := *v.EffectiveTo
		copy.EffectiveTo = &to
	}
	copy.Shares = make([]domain.AgreementShare, len(v.Shares))
	for i, sh := range v.Shares {
		sh.VersionID = v.VersionID
		copy.Shares[i] = sh
	}
	sort.SliceStable(copy.Shares, func(i, j int) bool {
		return copy.Shares[i].Position < copy.Shares[j].Position
	})
	return &copy
}

var _ storage.AgreementStore = (*AgreementStore)(nil)
