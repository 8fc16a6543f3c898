package memory

import (
	"context"
	"sort"
	"sync"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Token // keyed by mint
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[string]*domain.Token),
	}
}

// Register adds a tracked token. Returns ErrDuplicateKey if mint exists.
func (s *TokenStore) Register(_ context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" || t.FeeAccount == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Mint]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.Mint] = &copy
	return nil
}

// Get retrieves a token by mint. Returns ErrNotFound if not exists.
func (s *TokenStore) Get(_ context.Context, mint string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *t
	return &copy, nil
}

// ListTracked retrieves all tokens ordered by mint ASC.
func (s *TokenStore) ListTracked(_ context.Context) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Token, 0, len(s.data))
	for _, t := range s.data {
		copy := *t
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Mint < result[j].Mint
	})

	return result, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
