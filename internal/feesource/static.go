package feesource

import (
	"context"
	"errors"
	"sync"

	"royalty-ledger/internal/domain"
)

// ErrNoFixture is returned by StaticSource for mints without a value.
var ErrNoFixture = errors.New("no static fee total")

// StaticSource serves fixed totals. Safe for concurrent use.
type StaticSource struct {
	mu     sync.RWMutex
	totals map[string]uint64
	errs   map[string]error
}

// NewStaticSource creates a source with initial totals keyed by mint.
func NewStaticSource(totals map[string]uint64) *StaticSource {
	s := &StaticSource{
		totals: make(map[string]uint64, len(totals)),
		errs:   make(map[string]error),
	}
	for mint, total := range totals {
		s.totals[mint] = total
	}
	return s
}

// Set replaces the total for a mint and clears any injected error.
func (s *StaticSource) Set(mint string, total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[mint] = total
	delete(s.errs, mint)
}

// SetError makes reads for mint fail with err.
func (s *StaticSource) SetError(mint string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[mint] = err
}

// LifetimeTotal returns the configured total.
func (s *StaticSource) LifetimeTotal(_ context.Context, token *domain.Token) (uint64, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.errs[token.Mint]; ok {
		return 0, "", &domain.DataSourceError{Mint: token.Mint, Err: err}
	}
	total, ok := s.totals[token.Mint]
	if !ok {
		return 0, "", &domain.DataSourceError{Mint: token.Mint, Err: ErrNoFixture}
	}
	return total, "static", nil
}
