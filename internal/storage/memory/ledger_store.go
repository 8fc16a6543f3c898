package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
// Entries are kept in insertion order and never modified.
type LedgerStore struct {
	mu      sync.RWMutex
	entries []*domain.LedgerEntry
	ids     map[string]struct{}
	counts  map[string]uint64 // entries per mint
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		ids:    make(map[string]struct{}),
		counts: make(map[string]uint64),
	}
}

// Append adds a single executor entry. Accrual entries are rejected here:
// they are only written together with their snapshot by AccrualCommitter.
func (s *LedgerStore) Append(_ context.Context, e *domain.LedgerEntry) error {
	if err := checkEntry(e); err != nil {
		return err
	}
	if e.EntryType == domain.EntryTypeAccrual {
		return fmt.Errorf("%w: accrual entries require a snapshot commit", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[e.EntryID]; exists {
		return storage.ErrDuplicateKey
	}
	s.insertLocked(e)
	return nil
}

// Aggregate returns the sum of amount_lamports over matching entries.
// Returns ErrAmountOverflow when the sum exceeds MaxInt64, as the
// Postgres BIGINT sum does.
func (s *LedgerStore) Aggregate(_ context.Context, f storage.AggregateFilter) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum uint64
	for _, e := range s.entries {
		if !matches(e, f) {
			continue
		}
		if e.AmountLamports > math.MaxInt64-sum {
			return 0, storage.ErrAmountOverflow
		}
		sum += e.AmountLamports
	}
	return sum, nil
}

// ListByMint retrieves all entries for a mint, ordered by created_at ASC, entry_id ASC.
func (s *LedgerStore) ListByMint(_ context.Context, mint string) ([]*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEntry
	for _, e := range s.entries {
		if e.Mint == mint {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].EntryID < result[j].EntryID
	})

	return result, nil
}

// ListEarners returns distinct earner wallets with entries for a mint, sorted ASC.
func (s *LedgerStore) ListEarners(_ context.Context, mint string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var wallets []string
	for _, e := range s.entries {
		if e.Mint != mint || e.BeneficiaryKind != domain.BeneficiaryEarner {
			continue
		}
		w := e.Wallet()
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		wallets = append(wallets, w)
	}

	sort.Strings(wallets)
	return wallets, nil
}

// Watermark returns the number of entries stored for a mint.
func (s *LedgerStore) Watermark(_ context.Context, mint string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.counts[mint], nil
}

// insertLocked stores an entry. Caller must hold s.mu for writing.
func (s *LedgerStore) insertLocked(e *domain.LedgerEntry) {
	copy := *e
	s.entries = append(s.entries, &copy)
	s.ids[e.EntryID] = struct{}{}
	s.counts[e.Mint]++
}

// checkEntry maps domain validation failures to ErrInvalidInput.
func checkEntry(e *domain.LedgerEntry) error {
	if e == nil {
		return storage.ErrInvalidInput
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return nil
}

func matches(e *domain.LedgerEntry, f storage.AggregateFilter) bool {
	if e.Mint != f.Mint {
		return false
	}
	if f.EntryType != nil && e.EntryType != *f.EntryType {
		return false
	}
	if f.BeneficiaryKind != nil && e.BeneficiaryKind != *f.BeneficiaryKind {
		return false
	}
	if f.BeneficiaryWallet != nil && e.Wallet() != *f.BeneficiaryWallet {
		return false
	}
	return true
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
