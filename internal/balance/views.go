// Package balance derives token and earner balances from the ledger.
//
// Balances are never stored. Each read either replays the ledger through
// store-side sums or returns a cached result whose ledger watermark still
// matches, which for an append-only ledger is the same value.
package balance

import (
	"context"
	"fmt"
	"math"
	"sync"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/storage"
)

// TokenBalance is the derived position of one token.
type TokenBalance struct {
	Mint            string
	PlatformAccrued uint64 // Σ ACCRUAL/PLATFORM
	EarnersEarned   uint64 // Σ ACCRUAL/EARNER
	Claimed         uint64 // Σ CLAIM_FROM_SOURCE
	EarnersPaid     uint64 // Σ PAYOUT_TO_EARNER
	Withdrawn       uint64 // Σ PLATFORM_WITHDRAWAL
	TreasuryLiquid  int64  // Claimed - EarnersPaid - Withdrawn
	Watermark       uint64 // ledger entry count the balance was computed at
}

// EarnerBalance is the derived position of one earner on one token.
type EarnerBalance struct {
	Mint   string
	Wallet string
	Earned uint64 // Σ ACCRUAL/EARNER for the wallet
	Paid   uint64 // Σ PAYOUT_TO_EARNER for the wallet
	Owed   int64  // Earned - Paid
}

type earnerKey struct {
	mint   string
	wallet string
}

type cachedEarner struct {
	balance   EarnerBalance
	watermark uint64
}

// Views computes balances with an optional watermark-validated cache.
type Views struct {
	ledger storage.LedgerStore
	cache  bool

	mu      sync.Mutex
	tokens  map[string]TokenBalance
	earners map[earnerKey]cachedEarner
}

// ViewsOptions contains configuration for creating Views.
type ViewsOptions struct {
	Ledger       storage.LedgerStore
	DisableCache bool
}

// NewViews creates balance views over ledger.
func NewViews(opts ViewsOptions) *Views {
	return &Views{
		ledger:  opts.Ledger,
		cache:   !opts.DisableCache,
		tokens:  make(map[string]TokenBalance),
		earners: make(map[earnerKey]cachedEarner),
	}
}

// TokenBalance returns the balance of mint.
func (v *Views) TokenBalance(ctx context.Context, mint string) (*TokenBalance, error) {
	mark, err := v.ledger.Watermark(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("ledger watermark for %s: %w", mint, err)
	}

	if v.cache {
		v.mu.Lock()
		cached, ok := v.tokens[mint]
		v.mu.Unlock()
		if ok && cached.Watermark == mark {
			observability.RecordBalanceCache(true)
			return &cached, nil
		}
		observability.RecordBalanceCache(false)
	}

	b := TokenBalance{Mint: mint, Watermark: mark}
	sums := []struct {
		dst   *uint64
		entry domain.EntryType
		kind  *domain.BeneficiaryKind
	}{
		{&b.PlatformAccrued, domain.EntryTypeAccrual, kindPtr(domain.BeneficiaryPlatform)},
		{&b.EarnersEarned, domain.EntryTypeAccrual, kindPtr(domain.BeneficiaryEarner)},
		{&b.Claimed, domain.EntryTypeClaimFromSource, nil},
		{&b.EarnersPaid, domain.EntryTypePayoutToEarner, nil},
		{&b.Withdrawn, domain.EntryTypePlatformWithdrawal, nil},
	}
	for _, s := range sums {
		entry := s.entry
		sum, err := v.ledger.Aggregate(ctx, storage.AggregateFilter{Mint: mint, EntryType: &entry, BeneficiaryKind: s.kind})
		if err != nil {
			return nil, fmt.Errorf("sum %s for %s: %w", entry, mint, err)
		}
		*s.dst = sum
	}
	b.TreasuryLiquid = Sub(b.Claimed, AddSat(b.EarnersPaid, b.Withdrawn))

	if v.cache {
		v.mu.Lock()
		v.tokens[mint] = b
		v.mu.Unlock()
	}
	return &b, nil
}

// EarnerBalance returns the balance of wallet on mint.
func (v *Views) EarnerBalance(ctx context.Context, mint, wallet string) (*EarnerBalance, error) {
	mark, err := v.ledger.Watermark(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("ledger watermark for %s: %w", mint, err)
	}

	key := earnerKey{mint: mint, wallet: wallet}
	if v.cache {
		v.mu.Lock()
		cached, ok := v.earners[key]
		v.mu.Unlock()
		if ok && cached.watermark == mark {
			observability.RecordBalanceCache(true)
			b := cached.balance
			return &b, nil
		}
		observability.RecordBalanceCache(false)
	}

	accrual, payout := domain.EntryTypeAccrual, domain.EntryTypePayoutToEarner
	earner := domain.BeneficiaryEarner

	earned, err := v.ledger.Aggregate(ctx, storage.AggregateFilter{
		Mint: mint, EntryType: &accrual, BeneficiaryKind: &earner, BeneficiaryWallet: &wallet,
	})
	if err != nil {
		return nil, fmt.Errorf("sum earned for %s/%s: %w", mint, wallet, err)
	}
	paid, err := v.ledger.Aggregate(ctx, storage.AggregateFilter{
		Mint: mint, EntryType: &payout, BeneficiaryWallet: &wallet,
	})
	if err != nil {
		return nil, fmt.Errorf("sum paid for %s/%s: %w", mint, wallet, err)
	}

	b := EarnerBalance{Mint: mint, Wallet: wallet, Earned: earned, Paid: paid, Owed: Sub(earned, paid)}
	if v.cache {
		v.mu.Lock()
		v.earners[key] = cachedEarner{balance: b, watermark: mark}
		v.mu.Unlock()
	}
	return &b, nil
}

// Earners returns the balance of every earner with entries on mint,
// ordered by wallet.
func (v *Views) Earners(ctx context.Context, mint string) ([]*EarnerBalance, error) {
	wallets, err := v.ledger.ListEarners(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("list earners for %s: %w", mint, err)
	}
	result := make([]*EarnerBalance, 0, len(wallets))
	for _, w := range wallets {
		b, err := v.EarnerBalance(ctx, mint, w)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, nil
}

func kindPtr(k domain.BeneficiaryKind) *domain.BeneficiaryKind {
	return &k
}

// Sub returns a - b as a signed figure, saturating at the int64 range.
func Sub(a, b uint64) int64 {
	if a >= b {
		return clamp(a - b)
	}
	return -clamp(b - a)
}

// AddSat returns a + b, saturating at MaxUint64.
func AddSat(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func clamp(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
