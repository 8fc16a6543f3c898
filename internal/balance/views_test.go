package balance

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
	"royalty-ledger/internal/storage/memory"
)

type countingLedger struct {
	storage.LedgerStore
	aggregates atomic.Int32
}

func (c *countingLedger) Aggregate(ctx context.Context, f storage.AggregateFilter) (uint64, error) {
	c.aggregates.Add(1)
	return c.LedgerStore.Aggregate(ctx, f)
}

func strPtr(s string) *string { return &s }

func seed(t *testing.T, stores *storage.Stores) {
	t.Helper()
	ctx := context.Background()
	snap := &domain.FeeSnapshot{SnapshotID: "snap", Mint: "m", LifetimeTotalLamports: 1_000, JobRunID: "run"}
	entries := []*domain.LedgerEntry{
		{EntryID: "p", Mint: "m", EntryType: domain.EntryTypeAccrual, BeneficiaryKind: domain.BeneficiaryPlatform,
			AmountLamports: 100, SnapshotID: strPtr("snap")},
		{EntryID: "a", Mint: "m", EntryType: domain.EntryTypeAccrual, BeneficiaryKind: domain.BeneficiaryEarner,
			BeneficiaryWallet: strPtr("A"), AmountLamports: 600, SnapshotID: strPtr("snap")},
		{EntryID: "b", Mint: "m", EntryType: domain.EntryTypeAccrual, BeneficiaryKind: domain.BeneficiaryEarner,
			BeneficiaryWallet: strPtr("B"), AmountLamports: 300, SnapshotID: strPtr("snap")},
	}
	require.NoError(t, stores.Committer.CommitAccrual(ctx, &storage.AccrualBatch{Snapshot: snap, Entries: entries}))

	for _, e := range []*domain.LedgerEntry{
		{EntryID: "claim", Mint: "m", EntryType: domain.EntryTypeClaimFromSource, BeneficiaryKind: domain.BeneficiaryPlatform, AmountLamports: 900},
		{EntryID: "payA", Mint: "m", EntryType: domain.EntryTypePayoutToEarner, BeneficiaryKind: domain.BeneficiaryEarner,
			BeneficiaryWallet: strPtr("A"), AmountLamports: 250},
		{EntryID: "wd", Mint: "m", EntryType: domain.EntryTypePlatformWithdrawal, BeneficiaryKind: domain.BeneficiaryPlatform, AmountLamports: 50},
	} {
		require.NoError(t, stores.Ledger.Append(ctx, e))
	}
}

func TestTokenBalance(t *testing.T) {
	stores := memory.NewStores()
	seed(t, stores)
	views := NewViews(ViewsOptions{Ledger: stores.Ledger})

	b, err := views.TokenBalance(context.Background(), "m")
	require.NoError(t, err)

	assert.Equal(t, uint64(100), b.PlatformAccrued)
	assert.Equal(t, uint64(900), b.EarnersEarned)
	assert.Equal(t, uint64(900), b.Claimed)
	assert.Equal(t, uint64(250), b.EarnersPaid)
	assert.Equal(t, uint64(50), b.Withdrawn)
	assert.Equal(t, int64(600), b.TreasuryLiquid)
	assert.Equal(t, uint64(6), b.Watermark)
}

func TestEarnerBalances(t *testing.T) {
	stores := memory.NewStores()
	seed(t, stores)
	views := NewViews(ViewsOptions{Ledger: stores.Ledger})

	earners, err := views.Earners(context.Background(), "m")
	require.NoError(t, err)
	require.Len(t, earners, 2)

	assert.Equal(t, "A", earners[0].Wallet)
	assert.Equal(t, uint64(600), earners[0].Earned)
	assert.Equal(t, uint64(250), earners[0].Paid)
	assert.Equal(t, int64(350), earners[0].Owed)

	assert.Equal(t, "B", earners[1].Wallet)
	assert.Equal(t, int64(300), earners[1].Owed)

	unknown, err := views.EarnerBalance(context.Background(), "m", "C")
	require.NoError(t, err)
	assert.Zero(t, unknown.Owed)
}

func TestViews_CacheValidatedByWatermark(t *testing.T) {
	stores := memory.NewStores()
	seed(t, stores)
	counting := &countingLedger{LedgerStore: stores.Ledger}
	cached := NewViews(ViewsOptions{Ledger: counting})
	fresh := NewViews(ViewsOptions{Ledger: stores.Ledger, DisableCache: true})
	ctx := context.Background()

	first, err := cached.TokenBalance(ctx, "m")
	require.NoError(t, err)
	calls := counting.aggregates.Load()

	second, err := cached.TokenBalance(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, calls, counting.aggregates.Load(), "unchanged ledger must be served from cache")
	assert.Equal(t, first, second)

	require.NoError(t, stores.Ledger.Append(ctx, &domain.LedgerEntry{
		EntryID: "wd2", Mint: "m", EntryType: domain.EntryTypePlatformWithdrawal,
		BeneficiaryKind: domain.BeneficiaryPlatform, AmountLamports: 10,
	}))

	third, err := cached.TokenBalance(ctx, "m")
	require.NoError(t, err)
	assert.Greater(t, counting.aggregates.Load(), calls)

	replayed, err := fresh.TokenBalance(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, replayed, third)
	assert.Equal(t, int64(590), third.TreasuryLiquid)

	// Earner cache follows the same rule.
	a1, err := cached.EarnerBalance(ctx, "m", "A")
	require.NoError(t, err)
	require.NoError(t, stores.Ledger.Append(ctx, &domain.LedgerEntry{
		EntryID: "payA2", Mint: "m", EntryType: domain.EntryTypePayoutToEarner,
		BeneficiaryKind: domain.BeneficiaryEarner, BeneficiaryWallet: strPtr("A"), AmountLamports: 1,
	}))
	a2, err := cached.EarnerBalance(ctx, "m", "A")
	require.NoError(t, err)
	assert.Equal(t, a1.Paid+1, a2.Paid)
}

func TestSub(t *testing.T) {
	assert.Equal(t, int64(5), Sub(10, 5))
	assert.Equal(t, int64(-5), Sub(5, 10))
	assert.Equal(t, int64(math.MaxInt64), Sub(math.MaxUint64, 0))
	assert.Equal(t, int64(-math.MaxInt64), Sub(0, math.MaxUint64))
}
