package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

func accrualEntry(id, mint, snapshotID string, wallet *string, amount uint64) *domain.LedgerEntry {
	kind := domain.BeneficiaryPlatform
	if wallet != nil {
		kind = domain.BeneficiaryEarner
	}
	return &domain.LedgerEntry{
		EntryID:            id,
		Mint:               mint,
		EntryType:          domain.EntryTypeAccrual,
		BeneficiaryKind:    kind,
		BeneficiaryWallet:  wallet,
		AmountLamports:     amount,
		SnapshotID:         ptr(snapshotID),
		AgreementVersionID: ptr("v1"),
		JobRunID:           ptr("r1"),
		CreatedAt:          1000,
	}
}

func TestAccrualCommitter(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	committer := NewAccrualCommitter(pool)
	snapshots := NewSnapshotStore(pool)
	ledger := NewLedgerStore(pool)

	t.Run("commit writes snapshot and entries", func(t *testing.T) {
		truncateAll(t, pool)

		err := committer.CommitAccrual(ctx, &storage.AccrualBatch{
			Snapshot: &domain.FeeSnapshot{SnapshotID: "s1", Mint: "m1", LifetimeTotalLamports: 150_000_000, JobRunID: "r1", CreatedAt: 1000},
			Entries: []*domain.LedgerEntry{
				accrualEntry("e1", "m1", "s1", nil, 15_000_000),
				accrualEntry("e2", "m1", "s1", ptr("A"), 90_000_000),
				accrualEntry("e3", "m1", "s1", ptr("B"), 45_000_000),
			},
		})
		require.NoError(t, err)

		latest, err := snapshots.Latest(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, uint64(150_000_000), latest.LifetimeTotalLamports)

		accrual := domain.EntryTypeAccrual
		sum, err := ledger.Aggregate(ctx, storage.AggregateFilter{Mint: "m1", EntryType: &accrual})
		require.NoError(t, err)
		assert.Equal(t, latest.LifetimeTotalLamports, sum)

		wm, err := ledger.Watermark(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, uint64(3), wm)
	})

	t.Run("stale previous total is rejected", func(t *testing.T) {
		truncateAll(t, pool)

		first := &storage.AccrualBatch{Snapshot: &domain.FeeSnapshot{SnapshotID: "s1", Mint: "m1", LifetimeTotalLamports: 100, JobRunID: "r1"}}
		require.NoError(t, committer.CommitAccrual(ctx, first))

		stale := &storage.AccrualBatch{
			Snapshot:      &domain.FeeSnapshot{SnapshotID: "s2", Mint: "m1", LifetimeTotalLamports: 200, JobRunID: "r2"},
			PreviousTotal: 0,
			Entries:       []*domain.LedgerEntry{accrualEntry("e1", "m1", "s2", nil, 200)},
		}
		require.ErrorIs(t, committer.CommitAccrual(ctx, stale), storage.ErrStaleSnapshot)

		wm, err := ledger.Watermark(ctx, "m1")
		require.NoError(t, err)
		assert.Zero(t, wm)
	})

	t.Run("duplicate entry rolls back snapshot", func(t *testing.T) {
		truncateAll(t, pool)

		err := committer.CommitAccrual(ctx, &storage.AccrualBatch{
			Snapshot: &domain.FeeSnapshot{SnapshotID: "s1", Mint: "m1", LifetimeTotalLamports: 100, JobRunID: "r1"},
			Entries: []*domain.LedgerEntry{
				accrualEntry("dup", "m1", "s1", nil, 50),
				accrualEntry("dup", "m1", "s1", ptr("A"), 50),
			},
		})
		require.ErrorIs(t, err, storage.ErrDuplicateKey)

		_, err = snapshots.Latest(ctx, "m1")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("concurrent commits for one mint", func(t *testing.T) {
		truncateAll(t, pool)

		const workers = 6
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("s%d", i)
				errs[i] = committer.CommitAccrual(ctx, &storage.AccrualBatch{
					Snapshot: &domain.FeeSnapshot{SnapshotID: id, Mint: "m1", LifetimeTotalLamports: 500, JobRunID: id},
					Entries:  []*domain.LedgerEntry{accrualEntry("e"+id, "m1", id, nil, 500)},
				})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, storage.ErrStaleSnapshot)
		}
		assert.Equal(t, 1, succeeded)

		sum, err := ledger.Aggregate(ctx, storage.AggregateFilter{Mint: "m1"})
		require.NoError(t, err)
		assert.Equal(t, uint64(500), sum)
	})
}
