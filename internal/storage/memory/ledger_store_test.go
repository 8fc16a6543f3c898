package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

func seedLedger(t *testing.T) *LedgerStore {
	t.Helper()

	snaps := NewSnapshotStore()
	ledger := NewLedgerStore()
	c := NewAccrualCommitter(snaps, ledger)

	err := c.CommitAccrual(context.Background(), &storage.AccrualBatch{
		Snapshot: &domain.FeeSnapshot{SnapshotID: "s1", Mint: "m1", LifetimeTotalLamports: 150},
		Entries: []*domain.LedgerEntry{
			platformAccrual("e1", "m1", "s1", 15),
			earnerAccrual("e2", "m1", "s1", "B", 45),
			earnerAccrual("e3", "m1", "s1", "A", 90),
		},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return ledger
}

func TestLedgerStore_Aggregate(t *testing.T) {
	ledger := seedLedger(t)
	ctx := context.Background()

	claim := &domain.LedgerEntry{
		EntryID:         "c1",
		Mint:            "m1",
		EntryType:       domain.EntryTypeClaimFromSource,
		BeneficiaryKind: domain.BeneficiaryPlatform,
		AmountLamports:  150,
		ExternalRef:     strPtr("sig1"),
	}
	if err := ledger.Append(ctx, claim); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	accrual := domain.EntryTypeAccrual
	earner := domain.BeneficiaryEarner
	platform := domain.BeneficiaryPlatform

	tests := []struct {
		name   string
		filter storage.AggregateFilter
		want   uint64
	}{
		{"all", storage.AggregateFilter{Mint: "m1"}, 300},
		{"accruals", storage.AggregateFilter{Mint: "m1", EntryType: &accrual}, 150},
		{"earner accruals", storage.AggregateFilter{Mint: "m1", EntryType: &accrual, BeneficiaryKind: &earner}, 135},
		{"platform accruals", storage.AggregateFilter{Mint: "m1", EntryType: &accrual, BeneficiaryKind: &platform}, 15},
		{"single wallet", storage.AggregateFilter{Mint: "m1", BeneficiaryWallet: strPtr("A")}, 90},
		{"other mint", storage.AggregateFilter{Mint: "m2"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.Aggregate(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Aggregate failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLedgerStore_AppendRejects(t *testing.T) {
	ledger := NewLedgerStore()
	ctx := context.Background()

	tests := []struct {
		name  string
		entry *domain.LedgerEntry
	}{
		{"nil", nil},
		{"accrual outside commit", platformAccrual("e1", "m1", "s1", 1)},
		{"earner without wallet", &domain.LedgerEntry{
			EntryID: "e2", Mint: "m1", EntryType: domain.EntryTypePayoutToEarner, BeneficiaryKind: domain.BeneficiaryEarner,
		}},
		{"platform with wallet", &domain.LedgerEntry{
			EntryID: "e3", Mint: "m1", EntryType: domain.EntryTypePlatformWithdrawal,
			BeneficiaryKind: domain.BeneficiaryPlatform, BeneficiaryWallet: strPtr("A"),
		}},
		{"unknown type", &domain.LedgerEntry{
			EntryID: "e4", Mint: "m1", EntryType: "REFUND", BeneficiaryKind: domain.BeneficiaryPlatform,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.Append(ctx, tt.entry)
			if !errors.Is(err, storage.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestLedgerStore_AppendDuplicate(t *testing.T) {
	ledger := NewLedgerStore()
	ctx := context.Background()

	payout := &domain.LedgerEntry{
		EntryID:           "p1",
		Mint:              "m1",
		EntryType:         domain.EntryTypePayoutToEarner,
		BeneficiaryKind:   domain.BeneficiaryEarner,
		BeneficiaryWallet: strPtr("A"),
		AmountLamports:    10,
	}

	if err := ledger.Append(ctx, payout); err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	if err := ledger.Append(ctx, payout); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestLedgerStore_ListEarnersAndOrder(t *testing.T) {
	ledger := seedLedger(t)
	ctx := context.Background()

	earners, err := ledger.ListEarners(ctx, "m1")
	if err != nil {
		t.Fatalf("ListEarners failed: %v", err)
	}
	if len(earners) != 2 || earners[0] != "A" || earners[1] != "B" {
		t.Errorf("Expected [A B], got %v", earners)
	}

	entries, err := ledger.ListByMint(ctx, "m1")
	if err != nil {
		t.Fatalf("ListByMint failed: %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].EntryID > entries[i].EntryID {
			t.Errorf("entries not ordered by entry_id at %d", i)
		}
	}

	// Returned values are copies.
	entries[0].AmountLamports = 999
	again, _ := ledger.ListByMint(ctx, "m1")
	if again[0].AmountLamports == 999 {
		t.Error("ListByMint leaked internal state")
	}
}

func TestLedgerStore_AggregateOverflow(t *testing.T) {
	ledger := seedLedger(t)
	ctx := context.Background()

	for _, sig := range []string{"sig-1", "sig-2"} {
		err := ledger.Append(ctx, &domain.LedgerEntry{
			EntryID:         "c-" + sig,
			Mint:            "m1",
			EntryType:       domain.EntryTypeClaimFromSource,
			BeneficiaryKind: domain.BeneficiaryPlatform,
			AmountLamports:  math.MaxInt64,
			ExternalRef:     strPtr(sig),
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	claim := domain.EntryTypeClaimFromSource
	if _, err := ledger.Aggregate(ctx, storage.AggregateFilter{Mint: "m1", EntryType: &claim}); !errors.Is(err, storage.ErrAmountOverflow) {
		t.Errorf("expected ErrAmountOverflow, got %v", err)
	}

	accrual := domain.EntryTypeAccrual
	got, err := ledger.Aggregate(ctx, storage.AggregateFilter{Mint: "m1", EntryType: &accrual})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if got != 150 {
		t.Errorf("accruals = %d, want 150", got)
	}
}
