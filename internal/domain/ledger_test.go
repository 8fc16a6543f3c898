package domain

import (
	"errors"
	"testing"
)

func strPtr(s string) *string {
	return &s
}

func TestLedgerEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entry   LedgerEntry
		wantErr bool
	}{
		{
			name: "platform accrual",
			entry: LedgerEntry{
				EntryID: "e1", Mint: "m", EntryType: EntryTypeAccrual,
				BeneficiaryKind: BeneficiaryPlatform, SnapshotID: strPtr("s1"),
			},
		},
		{
			name: "earner accrual",
			entry: LedgerEntry{
				EntryID: "e1", Mint: "m", EntryType: EntryTypeAccrual,
				BeneficiaryKind: BeneficiaryEarner, BeneficiaryWallet: strPtr("w"), SnapshotID: strPtr("s1"),
			},
		},
		{
			name: "earner without wallet",
			entry: LedgerEntry{
				EntryID: "e1", Mint: "m", EntryType: EntryTypeAccrual,
				BeneficiaryKind: BeneficiaryEarner, SnapshotID: strPtr("s1"),
			},
			wantErr: true,
		},
		{
			name: "platform with wallet",
			entry: LedgerEntry{
				EntryID: "e1", Mint: "m", EntryType: EntryTypePlatformWithdrawal,
				BeneficiaryKind: BeneficiaryPlatform, BeneficiaryWallet: strPtr("w"),
			},
			wantErr: true,
		},
		{
			name: "payout to platform",
			entry: LedgerEntry{
				EntryID: "e1", Mint: "m", EntryType: EntryTypePayoutToEarner,
				BeneficiaryKind: BeneficiaryPlatform,
			},
			wantErr: true,
		},
		{
			name: "accrual without snapshot",
			entry: LedgerEntry{
				EntryID: "e1", Mint: "m", EntryType: EntryTypeAccrual,
				BeneficiaryKind: BeneficiaryPlatform,
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			entry: LedgerEntry{
				EntryID: "e1", Mint: "m", EntryType: "REFUND",
				BeneficiaryKind: BeneficiaryPlatform,
			},
			wantErr: true,
		},
		{
			name:    "missing id",
			entry:   LedgerEntry{Mint: "m", EntryType: EntryTypeClaimFromSource, BeneficiaryKind: BeneficiaryPlatform},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestEntryType_IsValid(t *testing.T) {
	for _, et := range EntryTypes {
		if !et.IsValid() {
			t.Errorf("%s should be valid", et)
		}
	}
	if EntryType("OTHER").IsValid() {
		t.Error("OTHER should be invalid")
	}
}
