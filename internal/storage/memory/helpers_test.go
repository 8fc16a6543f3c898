package memory

import "royalty-ledger/internal/domain"

func strPtr(s string) *string {
	return &s
}

func platformAccrual(id, mint, snapshotID string, amount uint64) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		EntryID:         id,
		Mint:            mint,
		EntryType:       domain.EntryTypeAccrual,
		BeneficiaryKind: domain.BeneficiaryPlatform,
		AmountLamports:  amount,
		SnapshotID:      strPtr(snapshotID),
		CreatedAt:       1000,
	}
}

func earnerAccrual(id, mint, snapshotID, wallet string, amount uint64) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		EntryID:           id,
		Mint:              mint,
		EntryType:         domain.EntryTypeAccrual,
		BeneficiaryKind:   domain.BeneficiaryEarner,
		BeneficiaryWallet: strPtr(wallet),
		AmountLamports:    amount,
		SnapshotID:        strPtr(snapshotID),
		CreatedAt:         1000,
	}
}
