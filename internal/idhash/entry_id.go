package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"royalty-ledger/internal/domain"
)

// ComputeAccrualEntryID computes a deterministic entry_id for an accrual.
// Formula: SHA256(snapshot_id|ACCRUAL|beneficiary_kind|wallet)
// Returns hex-encoded hash (64 characters).
func ComputeAccrualEntryID(snapshotID string, kind domain.BeneficiaryKind, wallet string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		snapshotID,
		domain.EntryTypeAccrual,
		kind,
		wallet,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeExternalEntryID computes a deterministic entry_id for an entry
// written by a claim or payout executor.
// Formula: SHA256(mint|entry_type|tx_signature|wallet)
// Returns hex-encoded hash (64 characters).
//
// A retried executor call with the same signature maps to the same id and is
// rejected by the store as a duplicate.
func ComputeExternalEntryID(mint string, entryType domain.EntryType, txSignature, wallet string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		mint,
		entryType,
		txSignature,
		wallet,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
