package domain

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryTypeAccrual            EntryType = "ACCRUAL"
	EntryTypeClaimFromSource    EntryType = "CLAIM_FROM_SOURCE"
	EntryTypePayoutToEarner     EntryType = "PAYOUT_TO_EARNER"
	EntryTypePlatformWithdrawal EntryType = "PLATFORM_WITHDRAWAL"
)

// EntryTypes lists every entry type in a stable order.
var EntryTypes = []EntryType{
	EntryTypeAccrual,
	EntryTypeClaimFromSource,
	EntryTypePayoutToEarner,
	EntryTypePlatformWithdrawal,
}

// String returns the string representation of EntryType.
func (t EntryType) String() string {
	return string(t)
}

// IsValid checks if the entry type is a known value.
func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeAccrual, EntryTypeClaimFromSource, EntryTypePayoutToEarner, EntryTypePlatformWithdrawal:
		return true
	}
	return false
}

// BeneficiaryKind identifies who an entry is attributed to.
type BeneficiaryKind string

const (
	BeneficiaryPlatform BeneficiaryKind = "PLATFORM"
	BeneficiaryEarner   BeneficiaryKind = "EARNER"
)

// String returns the string representation of BeneficiaryKind.
func (k BeneficiaryKind) String() string {
	return string(k)
}

// IsValid checks if the beneficiary kind is a known value.
func (k BeneficiaryKind) IsValid() bool {
	return k == BeneficiaryPlatform || k == BeneficiaryEarner
}

// LedgerEntry is an immutable monetary event.
// Corresponds to ledger_entries table in PostgreSQL.
type LedgerEntry struct {
	EntryID            string          // PRIMARY KEY, deterministic hash
	Mint               string          // token mint address
	EntryType          EntryType       // ACCRUAL | CLAIM_FROM_SOURCE | PAYOUT_TO_EARNER | PLATFORM_WITHDRAWAL
	BeneficiaryKind    BeneficiaryKind // PLATFORM | EARNER
	BeneficiaryWallet  *string         // required for EARNER, nil for PLATFORM
	AmountLamports     uint64          // non-negative by construction
	SnapshotID         *string         // triggering snapshot (accruals)
	AgreementVersionID *string         // agreement used for the split (accruals)
	JobRunID           *string         // job run that wrote the entry (accruals)
	ExternalRef        *string         // on-chain tx signature (executor entries)
	CreatedAt          int64           // record creation timestamp (ms)
}

// Wallet returns the beneficiary wallet or "" for platform entries.
func (e *LedgerEntry) Wallet() string {
	if e.BeneficiaryWallet == nil {
		return ""
	}
	return *e.BeneficiaryWallet
}

// Validate checks entry integrity. It is the single gate every store
// applies before appending.
func (e *LedgerEntry) Validate() error {
	if e.EntryID == "" || e.Mint == "" {
		return &ValidationError{Field: "entry", Reason: "entry_id and mint are required"}
	}
	if !e.EntryType.IsValid() {
		return &ValidationError{Field: "entry_type", Reason: "unknown " + string(e.EntryType)}
	}
	if !e.BeneficiaryKind.IsValid() {
		return &ValidationError{Field: "beneficiary_kind", Reason: "unknown " + string(e.BeneficiaryKind)}
	}

	switch e.BeneficiaryKind {
	case BeneficiaryEarner:
		if e.Wallet() == "" {
			return &ValidationError{Field: "beneficiary_wallet", Reason: "required for EARNER"}
		}
	case BeneficiaryPlatform:
		if e.BeneficiaryWallet != nil {
			return &ValidationError{Field: "beneficiary_wallet", Reason: "must be empty for PLATFORM"}
		}
	}

	switch e.EntryType {
	case EntryTypePayoutToEarner:
		if e.BeneficiaryKind != BeneficiaryEarner {
			return &ValidationError{Field: "beneficiary_kind", Reason: "payouts go to earners"}
		}
	case EntryTypePlatformWithdrawal, EntryTypeClaimFromSource:
		if e.BeneficiaryKind != BeneficiaryPlatform {
			return &ValidationError{Field: "beneficiary_kind", Reason: string(e.EntryType) + " is a platform entry"}
		}
	case EntryTypeAccrual:
		if e.SnapshotID == nil {
			return &ValidationError{Field: "snapshot_id", Reason: "required for ACCRUAL"}
		}
	}

	return nil
}
