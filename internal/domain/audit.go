package domain

// Reconciliation check names. They are persisted in audit history and
// surfaced verbatim in reports.
const (
	CheckAccrualMatchesSnapshot = "accrual_matches_snapshot"
	CheckOwedNonNegative        = "owed_non_negative"
	CheckTreasuryNonNegative    = "treasury_non_negative"
)

// AuditObservation is the outcome of one reconciliation check for one mint
// in one audit pass. Corresponds to reconciliation_results table in ClickHouse.
type AuditObservation struct {
	AuditID    string // audit pass id
	Mint       string // token mint address
	Check      string // one of the Check* constants
	Passed     bool   // check outcome
	Expected   int64  // reference figure (e.g. snapshot total)
	Actual     int64  // recomputed figure (e.g. accrual sum)
	ObservedAt int64  // ms
}
