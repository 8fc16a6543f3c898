package reconciliation

import (
	"errors"

	"royalty-ledger/internal/balance"
	"royalty-ledger/internal/domain"
)

// EarnerFigures is one earner's position as recomputed from the ledger.
type EarnerFigures struct {
	Wallet string
	Earned uint64
	Paid   uint64
	Owed   int64
}

// TokenReport is the audit result for one token. Check booleans carry the
// raw outcome of this pass; Violations holds only confirmed failures.
type TokenReport struct {
	Mint string

	LifetimeTotal   uint64 // latest snapshot total, 0 without snapshots
	PlatformAccrual uint64
	EarnerAccrual   uint64
	Claimed         uint64
	Payout          uint64
	Withdrawal      uint64
	TreasuryLiquid  int64
	Earners         []EarnerFigures

	// View is the balance view output for the token, reported next to the
	// recomputed figures. Nil when no views are configured.
	View *balance.TokenBalance

	AccrualMatchesSnapshot bool
	OwedNonNegative        bool
	TreasuryNonNegative    bool
	FailingEarners         []string // wallets with negative owed

	Unconfirmed []string // failing checks not yet confirmed
	Violations  []*domain.ConsistencyError

	Error string // set when the token could not be audited
}

// Failed reports whether the token has a confirmed failure or could not be
// audited.
func (t *TokenReport) Failed() bool {
	return len(t.Violations) > 0 || t.Error != ""
}

// Report is the result of one audit pass over every tracked token.
type Report struct {
	AuditID     string
	GeneratedAt int64 // ms
	Tokens      []*TokenReport
	HasFailures bool
}

// Err joins every confirmed violation, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, t := range r.Tokens {
		for _, v := range t.Violations {
			errs = append(errs, v)
		}
	}
	return errors.Join(errs...)
}
