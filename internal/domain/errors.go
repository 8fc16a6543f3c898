package domain

import (
	"errors"
	"fmt"
)

// ErrNoActiveAgreement is returned when a mint has no open agreement version.
var ErrNoActiveAgreement = errors.New("no active agreement")

// ValidationError reports malformed input that must never reach the ledger,
// e.g. agreement basis points that do not sum to TotalBps.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// DataSourceError reports an unreachable external fee total for one mint.
// The token is skipped for the run; no state is written.
type DataSourceError struct {
	Mint string
	Err  error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("fee source unavailable for %s: %v", e.Mint, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// TransactionError reports a failed atomic snapshot+ledger write. The write
// is rolled back entirely and the mint is retried on the next run.
type TransactionError struct {
	Mint string
	Err  error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("accrual commit failed for %s: %v", e.Mint, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// ConsistencyError reports a failed reconciliation invariant. It is only
// ever reported, never corrected automatically.
type ConsistencyError struct {
	Mint      string
	Invariant string
	Detail    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("invariant %s failed for %s: %s", e.Invariant, e.Mint, e.Detail)
}
