package storage

import (
	"context"

	"royalty-ledger/internal/domain"
)

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Register adds a tracked token. Returns ErrDuplicateKey if mint exists.
	Register(ctx context.Context, t *domain.Token) error

	// Get retrieves a token. Returns ErrNotFound if not exists.
	Get(ctx context.Context, mint string) (*domain.Token, error)

	// ListTracked retrieves all tracked tokens ordered by mint ASC.
	ListTracked(ctx context.Context) ([]*domain.Token, error)
}

// SnapshotStore provides read access to fee_snapshots storage.
// Snapshots are only ever written through AccrualCommitter.
type SnapshotStore interface {
	// Latest retrieves the snapshot with the highest lifetime total for a mint.
	// Returns ErrNotFound if the mint has no snapshots.
	Latest(ctx context.Context, mint string) (*domain.FeeSnapshot, error)

	// ListByMint retrieves all snapshots for a mint, ordered by lifetime total ASC.
	ListByMint(ctx context.Context, mint string) ([]*domain.FeeSnapshot, error)
}

// AggregateFilter narrows a ledger sum. Nil fields match everything.
type AggregateFilter struct {
	Mint              string
	EntryType         *domain.EntryType
	BeneficiaryKind   *domain.BeneficiaryKind
	BeneficiaryWallet *string
}

// LedgerStore provides append-only access to ledger_entries storage.
// There is no update or delete operation.
type LedgerStore interface {
	// Append adds a single entry. Returns ErrInvalidInput on integrity
	// violations and ErrDuplicateKey if entry_id exists.
	Append(ctx context.Context, e *domain.LedgerEntry) error

	// Aggregate returns the sum of amount_lamports over matching entries.
	Aggregate(ctx context.Context, f AggregateFilter) (uint64, error)

	// ListByMint retrieves all entries for a mint, ordered by created_at ASC, entry_id ASC.
	ListByMint(ctx context.Context, mint string) ([]*domain.LedgerEntry, error)

	// ListEarners returns distinct earner wallets with entries for a mint, sorted ASC.
	ListEarners(ctx context.Context, mint string) ([]string, error)

	// Watermark returns the number of entries stored for a mint. Entries are
	// append-only, so equal watermarks imply identical ledger contents.
	Watermark(ctx context.Context, mint string) (uint64, error)
}

// AccrualBatch is one token's unit of work within a job run: the new
// snapshot and the accrual entries derived from its delta.
type AccrualBatch struct {
	Snapshot      *domain.FeeSnapshot
	PreviousTotal uint64 // latest lifetime total the delta was computed from (0 if none)
	Entries       []*domain.LedgerEntry
}

// AccrualCommitter writes a snapshot and its entries as one atomic unit.
type AccrualCommitter interface {
	// CommitAccrual re-reads the latest snapshot under a per-mint lock and
	// inserts the batch only if it still equals PreviousTotal and the new
	// total is strictly greater. Returns ErrStaleSnapshot otherwise,
	// ErrInvalidInput on integrity violations and ErrDuplicateKey if the
	// snapshot or any entry id exists. Nothing is written on error.
	CommitAccrual(ctx context.Context, b *AccrualBatch) error
}

// AgreementStore provides access to royalty_agreement_versions and shares.
type AgreementStore interface {
	// GetActive retrieves the open version for a mint with shares ordered by position.
	// Returns ErrNotFound if no version is active.
	GetActive(ctx context.Context, mint string) (*domain.AgreementVersion, error)

	// GetHistory retrieves all versions for a mint ordered by effective_from ASC.
	GetHistory(ctx context.Context, mint string) ([]*domain.AgreementVersion, error)

	// Rotate closes the active version (if any) at next.EffectiveFrom and
	// inserts next as the new active version, atomically.
	Rotate(ctx context.Context, next *domain.AgreementVersion) error
}

// JobRunStore provides access to job_runs storage.
type JobRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.JobRun) error

	// Complete records the terminal state of a running run.
	// Returns ErrNotFound if missing, ErrInvalidInput if already terminal.
	Complete(ctx context.Context, r *domain.JobRun) error

	// GetByID retrieves a run. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.JobRun, error)

	// ListRecent retrieves the latest runs ordered by started_at DESC.
	// A non-positive limit selects the default of 50.
	ListRecent(ctx context.Context, limit int) ([]*domain.JobRun, error)
}

// JobLocker serializes job runs across processes.
type JobLocker interface {
	// TryLock acquires the named lock without waiting.
	// Returns ErrJobLocked if it is held elsewhere. The returned release
	// function must be called exactly once.
	TryLock(ctx context.Context, name string) (release func(), err error)
}

// AuditHistoryStore provides append-only access to reconciliation results.
type AuditHistoryStore interface {
	// Record appends observations from one audit pass.
	Record(ctx context.Context, obs []*domain.AuditObservation) error

	// RecentResults returns pass/fail outcomes for a mint and check,
	// most recent first, at most limit values.
	RecentResults(ctx context.Context, mint, check string, limit int) ([]bool, error)
}

// Stores bundles every store a process needs. Bootstrap code builds one
// from a single backend.
type Stores struct {
	Tokens       TokenStore
	Snapshots    SnapshotStore
	Ledger       LedgerStore
	Committer    AccrualCommitter
	Agreements   AgreementStore
	JobRuns      JobRunStore
	Locker       JobLocker
	AuditHistory AuditHistoryStore
}
