package memory

import "royalty-ledger/internal/storage"

// NewStores returns a full in-memory store set sharing one snapshot and
// ledger pair.
func NewStores() *storage.Stores {
	snapshots := NewSnapshotStore()
	ledger := NewLedgerStore()
	return &storage.Stores{
		Tokens:       NewTokenStore(),
		Snapshots:    snapshots,
		Ledger:       ledger,
		Committer:    NewAccrualCommitter(snapshots, ledger),
		Agreements:   NewAgreementStore(),
		JobRuns:      NewJobRunStore(),
		Locker:       NewJobLocker(),
		AuditHistory: NewAuditHistoryStore(),
	}
}
