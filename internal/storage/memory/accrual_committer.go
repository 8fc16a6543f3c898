package memory

import (
	"context"
	"fmt"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// AccrualCommitter is an in-memory implementation of storage.AccrualCommitter.
// It holds the write locks of both stores for the whole commit so readers
// observe either the full batch or none of it.
type AccrualCommitter struct {
	snapshots *SnapshotStore
	ledger    *LedgerStore
}

// NewAccrualCommitter creates a committer over the given stores.
func NewAccrualCommitter(snapshots *SnapshotStore, ledger *LedgerStore) *AccrualCommitter {
	return &AccrualCommitter{snapshots: snapshots, ledger: ledger}
}

// CommitAccrual inserts the snapshot and its entries atomically.
func (c *AccrualCommitter) CommitAccrual(_ context.Context, b *storage.AccrualBatch) error {
	if b == nil || b.Snapshot == nil || b.Snapshot.Mint == "" || b.Snapshot.SnapshotID == "" {
		return storage.ErrInvalidInput
	}
	snap := b.Snapshot

	for _, e := range b.Entries {
		if err := checkEntry(e); err != nil {
			return err
		}
		if e.EntryType != domain.EntryTypeAccrual || e.Mint != snap.Mint ||
			e.SnapshotID == nil || *e.SnapshotID != snap.SnapshotID {
			return fmt.Errorf("%w: entry %s does not belong to snapshot %s", storage.ErrInvalidInput, e.EntryID, snap.SnapshotID)
		}
	}

	// Lock order: snapshots, then ledger.
	c.snapshots.mu.Lock()
	defer c.snapshots.mu.Unlock()
	c.ledger.mu.Lock()
	defer c.ledger.mu.Unlock()

	current := c.snapshots.latestTotalLocked(snap.Mint)
	if current != b.PreviousTotal || snap.LifetimeTotalLamports <= current {
		return storage.ErrStaleSnapshot
	}
	if _, exists := c.snapshots.byID[snap.SnapshotID]; exists {
		return storage.ErrDuplicateKey
	}

	batchIDs := make(map[string]struct{}, len(b.Entries))
	for _, e := range b.Entries {
		if _, exists := c.ledger.ids[e.EntryID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchIDs[e.EntryID]; exists {
			return storage.ErrDuplicateKey
		}
		batchIDs[e.EntryID] = struct{}{}
	}

	c.snapshots.insertLocked(snap)
	for _, e := range b.Entries {
		c.ledger.insertLocked(e)
	}
	return nil
}

var _ storage.AccrualCommitter = (*AccrualCommitter)(nil)
