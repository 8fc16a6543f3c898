package postgres

import (
	"context"
	"errors"
	"fmt"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// AccrualCommitter implements storage.AccrualCommitter using PostgreSQL.
// Concurrent commits for one mint are serialized by a transaction-scoped
// advisory lock keyed by the mint.
type AccrualCommitter struct {
	pool *Pool
}

// NewAccrualCommitter creates a new AccrualCommitter.
func NewAccrualCommitter(pool *Pool) *AccrualCommitter {
	return &AccrualCommitter{pool: pool}
}

// Compile-time interface check.
var _ storage.AccrualCommitter = (*AccrualCommitter)(nil)

// CommitAccrual inserts the snapshot and its entries in one transaction.
func (c *AccrualCommitter) CommitAccrual(ctx context.Context, b *storage.AccrualBatch) error {
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

	total, err := lamportsParam(snap.LifetimeTotalLamports)
	if err != nil {
		return err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(`+lockKey+`)`, "accrual:"+snap.Mint); err != nil {
		return fmt.Errorf("lock mint: %w", err)
	}

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(lifetime_total_lamports), 0) FROM fee_snapshots WHERE mint = $1`,
		snap.Mint,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("read latest snapshot: %w", err)
	}
	if uint64(current) != b.PreviousTotal || snap.LifetimeTotalLamports <= uint64(current) {
		return storage.ErrStaleSnapshot
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO fee_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, snap.SnapshotID, snap.Mint, total, snap.JobRunID, snap.SourceRef, snap.CreatedAt)
	if err != nil {
		return mapWriteError(err, "insert snapshot")
	}

	for _, e := range b.Entries {
		if err := insertEntry(ctx, tx, e); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, storage.ErrInvalidInput) {
				return err
			}
			return fmt.Errorf("insert accrual entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
