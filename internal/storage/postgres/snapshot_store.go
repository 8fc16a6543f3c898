package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `snapshot_id, mint, lifetime_total_lamports, job_run_id, source_ref, created_at`

// Latest retrieves the highest snapshot for a mint. Returns ErrNotFound if none.
func (s *SnapshotStore) Latest(ctx context.Context, mint string) (*domain.FeeSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM fee_snapshots
		WHERE mint = $1
		ORDER BY lifetime_total_lamports DESC
		LIMIT 1
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	defer rows.Close()

	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[0], nil
}

// ListByMint retrieves all snapshots for a mint, ordered by lifetime total ASC.
func (s *SnapshotStore) ListByMint(ctx context.Context, mint string) ([]*domain.FeeSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM fee_snapshots
		WHERE mint = $1
		ORDER BY lifetime_total_lamports ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func scanSnapshots(rows pgx.Rows) ([]*domain.FeeSnapshot, error) {
	var snaps []*domain.FeeSnapshot
	for rows.Next() {
		var (
			snap  domain.FeeSnapshot
			total int64
		)
		if err := rows.Scan(&snap.SnapshotID, &snap.Mint, &total, &snap.JobRunID, &snap.SourceRef, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.LifetimeTotalLamports = uint64(total)
		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}
