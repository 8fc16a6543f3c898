package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// AuditHistoryStore implements storage.AuditHistoryStore using PostgreSQL.
// It keeps reconciliation outcomes next to the ledger when no ClickHouse
// is configured.
type AuditHistoryStore struct {
	pool *Pool
}

// NewAuditHistoryStore creates a new AuditHistoryStore.
func NewAuditHistoryStore(pool *Pool) *AuditHistoryStore {
	return &AuditHistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuditHistoryStore = (*AuditHistoryStore)(nil)

// Record appends observations from one audit pass in one transaction.
func (s *AuditHistoryStore) Record(ctx context.Context, obs []*domain.AuditObservation) error {
	if len(obs) == 0 {
		return nil
	}
	for _, o := range obs {
		if o == nil || o.Mint == "" || o.Check == "" {
			return storage.ErrInvalidInput
		}
	}

	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(`
			INSERT INTO reconciliation_results (
				audit_id, mint, check_name, passed, expected, actual, observed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, o.AuditID, o.Mint, o.Check, o.Passed, o.Expected, o.Actual, o.ObservedAt)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapWriteError(err, "insert reconciliation results")
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RecentResults returns outcomes for a mint and check, most recent first.
func (s *AuditHistoryStore) RecentResults(ctx context.Context, mint, check string, limit int) ([]bool, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT passed
		FROM reconciliation_results
		WHERE mint = $1 AND check_name = $2
		ORDER BY observed_at DESC, id DESC
		LIMIT $3
	`, mint, check, limit)
	if err != nil {
		return nil, fmt.Errorf("query reconciliation results: %w", err)
	}

	result, err := pgx.CollectRows(rows, pgx.RowTo[bool])
	if err != nil {
		return nil, fmt.Errorf("scan reconciliation results: %w", err)
	}
	return result, nil
}
