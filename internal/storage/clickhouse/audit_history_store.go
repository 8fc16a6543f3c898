package clickhouse

import (
	"context"
	"fmt"
	"time"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/storage"
)

// AuditHistoryStore implements storage.AuditHistoryStore using ClickHouse.
// reconciliation_results is a plain MergeTree: every audit pass appends.
type AuditHistoryStore struct {
	conn *Conn
}

// NewAuditHistoryStore creates a new AuditHistoryStore.
func NewAuditHistoryStore(conn *Conn) *AuditHistoryStore {
	return &AuditHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AuditHistoryStore = (*AuditHistoryStore)(nil)

// Record appends observations from one audit pass in a single batch.
func (s *AuditHistoryStore) Record(ctx context.Context, obs []*domain.AuditObservation) (err error) {
	if len(obs) == 0 {
		return nil
	}
	for _, o := range obs {
		if o == nil || o.Mint == "" || o.Check == "" {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "insert", time.Since(start).Seconds(), err) }()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO reconciliation_results (
			audit_id, mint, check_name, passed, expected, actual, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range obs {
		err = batch.Append(
			o.AuditID,
			o.Mint,
			o.Check,
			o.Passed,
			o.Expected,
			o.Actual,
			time.UnixMilli(o.ObservedAt).UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// RecentResults returns outcomes for a mint and check, most recent first.
func (s *AuditHistoryStore) RecentResults(ctx context.Context, mint, check string, limit int) (result []bool, err error) {
	if limit <= 0 {
		limit = 100
	}

	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "select", time.Since(start).Seconds(), err) }()

	query := `
		SELECT passed
		FROM reconciliation_results
		WHERE mint = ? AND check_name = ?
		ORDER BY observed_at DESC, audit_id DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, mint, check, limit)
	if err != nil {
		return nil, fmt.Errorf("query reconciliation results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var passed bool
		if err := rows.Scan(&passed); err != nil {
			return nil, fmt.Errorf("scan reconciliation result: %w", err)
		}
		result = append(result, passed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reconciliation results: %w", err)
	}
	return result, nil
}
