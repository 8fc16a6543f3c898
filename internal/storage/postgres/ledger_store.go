package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// ledger_entries rejects UPDATE and DELETE at the database level.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

const entryColumns = `entry_id, mint, entry_type, beneficiary_kind, beneficiary_wallet, amount_lamports,
	snapshot_id, agreement_version_id, job_run_id, external_ref, created_at`

const insertEntryQuery = `
	INSERT INTO ledger_entries (` + entryColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

// execer is satisfied by both *Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append adds a single executor entry. Accrual entries are only written by
// AccrualCommitter together with their snapshot.
func (s *LedgerStore) Append(ctx context.Context, e *domain.LedgerEntry) error {
	if err := checkEntry(e); err != nil {
		return err
	}
	if e.EntryType == domain.EntryTypeAccrual {
		return fmt.Errorf("%w: accrual entries require a snapshot commit", storage.ErrInvalidInput)
	}
	return insertEntry(ctx, s.pool, e)
}

// Aggregate returns the sum of amount_lamports over matching entries.
func (s *LedgerStore) Aggregate(ctx context.Context, f storage.AggregateFilter) (uint64, error) {
	where := []string{"mint = $1"}
	args := []any{f.Mint}

	if f.EntryType != nil {
		args = append(args, string(*f.EntryType))
		where = append(where, fmt.Sprintf("entry_type = $%d", len(args)))
	}
	if f.BeneficiaryKind != nil {
		args = append(args, string(*f.BeneficiaryKind))
		where = append(where, fmt.Sprintf("beneficiary_kind = $%d", len(args)))
	}
	if f.BeneficiaryWallet != nil {
		args = append(args, *f.BeneficiaryWallet)
		where = append(where, fmt.Sprintf("beneficiary_wallet = $%d", len(args)))
	}

	query := `
		SELECT COALESCE(SUM(amount_lamports), 0)::BIGINT
		FROM ledger_entries
		WHERE ` + strings.Join(where, " AND ")

	var sum int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		if isOutOfRangeError(err) {
			return 0, fmt.Errorf("aggregate ledger: %w", storage.ErrAmountOverflow)
		}
		return 0, fmt.Errorf("aggregate ledger: %w", err)
	}
	return uint64(sum), nil
}

// ListByMint retrieves all entries for a mint, ordered by created_at ASC, entry_id ASC.
func (s *LedgerStore) ListByMint(ctx context.Context, mint string) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE mint = $1
		ORDER BY created_at ASC, entry_id ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListEarners returns distinct earner wallets with entries for a mint, sorted ASC.
func (s *LedgerStore) ListEarners(ctx context.Context, mint string) ([]string, error) {
	query := `
		SELECT DISTINCT beneficiary_wallet
		FROM ledger_entries
		WHERE mint = $1 AND beneficiary_kind = 'EARNER'
		ORDER BY beneficiary_wallet ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("list earners: %w", err)
	}
	defer rows.Close()

	wallets, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan earners: %w", err)
	}
	return wallets, nil
}

// Watermark returns the number of entries stored for a mint.
func (s *LedgerStore) Watermark(ctx context.Context, mint string) (uint64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE mint = $1`, mint).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ledger watermark: %w", err)
	}
	return uint64(n), nil
}

func insertEntry(ctx context.Context, db execer, e *domain.LedgerEntry) error {
	amount, err := lamportsParam(e.AmountLamports)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, insertEntryQuery,
		e.EntryID,
		e.Mint,
		string(e.EntryType),
		string(e.BeneficiaryKind),
		e.BeneficiaryWallet,
		amount,
		e.SnapshotID,
		e.AgreementVersionID,
		e.JobRunID,
		e.ExternalRef,
		e.CreatedAt,
	)
	if err != nil {
		return mapWriteError(err, "insert ledger entry")
	}
	return nil
}

// checkEntry maps domain validation failures to ErrInvalidInput.
func checkEntry(e *domain.LedgerEntry) error {
	if e == nil {
		return storage.ErrInvalidInput
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	for rows.Next() {
		var (
			e         domain.LedgerEntry
			entryType string
			kind      string
			amount    int64
		)
		err := rows.Scan(
			&e.EntryID,
			&e.Mint,
			&entryType,
			&kind,
			&e.BeneficiaryWallet,
			&amount,
			&e.SnapshotID,
			&e.AgreementVersionID,
			&e.JobRunID,
			&e.ExternalRef,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.EntryType = domain.EntryType(entryType)
		e.BeneficiaryKind = domain.BeneficiaryKind(kind)
		e.AmountLamports = uint64(amount)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
