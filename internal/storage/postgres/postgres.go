package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	config.ConnConfig.Tracer = queryMetrics{}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// NewStores returns the full store set backed by pool, audit history
// included.
func NewStores(pool *Pool) *storage.Stores {
	return &storage.Stores{
		Tokens:       NewTokenStore(pool),
		Snapshots:    NewSnapshotStore(pool),
		Ledger:       NewLedgerStore(pool),
		Committer:    NewAccrualCommitter(pool),
		Agreements:   NewAgreementStore(pool),
		JobRuns:      NewJobRunStore(pool),
		Locker:       NewJobLocker(pool),
		AuditHistory: NewAuditHistoryStore(pool),
	}
}

type queryTraceKey struct{}

type queryTrace struct {
	start time.Time
	op    string
}

// queryMetrics records query duration and errors, labeled by SQL verb.
type queryMetrics struct{}

func (queryMetrics) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryTraceKey{}, queryTrace{start: time.Now(), op: sqlVerb(data.SQL)})
}

func (queryMetrics) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	t, ok := ctx.Value(queryTraceKey{}).(queryTrace)
	if !ok {
		return
	}
	observability.RecordDBQuery("postgres", t.op, time.Since(t.start).Seconds(), data.Err)
}

// sqlVerb returns the lower-cased first keyword of a statement.
func sqlVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation     = "23505" // unique_violation
	pgErrForeignKeyViolation = "23503" // foreign_key_violation
	pgErrCheckViolation      = "23514" // check_violation
	pgErrNotNullViolation    = "23502" // not_null_violation
	pgErrOutOfRange          = "22003" // numeric_value_out_of_range
)

// isOutOfRangeError checks if error is a numeric overflow, e.g. a SUM cast
// back to BIGINT.
func isOutOfRangeError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrOutOfRange
}

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	// Use pgconn.PgError for reliable error code detection
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isIntegrityError checks if error is a constraint violation other than uniqueness.
func isIntegrityError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrForeignKeyViolation, pgErrCheckViolation, pgErrNotNullViolation:
			return true
		}
	}
	return false
}

// mapWriteError translates constraint violations into storage sentinels.
func mapWriteError(err error, op string) error {
	switch {
	case isDuplicateKeyError(err):
		return storage.ErrDuplicateKey
	case isIntegrityError(err):
		return fmt.Errorf("%w: %s: %v", storage.ErrInvalidInput, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// lamportsParam converts an amount to the BIGINT column range.
func lamportsParam(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: amount %d exceeds column range", storage.ErrInvalidInput, v)
	}
	return int64(v), nil
}

// lockKey hashes a name into an advisory lock key.
const lockKey = `hashtextextended($1, 0)`

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
