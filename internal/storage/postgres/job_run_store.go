package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// JobRunStore implements storage.JobRunStore using PostgreSQL.
type JobRunStore struct {
	pool *Pool
}

// NewJobRunStore creates a new JobRunStore.
func NewJobRunStore(pool *Pool) *JobRunStore {
	return &JobRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JobRunStore = (*JobRunStore)(nil)

const defaultListLimit = 50

const jobRunColumns = `run_id, name, started_at, finished_at, status, tokens_processed, snapshots_written, error_message`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *JobRunStore) Insert(ctx context.Context, r *domain.JobRun) error {
	if r == nil || r.RunID == "" || r.Name == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_runs (`+jobRunColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.RunID, r.Name, r.StartedAt, r.FinishedAt, string(r.Status), r.TokensProcessed, r.SnapshotsWritten, r.ErrorMessage)
	if err != nil {
		return mapWriteError(err, "insert job run")
	}
	return nil
}

// Complete records the terminal state of a running run.
func (s *JobRunStore) Complete(ctx context.Context, r *domain.JobRun) error {
	if r == nil || !r.Status.IsTerminal() || r.FinishedAt == nil {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE job_runs
		SET status = $2, finished_at = $3, tokens_processed = $4, snapshots_written = $5, error_message = $6
		WHERE run_id = $1 AND status = 'running'
	`, r.RunID, string(r.Status), *r.FinishedAt, r.TokensProcessed, r.SnapshotsWritten, r.ErrorMessage)
	if err != nil {
		return fmt.Errorf("complete job run: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetByID(ctx, r.RunID); err != nil {
		return err
	}
	return storage.ErrInvalidInput
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *JobRunStore) GetByID(ctx context.Context, runID string) (*domain.JobRun, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobRunColumns+` FROM job_runs WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("get job run: %w", err)
	}
	defer rows.Close()

	runs, err := scanJobRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storage.ErrNotFound
	}
	return runs[0], nil
}

// ListRecent retrieves the latest runs ordered by started_at DESC.
func (s *JobRunStore) ListRecent(ctx context.Context, limit int) ([]*domain.JobRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobRunColumns+`
		FROM job_runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rows.Close()

	return scanJobRuns(rows)
}

func scanJobRuns(rows pgx.Rows) ([]*domain.JobRun, error) {
	var runs []*domain.JobRun
	for rows.Next() {
		var (
			r      domain.JobRun
			status string
		)
		err := rows.Scan(&r.RunID, &r.Name, &r.StartedAt, &r.FinishedAt, &status,
			&r.TokensProcessed, &r.SnapshotsWritten, &r.ErrorMessage)
		if err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		r.Status = domain.JobStatus(status)
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job runs: %w", err)
	}
	return runs, nil
}
