// Package jobrun records the lifecycle of accrual job runs.
package jobrun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/storage"
)

// Tracker opens runs before work starts and closes them with their outcome.
type Tracker struct {
	store storage.JobRunStore
	clock clockwork.Clock
	log   *slog.Logger
}

// TrackerOptions contains configuration for creating a Tracker.
type TrackerOptions struct {
	Store  storage.JobRunStore
	Clock  clockwork.Clock // Default: real clock
	Logger *slog.Logger
}

// NewTracker creates a new job run tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{store: opts.Store, clock: clock, log: logger.OrDiscard(opts.Logger)}
}

// Start inserts a running run for name.
func (t *Tracker) Start(ctx context.Context, name string) (*domain.JobRun, error) {
	run := &domain.JobRun{
		RunID:     uuid.NewString(),
		Name:      name,
		StartedAt: t.clock.Now().UnixMilli(),
		Status:    domain.JobStatusRunning,
	}
	if err := t.store.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("start job run: %w", err)
	}
	t.log.Info("job run started", "run_id", run.RunID, "job", name)
	return run, nil
}

// Succeed closes run as success with its counters.
func (t *Tracker) Succeed(ctx context.Context, run *domain.JobRun, tokensProcessed, snapshotsWritten int) error {
	run.TokensProcessed = tokensProcessed
	run.SnapshotsWritten = snapshotsWritten
	return t.finish(ctx, run, domain.JobStatusSuccess, nil)
}

// Fail closes run as error with cause's message.
func (t *Tracker) Fail(ctx context.Context, run *domain.JobRun, cause error) error {
	msg := cause.Error()
	return t.finish(ctx, run, domain.JobStatusError, &msg)
}

func (t *Tracker) finish(ctx context.Context, run *domain.JobRun, status domain.JobStatus, msg *string) error {
	now := t.clock.Now()
	finished := now.UnixMilli()
	run.Status = status
	run.FinishedAt = &finished
	run.ErrorMessage = msg

	if err := t.store.Complete(ctx, run); err != nil {
		return fmt.Errorf("complete job run %s: %w", run.RunID, err)
	}

	duration := time.Duration(finished-run.StartedAt) * time.Millisecond
	observability.RecordJobRun(string(status), duration.Seconds(), now.Unix())

	if status == domain.JobStatusError {
		t.log.Error("job run failed", "run_id", run.RunID, "job", run.Name, "error", *msg, "duration", duration)
	} else {
		t.log.Info("job run finished",
			"run_id", run.RunID, "job", run.Name,
			"tokens_processed", run.TokensProcessed, "snapshots_written", run.SnapshotsWritten,
			"duration", duration)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (t *Tracker) Recent(ctx context.Context, limit int) ([]*domain.JobRun, error) {
	return t.store.ListRecent(ctx, limit)
}

// Get returns one run.
func (t *Tracker) Get(ctx context.Context, runID string) (*domain.JobRun, error) {
	return t.store.GetByID(ctx, runID)
}
