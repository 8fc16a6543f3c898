// Package accrual runs fee accrual batches: one job run snapshots every
// tracked token, splits positive deltas and commits each token atomically.
package accrual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/ingestion"
	"royalty-ledger/internal/jobrun"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/split"
	"royalty-ledger/internal/storage"
)

// DefaultJobName is the run name and lock name of the accrual job.
const DefaultJobName = "fee_accrual"

// AgreementReader returns the split active for a mint, or
// domain.ErrNoActiveAgreement.
type AgreementReader interface {
	ActiveVersion(ctx context.Context, mint string) (*domain.AgreementVersion, error)
}

// TokenResult is the outcome of one token within a run.
type TokenResult struct {
	Mint       string
	Outcome    string // observability.Outcome* value
	Delta      uint64
	SnapshotID string
	Err        error
}

// Summary describes a finished run.
type Summary struct {
	Run              *domain.JobRun
	Tokens           []TokenResult
	SnapshotsWritten int
}

// Runner executes accrual job runs.
type Runner struct {
	jobName     string
	concurrency int
	tokens      storage.TokenStore
	committer   storage.AccrualCommitter
	locker      storage.JobLocker
	agreements  AgreementReader
	ingestor    *ingestion.Ingestor
	tracker     *jobrun.Tracker
	log         *slog.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	JobName     string // Default: DefaultJobName
	Concurrency int    // Default: 8
	Tokens      storage.TokenStore
	Committer   storage.AccrualCommitter
	Locker      storage.JobLocker
	Agreements  AgreementReader
	Ingestor    *ingestion.Ingestor
	Tracker     *jobrun.Tracker
	Logger      *slog.Logger
}

// NewRunner creates a new accrual runner.
func NewRunner(opts RunnerOptions) *Runner {
	jobName := opts.JobName
	if jobName == "" {
		jobName = DefaultJobName
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Runner{
		jobName:     jobName,
		concurrency: concurrency,
		tokens:      opts.Tokens,
		committer:   opts.Committer,
		locker:      opts.Locker,
		agreements:  opts.Agreements,
		ingestor:    opts.Ingestor,
		tracker:     opts.Tracker,
		log:         logger.OrDiscard(opts.Logger),
	}
}

// Run executes one job run. It returns storage.ErrJobLocked without opening
// a run when another run holds the job lock. Per-token failures are
// recorded in the summary and never fail the run; failing to enumerate
// tokens does.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	release, err := r.locker.TryLock(ctx, r.jobName)
	if err != nil {
		if errors.Is(err, storage.ErrJobLocked) {
			observability.RecordJobLocked()
		}
		return nil, err
	}
	defer release()

	run, err := r.tracker.Start(ctx, r.jobName)
	if err != nil {
		return nil, err
	}

	tokens, err := r.tokens.ListTracked(ctx)
	if err != nil {
		err = fmt.Errorf("list tracked tokens: %w", err)
		r.fail(ctx, run, err)
		return nil, err
	}

	pass := r.ingestor.Begin(ctx, run.RunID, tokens)
	results := make([]TokenResult, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, token := range tokens {
		g.Go(func() error {
			results[i] = r.safeProcessToken(gctx, pass, run, token)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("run interrupted: %w", err)
		r.fail(ctx, run, err)
		return nil, err
	}

	summary := &Summary{Run: run, Tokens: results}
	for _, res := range results {
		if res.SnapshotID != "" {
			summary.SnapshotsWritten++
		}
	}

	if err := r.tracker.Succeed(ctx, run, len(tokens), summary.SnapshotsWritten); err != nil {
		r.log.Error("failed to record job run success", "run_id", run.RunID, "error", err)
		r.fail(ctx, run, fmt.Errorf("record run success: %w", err))
		return nil, err
	}
	return summary, nil
}

// fail closes run as error. The close is written even when ctx is done.
func (r *Runner) fail(ctx context.Context, run *domain.JobRun, cause error) {
	if err := r.tracker.Fail(context.WithoutCancel(ctx), run, cause); err != nil {
		r.log.Error("failed to record job run failure", "run_id", run.RunID, "error", err)
	}
}

// safeProcessToken turns a panic in one token into an error outcome so the
// rest of the run completes and the run is closed.
func (r *Runner) safeProcessToken(ctx context.Context, pass *ingestion.Pass, run *domain.JobRun, token *domain.Token) (res TokenResult) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("token processing panicked",
				"mint", token.Mint, "run_id", run.RunID, "panic", p, "stack", string(debug.Stack()))
			res = r.record(TokenResult{
				Mint:    token.Mint,
				Outcome: observability.OutcomePanic,
				Err:     fmt.Errorf("panic processing %s: %v", token.Mint, p),
			})
		}
	}()
	return r.processToken(ctx, pass, run, token)
}

// processToken observes, splits and commits one token. Nothing is written
// unless the commit succeeds as a whole.
func (r *Runner) processToken(ctx context.Context, pass *ingestion.Pass, run *domain.JobRun, token *domain.Token) TokenResult {
	res := TokenResult{Mint: token.Mint}
	log := r.log.With("mint", token.Mint, "run_id", run.RunID)

	obs, err := pass.Observe(ctx, token)
	if err != nil {
		var dsErr *domain.DataSourceError
		if errors.As(err, &dsErr) {
			res.Outcome = observability.OutcomeSourceError
			log.Warn("fee source unavailable, skipping token", "error", err)
		} else {
			res.Outcome = observability.OutcomeStoreError
			log.Error("failed to read latest snapshot", "error", err)
		}
		res.Err = err
		return r.record(res)
	}

	if obs.Snapshot == nil {
		res.Outcome = observability.OutcomeUnchanged
		log.Debug("no new fees", "total", obs.Current)
		return r.record(res)
	}
	res.Delta = obs.Delta()

	batch := &storage.AccrualBatch{Snapshot: obs.Snapshot, PreviousTotal: obs.Previous}
	var platform, earners uint64

	version, err := r.agreements.ActiveVersion(ctx, token.Mint)
	switch {
	case errors.Is(err, domain.ErrNoActiveAgreement):
		// The snapshot is still written so the delta is never re-split.
		log.Warn("no active agreement, recording snapshot without entries", "delta", res.Delta)
	case err != nil:
		res.Outcome = observability.OutcomeStoreError
		res.Err = err
		log.Error("failed to read active agreement", "error", err)
		return r.record(res)
	default:
		shares, err := split.Compute(res.Delta, version)
		if err != nil {
			res.Outcome = observability.OutcomeBadVersion
			res.Err = err
			log.Error("active agreement cannot be applied", "version_id", version.VersionID, "error", err)
			return r.record(res)
		}
		batch.Entries = split.Entries(shares, obs.Snapshot, version.VersionID)
		platform, earners = shares.Platform, shares.EarnerTotal()
	}

	if err := r.committer.CommitAccrual(ctx, batch); err != nil {
		res.Outcome = observability.OutcomeCommitError
		if errors.Is(err, storage.ErrStaleSnapshot) {
			res.Outcome = observability.OutcomeStale
		}
		res.Err = &domain.TransactionError{Mint: token.Mint, Err: err}
		log.Warn("accrual commit rolled back, will retry next run", "delta", res.Delta, "error", err)
		return r.record(res)
	}

	res.SnapshotID = obs.Snapshot.SnapshotID
	if version == nil {
		res.Outcome = observability.OutcomeNoAgreement
	} else {
		res.Outcome = observability.OutcomeAccrued
		observability.RecordAccrual(platform, earners)
	}
	log.Info("fees accrued",
		"delta", res.Delta, "total", obs.Current, "platform", platform, "earners", earners, "entries", len(batch.Entries))
	return r.record(res)
}

func (r *Runner) record(res TokenResult) TokenResult {
	observability.RecordTokenOutcome(res.Outcome)
	return res
}
