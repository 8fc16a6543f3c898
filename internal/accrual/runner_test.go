package accrual

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royalty-ledger/internal/agreement"
	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/feesource"
	"royalty-ledger/internal/ingestion"
	"royalty-ledger/internal/jobrun"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/storage"
	"royalty-ledger/internal/storage/memory"
)

func newKey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return base58.Encode(pub)
}

type fixture struct {
	stores   *storage.Stores
	source   *feesource.StaticSource
	registry *agreement.Registry
	runner   *Runner
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()
	stores := memory.NewStores()
	src := feesource.NewStaticSource(nil)
	registry := agreement.NewRegistry(agreement.RegistryOptions{Store: stores.Agreements})
	f := &fixture{stores: stores, source: src, registry: registry}
	f.runner = f.build(stores)
	f.runner.concurrency = concurrency
	return f
}

func (f *fixture) build(stores *storage.Stores) *Runner {
	return NewRunner(RunnerOptions{
		Tokens:     stores.Tokens,
		Committer:  stores.Committer,
		Locker:     stores.Locker,
		Agreements: f.registry,
		Ingestor:   ingestion.NewIngestor(ingestion.IngestorOptions{Source: f.source, Snapshots: stores.Snapshots}),
		Tracker:    jobrun.NewTracker(jobrun.TrackerOptions{Store: stores.JobRuns}),
	})
}

func (f *fixture) addToken(t *testing.T) string {
	t.Helper()
	mint := newKey(t)
	require.NoError(t, f.stores.Tokens.Register(context.Background(), &domain.Token{Mint: mint, FeeAccount: newKey(t)}))
	return mint
}

func (f *fixture) sum(t *testing.T, mint string, kind domain.BeneficiaryKind, wallet *string) uint64 {
	t.Helper()
	accrual := domain.EntryTypeAccrual
	got, err := f.stores.Ledger.Aggregate(context.Background(), storage.AggregateFilter{
		Mint: mint, EntryType: &accrual, BeneficiaryKind: &kind, BeneficiaryWallet: wallet,
	})
	require.NoError(t, err)
	return got
}

func TestRun_ReferenceScenario(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	mint := f.addToken(t)
	a, b := newKey(t), newKey(t)

	_, err := f.registry.Activate(ctx, mint, 1000, []agreement.Share{{Wallet: a, Bps: 6000}, {Wallet: b, Bps: 3000}})
	require.NoError(t, err)
	f.source.Set(mint, 150_000_000)

	summary, err := f.runner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Tokens, 1)
	assert.Equal(t, observability.OutcomeAccrued, summary.Tokens[0].Outcome)
	assert.Equal(t, uint64(150_000_000), summary.Tokens[0].Delta)
	assert.Equal(t, 1, summary.SnapshotsWritten)

	assert.Equal(t, uint64(15_000_000), f.sum(t, mint, domain.BeneficiaryPlatform, nil))
	assert.Equal(t, uint64(90_000_000), f.sum(t, mint, domain.BeneficiaryEarner, &a))
	assert.Equal(t, uint64(45_000_000), f.sum(t, mint, domain.BeneficiaryEarner, &b))

	run, err := f.stores.JobRuns.GetByID(ctx, summary.Run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSuccess, run.Status)
	assert.Equal(t, 1, run.TokensProcessed)
	assert.Equal(t, 1, run.SnapshotsWritten)

	entries, err := f.stores.Ledger.ListByMint(ctx, mint)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		require.NotNil(t, e.JobRunID)
		assert.Equal(t, summary.Run.RunID, *e.JobRunID)
	}
}

func TestRun_IdempotentAndIncremental(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	mint := f.addToken(t)
	earner := newKey(t)

	_, err := f.registry.Activate(ctx, mint, 2500, []agreement.Share{{Wallet: earner, Bps: 7500}})
	require.NoError(t, err)
	f.source.Set(mint, 1_000)

	_, err = f.runner.Run(ctx)
	require.NoError(t, err)

	summary, err := f.runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, observability.OutcomeUnchanged, summary.Tokens[0].Outcome)
	assert.Zero(t, summary.SnapshotsWritten)

	f.source.Set(mint, 1_401)
	summary, err = f.runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(401), summary.Tokens[0].Delta)

	// Conservation: all accruals equal the latest lifetime total.
	total := f.sum(t, mint, domain.BeneficiaryPlatform, nil) + f.sum(t, mint, domain.BeneficiaryEarner, nil)
	assert.Equal(t, uint64(1_401), total)

	snaps, err := f.stores.Snapshots.ListByMint(ctx, mint)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestRun_MissingAgreement(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	mint := f.addToken(t)
	f.source.Set(mint, 5_000)

	summary, err := f.runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, observability.OutcomeNoAgreement, summary.Tokens[0].Outcome)
	assert.Equal(t, 1, summary.SnapshotsWritten)

	latest, err := f.stores.Snapshots.Latest(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), latest.LifetimeTotalLamports)

	entries, err := f.stores.Ledger.ListByMint(ctx, mint)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A later agreement does not re-split the recorded delta.
	_, err = f.registry.Activate(ctx, mint, 10000, nil)
	require.NoError(t, err)
	summary, err = f.runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, observability.OutcomeUnchanged, summary.Tokens[0].Outcome)
}

func TestRun_SourceErrorIsolated(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	good := f.addToken(t)
	bad := f.addToken(t)

	_, err := f.registry.Activate(ctx, good, 10000, nil)
	require.NoError(t, err)
	f.source.Set(good, 10)
	f.source.SetError(bad, errors.New("rpc timeout"))

	summary, err := f.runner.Run(ctx)
	require.NoError(t, err)

	outcomes := map[string]TokenResult{}
	for _, r := range summary.Tokens {
		outcomes[r.Mint] = r
	}
	assert.Equal(t, observability.OutcomeAccrued, outcomes[good].Outcome)
	assert.Equal(t, observability.OutcomeSourceError, outcomes[bad].Outcome)

	var dsErr *domain.DataSourceError
	assert.True(t, errors.As(outcomes[bad].Err, &dsErr))
	assert.Equal(t, domain.JobStatusSuccess, summary.Run.Status)

	_, err = f.stores.Snapshots.Latest(ctx, bad)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRun_ManyTokensConcurrently(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	var mints []string
	for i := 0; i < 20; i++ {
		mint := f.addToken(t)
		_, err := f.registry.Activate(ctx, mint, 333, []agreement.Share{
			{Wallet: newKey(t), Bps: 3333},
			{Wallet: newKey(t), Bps: 3333},
			{Wallet: newKey(t), Bps: 3001},
		})
		require.NoError(t, err)
		f.source.Set(mint, uint64(1_000_003*(i+1)))
		mints = append(mints, mint)
	}

	summary, err := f.runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, summary.SnapshotsWritten)

	for i, mint := range mints {
		total := f.sum(t, mint, domain.BeneficiaryPlatform, nil) + f.sum(t, mint, domain.BeneficiaryEarner, nil)
		assert.Equal(t, uint64(1_000_003*(i+1)), total, "mint %d", i)
	}
}

func TestRun_LockHeld(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	release, err := f.stores.Locker.TryLock(ctx, DefaultJobName)
	require.NoError(t, err)
	defer release()

	_, err = f.runner.Run(ctx)
	assert.ErrorIs(t, err, storage.ErrJobLocked)

	runs, err := f.stores.JobRuns.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "a locked-out run must not open a job run")
}

type failingTokens struct{ storage.TokenStore }

func (failingTokens) ListTracked(context.Context) ([]*domain.Token, error) {
	return nil, errors.New("connection reset")
}

func TestRun_EnumerationFailureAbortsRun(t *testing.T) {
	f := newFixture(t, 1)
	stores := *f.stores
	stores.Tokens = failingTokens{f.stores.Tokens}
	runner := f.build(&stores)

	_, err := runner.Run(context.Background())
	require.Error(t, err)

	runs, err := f.stores.JobRuns.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.JobStatusError, runs[0].Status)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Contains(t, *runs[0].ErrorMessage, "connection reset")
}

type staleCommitter struct{}

func (staleCommitter) CommitAccrual(context.Context, *storage.AccrualBatch) error {
	return fmt.Errorf("commit: %w", storage.ErrStaleSnapshot)
}

func TestRun_StaleCommitRolledBack(t *testing.T) {
	f := newFixture(t, 1)
	mint := f.addToken(t)
	f.source.Set(mint, 77)
	stores := *f.stores
	stores.Committer = staleCommitter{}

	summary, err := f.build(&stores).Run(context.Background())
	require.NoError(t, err)

	res := summary.Tokens[0]
	assert.Equal(t, observability.OutcomeStale, res.Outcome)
	var txErr *domain.TransactionError
	require.True(t, errors.As(res.Err, &txErr))
	assert.ErrorIs(t, res.Err, storage.ErrStaleSnapshot)
	assert.Zero(t, summary.SnapshotsWritten)
}

// panickingCommitter panics for one mint and commits every other.
type panickingCommitter struct {
	storage.AccrualCommitter
	mint string
}

func (c panickingCommitter) CommitAccrual(ctx context.Context, b *storage.AccrualBatch) error {
	if b.Snapshot.Mint == c.mint {
		panic("driver bug")
	}
	return c.AccrualCommitter.CommitAccrual(ctx, b)
}

func TestRun_PanicIsolatedToToken(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	bad, good := f.addToken(t), f.addToken(t)
	f.source.Set(bad, 10)
	f.source.Set(good, 20)

	stores := *f.stores
	stores.Committer = panickingCommitter{AccrualCommitter: f.stores.Committer, mint: bad}

	summary, err := f.build(&stores).Run(ctx)
	require.NoError(t, err)

	outcomes := map[string]TokenResult{}
	for _, res := range summary.Tokens {
		outcomes[res.Mint] = res
	}
	assert.Equal(t, observability.OutcomePanic, outcomes[bad].Outcome)
	require.Error(t, outcomes[bad].Err)
	assert.Contains(t, outcomes[bad].Err.Error(), "driver bug")
	assert.Equal(t, observability.OutcomeNoAgreement, outcomes[good].Outcome)
	assert.Equal(t, 1, summary.SnapshotsWritten)

	run, err := f.stores.JobRuns.GetByID(ctx, summary.Run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSuccess, run.Status)
}

// rejectingSuccess fails to store success and stores every other outcome.
type rejectingSuccess struct{ storage.JobRunStore }

func (s rejectingSuccess) Complete(ctx context.Context, r *domain.JobRun) error {
	if r.Status == domain.JobStatusSuccess {
		return errors.New("statement timeout")
	}
	return s.JobRunStore.Complete(ctx, r)
}

func TestRun_SuccessWriteFailureClosesRun(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.source.Set(f.addToken(t), 10)

	stores := *f.stores
	stores.JobRuns = rejectingSuccess{f.stores.JobRuns}

	_, err := f.build(&stores).Run(ctx)
	require.Error(t, err)

	runs, err := f.stores.JobRuns.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.JobStatusError, runs[0].Status)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Contains(t, *runs[0].ErrorMessage, "record run success")
}
