// Package app wires stores, the fee source and ledger components from
// configuration. Every command builds on it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"royalty-ledger/internal/accrual"
	"royalty-ledger/internal/agreement"
	"royalty-ledger/internal/balance"
	"royalty-ledger/internal/config"
	"royalty-ledger/internal/feesource"
	"royalty-ledger/internal/ingestion"
	"royalty-ledger/internal/jobrun"
	"royalty-ledger/internal/ledger"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/reconciliation"
	"royalty-ledger/internal/solana"
	"royalty-ledger/internal/storage"
	chstore "royalty-ledger/internal/storage/clickhouse"
	"royalty-ledger/internal/storage/memory"
	pgstore "royalty-ledger/internal/storage/postgres"
	"royalty-ledger/internal/verification"
)

// App holds the wired components.
type App struct {
	Config *config.Config
	Log    *slog.Logger
	Stores *storage.Stores

	Registry *agreement.Registry
	Tracker  *jobrun.Tracker
	Views    *balance.Views
	Recorder *ledger.Recorder
	Auditor  *reconciliation.Auditor
	Runner   *accrual.Runner
	Verifier *verification.Verifier

	closers []func()
}

// Options overrides parts of the wiring. Zero values use the configured
// defaults.
type Options struct {
	Stores *storage.Stores
	Source feesource.Source
	Clock  clockwork.Clock
}

// Open connects the configured stores and builds every component.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	log = logger.OrDiscard(log)
	a := &App{}

	stores, err := a.openStores(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint,
		solana.WithRateLimit(cfg.Solana.RPCRPS, cfg.Solana.RPCBurst),
		solana.WithCommitment(cfg.Solana.Commitment),
	)
	source := feesource.NewRPCSource(rpc, cfg.FeeSource.CounterOffset)

	a.build(cfg, log, Options{Stores: stores, Source: source})
	return a, nil
}

// New builds an App over the given stores and fee source without opening
// any connection.
func New(cfg *config.Config, log *slog.Logger, opts Options) *App {
	log = logger.OrDiscard(log)
	a := &App{}
	if opts.Stores == nil {
		opts.Stores = memory.NewStores()
	}
	if opts.Source == nil {
		opts.Source = feesource.NewStaticSource(nil)
	}
	a.build(cfg, log, opts)
	return a
}

func (a *App) openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage.Stores, error) {
	if cfg.UseMemory {
		stores := memory.NewStores()
		// History that dies with the process can never show a streak, so
		// every failure is confirmed on the pass that sees it.
		stores.AuditHistory = nil
		log.Info("using in-memory stores, reconciliation failures confirm immediately")
		return stores, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	stores := pgstore.NewStores(pool)

	if cfg.ClickHouse.DSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		stores.AuditHistory = chstore.NewAuditHistoryStore(conn)
		log.Info("audit history kept in clickhouse")
	} else {
		log.Info("audit history kept in postgres")
	}
	return stores, nil
}

func (a *App) build(cfg *config.Config, log *slog.Logger, opts Options) {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	stores := opts.Stores

	a.Config = cfg
	a.Log = log
	a.Stores = stores
	a.Registry = agreement.NewRegistry(agreement.RegistryOptions{Store: stores.Agreements, Clock: clock, Logger: log})
	a.Tracker = jobrun.NewTracker(jobrun.TrackerOptions{Store: stores.JobRuns, Clock: clock, Logger: log})
	a.Views = balance.NewViews(balance.ViewsOptions{Ledger: stores.Ledger})
	a.Recorder = ledger.NewRecorder(ledger.RecorderOptions{Ledger: stores.Ledger, Balances: a.Views, Clock: clock, Logger: log})
	a.Auditor = reconciliation.NewAuditor(reconciliation.AuditorOptions{
		Tokens:       stores.Tokens,
		Snapshots:    stores.Snapshots,
		Ledger:       stores.Ledger,
		History:      stores.AuditHistory,
		Views:        a.Views,
		ConfirmAfter: cfg.Reconciliation.ConfirmAfter,
		Clock:        clock,
		Logger:       log,
	})
	a.Verifier = verification.NewVerifier(stores.Tokens, stores.Snapshots, stores.Ledger, stores.Agreements)
	a.Runner = accrual.NewRunner(accrual.RunnerOptions{
		JobName:     cfg.Accrual.JobName,
		Concurrency: cfg.Accrual.Concurrency,
		Tokens:      stores.Tokens,
		Committer:   stores.Committer,
		Locker:      stores.Locker,
		Agreements:  a.Registry,
		Ingestor: ingestion.NewIngestor(ingestion.IngestorOptions{
			Source: opts.Source, Snapshots: stores.Snapshots, Clock: clock, Logger: log,
		}),
		Tracker: a.Tracker,
		Logger:  log,
	})
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
