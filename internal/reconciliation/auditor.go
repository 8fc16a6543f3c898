// Package reconciliation independently verifies ledger invariants for every
// tracked token. It reads the ledger and snapshots directly, never the
// balance view cache, and never writes ledger state.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"royalty-ledger/internal/balance"
	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/storage"
)

// DefaultConfirmAfter is the number of consecutive failing audits after
// which a conservation mismatch is confirmed.
const DefaultConfirmAfter = 2

// Auditor checks, per token:
//   - accrual_matches_snapshot: platform + earner accruals equal the latest
//     snapshot total
//   - owed_non_negative: no earner has been paid more than earned
//   - treasury_non_negative: claims cover payouts and withdrawals
type Auditor struct {
	tokens       storage.TokenStore
	snapshots    storage.SnapshotStore
	ledger       storage.LedgerStore
	history      storage.AuditHistoryStore
	views        *balance.Views
	confirmAfter int
	concurrency  int
	clock        clockwork.Clock
	log          *slog.Logger
}

// AuditorOptions contains configuration for creating an Auditor.
type AuditorOptions struct {
	Tokens       storage.TokenStore
	Snapshots    storage.SnapshotStore
	Ledger       storage.LedgerStore
	History      storage.AuditHistoryStore // nil confirms every failure immediately
	Views        *balance.Views            // optional, adds view outputs to reports
	ConfirmAfter int                       // Default: DefaultConfirmAfter
	Concurrency  int                       // Default: 4
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// NewAuditor creates a new reconciliation auditor.
func NewAuditor(opts AuditorOptions) *Auditor {
	confirmAfter := opts.ConfirmAfter
	if confirmAfter <= 0 {
		confirmAfter = DefaultConfirmAfter
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Auditor{
		tokens:       opts.Tokens,
		snapshots:    opts.Snapshots,
		ledger:       opts.Ledger,
		history:      opts.History,
		views:        opts.Views,
		confirmAfter: confirmAfter,
		concurrency:  concurrency,
		clock:        clock,
		log:          logger.OrDiscard(opts.Logger),
	}
}

// Audit checks every tracked token and appends the outcomes to audit
// history.
func (a *Auditor) Audit(ctx context.Context) (*Report, error) {
	return a.run(ctx, true)
}

// Inspect is Audit without appending to audit history. Confirmation treats
// this pass as if it had been recorded.
func (a *Auditor) Inspect(ctx context.Context) (*Report, error) {
	return a.run(ctx, false)
}

// Loop runs a persisted Audit immediately and then every interval until
// ctx is done. Audit errors are logged and retried on the next tick.
func (a *Auditor) Loop(ctx context.Context, interval time.Duration) {
	a.log.Info("reconciliation: starting audit loop", "interval", interval)

	a.loopOnce(ctx)

	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			a.loopOnce(ctx)
		}
	}
}

func (a *Auditor) loopOnce(ctx context.Context) {
	if _, err := a.Audit(ctx); err != nil && ctx.Err() == nil {
		a.log.Error("reconciliation: audit failed", "error", err)
	}
}

func (a *Auditor) run(ctx context.Context, persist bool) (*Report, error) {
	tokens, err := a.tokens.ListTracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked tokens: %w", err)
	}

	now := a.clock.Now().UnixMilli()
	report := &Report{AuditID: uuid.NewString(), GeneratedAt: now, Tokens: make([]*TokenReport, len(tokens))}
	observations := make([][]*domain.AuditObservation, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, token := range tokens {
		g.Go(func() error {
			tr, obs := a.auditToken(gctx, report.AuditID, now, token.Mint)
			report.Tokens[i] = tr
			observations[i] = obs
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []*domain.AuditObservation
	for i, tr := range report.Tokens {
		all = append(all, observations[i]...)
		if tr.Failed() {
			report.HasFailures = true
		}
	}

	if persist && a.history != nil && len(all) > 0 {
		if err := a.history.Record(ctx, all); err != nil {
			return nil, fmt.Errorf("record audit history: %w", err)
		}
	}

	observability.RecordReconciliationRun()
	a.log.Info("reconciliation finished",
		"audit_id", report.AuditID, "tokens", len(report.Tokens), "has_failures", report.HasFailures)
	return report, nil
}

// auditToken recomputes one token's figures and evaluates the checks.
func (a *Auditor) auditToken(ctx context.Context, auditID string, now int64, mint string) (*TokenReport, []*domain.AuditObservation) {
	tr := &TokenReport{Mint: mint}
	log := a.log.With("mint", mint, "audit_id", auditID)

	if err := a.recompute(ctx, tr); err != nil {
		tr.Error = err.Error()
		log.Error("token could not be audited", "error", err)
		return tr, nil
	}

	if a.views != nil {
		view, err := a.views.TokenBalance(ctx, mint)
		if err != nil {
			log.Warn("balance view unavailable", "error", err)
		} else {
			tr.View = view
		}
	}

	accrued := balance.AddSat(tr.PlatformAccrual, tr.EarnerAccrual)
	tr.AccrualMatchesSnapshot = accrued == tr.LifetimeTotal
	tr.TreasuryNonNegative = tr.TreasuryLiquid >= 0
	var minOwed int64
	for _, e := range tr.Earners {
		if e.Owed < 0 {
			tr.FailingEarners = append(tr.FailingEarners, e.Wallet)
		}
		minOwed = min(minOwed, e.Owed)
	}
	tr.OwedNonNegative = len(tr.FailingEarners) == 0

	checks := []struct {
		name     string
		passed   bool
		expected int64
		actual   int64
		confirm  int
		detail   string
	}{
		{
			name: domain.CheckAccrualMatchesSnapshot, passed: tr.AccrualMatchesSnapshot,
			expected: balance.Sub(tr.LifetimeTotal, 0), actual: balance.Sub(accrued, 0),
			confirm: a.confirmAfter,
			detail:  fmt.Sprintf("accrued %d, latest snapshot %d", accrued, tr.LifetimeTotal),
		},
		{
			name: domain.CheckOwedNonNegative, passed: tr.OwedNonNegative,
			actual: minOwed, confirm: 1,
			detail: fmt.Sprintf("earners paid above earned: %v", tr.FailingEarners),
		},
		{
			name: domain.CheckTreasuryNonNegative, passed: tr.TreasuryNonNegative,
			actual: tr.TreasuryLiquid, confirm: 1,
			detail: fmt.Sprintf("treasury liquid %d", tr.TreasuryLiquid),
		},
	}

	obs := make([]*domain.AuditObservation, 0, len(checks))
	for _, c := range checks {
		obs = append(obs, &domain.AuditObservation{
			AuditID: auditID, Mint: mint, Check: c.name, Passed: c.passed,
			Expected: c.expected, Actual: c.actual, ObservedAt: now,
		})
		if c.passed {
			continue
		}

		confirmed, err := a.confirmed(ctx, mint, c.name, c.confirm)
		if err != nil {
			// Without history the failure cannot be proven transient.
			log.Warn("audit history unavailable, confirming failure", "check", c.name, "error", err)
			confirmed = true
		}
		observability.RecordCheckFailure(c.name, confirmed)
		if !confirmed {
			tr.Unconfirmed = append(tr.Unconfirmed, c.name)
			log.Warn("check failed, awaiting confirmation", "check", c.name, "detail", c.detail)
			continue
		}
		tr.Violations = append(tr.Violations, &domain.ConsistencyError{Mint: mint, Invariant: c.name, Detail: c.detail})
		log.Error("invariant violated", "check", c.name, "detail", c.detail)
	}
	return tr, obs
}

// confirmed reports whether a failure of check in this pass, together with
// the preceding passes, forms a streak of need consecutive failures.
func (a *Auditor) confirmed(ctx context.Context, mint, check string, need int) (bool, error) {
	if need <= 1 || a.history == nil {
		return true, nil
	}
	prior, err := a.history.RecentResults(ctx, mint, check, need-1)
	if err != nil {
		return false, err
	}
	if len(prior) < need-1 {
		return false, nil
	}
	for _, passed := range prior {
		if passed {
			return false, nil
		}
	}
	return true, nil
}

// recompute folds the token's ledger entries and latest snapshot into tr.
func (a *Auditor) recompute(ctx context.Context, tr *TokenReport) error {
	latest, err := a.snapshots.Latest(ctx, tr.Mint)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("latest snapshot: %w", err)
	default:
		tr.LifetimeTotal = latest.LifetimeTotalLamports
	}

	entries, err := a.ledger.ListByMint(ctx, tr.Mint)
	if err != nil {
		return fmt.Errorf("list ledger entries: %w", err)
	}

	earners := make(map[string]*EarnerFigures)
	earner := func(wallet string) *EarnerFigures {
		e, ok := earners[wallet]
		if !ok {
			e = &EarnerFigures{Wallet: wallet}
			earners[wallet] = e
		}
		return e
	}

	// Sums are bounded to the int64 range the ledger tables store.
	var overflow bool
	add := func(dst *uint64, v uint64) {
		if v > math.MaxInt64-*dst {
			overflow = true
			return
		}
		*dst += v
	}

	for _, e := range entries {
		switch e.EntryType {
		case domain.EntryTypeAccrual:
			switch e.BeneficiaryKind {
			case domain.BeneficiaryPlatform:
				add(&tr.PlatformAccrual, e.AmountLamports)
			case domain.BeneficiaryEarner:
				add(&tr.EarnerAccrual, e.AmountLamports)
				add(&earner(e.Wallet()).Earned, e.AmountLamports)
			}
		case domain.EntryTypeClaimFromSource:
			add(&tr.Claimed, e.AmountLamports)
		case domain.EntryTypePayoutToEarner:
			add(&tr.Payout, e.AmountLamports)
			add(&earner(e.Wallet()).Paid, e.AmountLamports)
		case domain.EntryTypePlatformWithdrawal:
			add(&tr.Withdrawal, e.AmountLamports)
		}
	}
	if overflow {
		return fmt.Errorf("fold ledger entries: %w", storage.ErrAmountOverflow)
	}

	tr.TreasuryLiquid = balance.Sub(tr.Claimed, balance.AddSat(tr.Payout, tr.Withdrawal))

	tr.Earners = make([]EarnerFigures, 0, len(earners))
	for _, e := range earners {
		e.Owed = balance.Sub(e.Earned, e.Paid)
		tr.Earners = append(tr.Earners, *e)
	}
	sort.Slice(tr.Earners, func(i, j int) bool { return tr.Earners[i].Wallet < tr.Earners[j].Wallet })
	return nil
}
