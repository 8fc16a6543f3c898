// Package server exposes balances, job runs and reconciliation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"royalty-ledger/internal/accrual"
	"royalty-ledger/internal/balance"
	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/jobrun"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/reconciliation"
	"royalty-ledger/internal/reporting"
	"royalty-ledger/internal/storage"
)

const defaultRunsLimit = 20

// StatusSource reports scheduler state. accrual.Scheduler satisfies it.
type StatusSource interface {
	Status() accrual.Status
}

// Server is the HTTP reporting API.
type Server struct {
	router    *chi.Mux
	tokens    storage.TokenStore
	views     *balance.Views
	tracker   *jobrun.Tracker
	auditor   *reconciliation.Auditor
	scheduler StatusSource
	log       *slog.Logger
	srv       *http.Server
}

// Options contains configuration for creating a Server.
type Options struct {
	Addr      string
	Tokens    storage.TokenStore
	Views     *balance.Views
	Tracker   *jobrun.Tracker
	Auditor   *reconciliation.Auditor
	Scheduler StatusSource // optional
	Logger    *slog.Logger
}

// New creates a new HTTP server.
func New(opts Options) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		tokens:    opts.Tokens,
		views:     opts.Views,
		tracker:   opts.Tracker,
		auditor:   opts.Auditor,
		scheduler: opts.Scheduler,
		log:       logger.OrDiscard(opts.Logger),
	}

	s.setupRoutes()

	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(observability.Middleware)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", observability.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/tokens/{mint}/balance", s.handleTokenBalance)
		r.Get("/tokens/{mint}/earners", s.handleEarners)
		r.Get("/tokens/{mint}/earners/{wallet}", s.handleEarnerBalance)
		r.Get("/reconciliation", s.handleReconciliation)
		r.Get("/runs", s.handleRuns)
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

type statusResponse struct {
	Tokens       int         `json:"tokens"`
	Runs         int         `json:"scheduled_runs"`
	LastFinished *time.Time  `json:"last_finished,omitempty"`
	LastError    string      `json:"last_error,omitempty"`
	LastRun      *runPayload `json:"last_run,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.tokens.ListTracked(r.Context())
	if err != nil {
		s.internalError(w, "list tracked tokens", err)
		return
	}

	resp := statusResponse{Tokens: len(tokens)}
	if s.scheduler != nil {
		st := s.scheduler.Status()
		resp.Runs = st.Runs
		resp.LastError = st.LastError
		if !st.LastFinished.IsZero() {
			resp.LastFinished = &st.LastFinished
		}
		if st.LastSummary != nil && st.LastSummary.Run != nil {
			p := newRunPayload(st.LastSummary.Run)
			resp.LastRun = &p
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type tokenBalancePayload struct {
	Mint            string `json:"mint"`
	PlatformAccrued uint64 `json:"platform_accrued_lamports"`
	EarnersEarned   uint64 `json:"earners_earned_lamports"`
	Claimed         uint64 `json:"claimed_lamports"`
	EarnersPaid     uint64 `json:"earners_paid_lamports"`
	Withdrawn       uint64 `json:"withdrawn_lamports"`
	TreasuryLiquid  int64  `json:"treasury_liquid_lamports"`
	TreasurySOL     string `json:"treasury_liquid_sol"`
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.trackedMint(w, r)
	if !ok {
		return
	}
	b, err := s.views.TokenBalance(r.Context(), mint)
	if err != nil {
		s.internalError(w, "token balance", err)
		return
	}
	s.writeJSON(w, http.StatusOK, tokenBalancePayload{
		Mint:            b.Mint,
		PlatformAccrued: b.PlatformAccrued,
		EarnersEarned:   b.EarnersEarned,
		Claimed:         b.Claimed,
		EarnersPaid:     b.EarnersPaid,
		Withdrawn:       b.Withdrawn,
		TreasuryLiquid:  b.TreasuryLiquid,
		TreasurySOL:     reporting.SignedSOL(b.TreasuryLiquid),
	})
}

type earnerPayload struct {
	Mint    string `json:"mint"`
	Wallet  string `json:"wallet"`
	Earned  uint64 `json:"earned_lamports"`
	Paid    uint64 `json:"paid_lamports"`
	Owed    int64  `json:"owed_lamports"`
	OwedSOL string `json:"owed_sol"`
}

func newEarnerPayload(b *balance.EarnerBalance) earnerPayload {
	return earnerPayload{
		Mint: b.Mint, Wallet: b.Wallet, Earned: b.Earned, Paid: b.Paid, Owed: b.Owed,
		OwedSOL: reporting.SignedSOL(b.Owed),
	}
}

func (s *Server) handleEarnerBalance(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.trackedMint(w, r)
	if !ok {
		return
	}
	b, err := s.views.EarnerBalance(r.Context(), mint, chi.URLParam(r, "wallet"))
	if err != nil {
		s.internalError(w, "earner balance", err)
		return
	}
	s.writeJSON(w, http.StatusOK, newEarnerPayload(b))
}

func (s *Server) handleEarners(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.trackedMint(w, r)
	if !ok {
		return
	}
	earners, err := s.views.Earners(r.Context(), mint)
	if err != nil {
		s.internalError(w, "list earners", err)
		return
	}
	resp := make([]earnerPayload, 0, len(earners))
	for _, e := range earners {
		resp = append(resp, newEarnerPayload(e))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type checkPayload struct {
	AccrualMatchesSnapshot bool `json:"accrual_matches_snapshot"`
	OwedNonNegative        bool `json:"owed_non_negative"`
	TreasuryNonNegative    bool `json:"treasury_non_negative"`
}

type tokenReportPayload struct {
	Mint            string       `json:"mint"`
	LifetimeTotal   uint64       `json:"lifetime_total_lamports"`
	PlatformAccrual uint64       `json:"platform_accrual_lamports"`
	EarnerAccrual   uint64       `json:"earner_accrual_lamports"`
	Claimed         uint64       `json:"claimed_lamports"`
	Payout          uint64       `json:"payout_lamports"`
	Withdrawal      uint64       `json:"withdrawal_lamports"`
	TreasuryLiquid  int64        `json:"treasury_liquid_lamports"`
	Checks          checkPayload `json:"checks"`
	FailingEarners  []string     `json:"failing_earners,omitempty"`
	Unconfirmed     []string     `json:"unconfirmed,omitempty"`
	Violations      []string     `json:"violations,omitempty"`
	Error           string       `json:"error,omitempty"`
}

type reportPayload struct {
	AuditID     string               `json:"audit_id"`
	GeneratedAt int64                `json:"generated_at"`
	HasFailures bool                 `json:"has_failures"`
	Tokens      []tokenReportPayload `json:"tokens"`
}

// handleReconciliation runs a read-only audit pass. It does not append to
// audit history, so polling it never advances a confirmation streak.
func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := s.auditor.Inspect(r.Context())
	if err != nil {
		s.internalError(w, "reconciliation", err)
		return
	}

	resp := reportPayload{
		AuditID:     report.AuditID,
		GeneratedAt: report.GeneratedAt,
		HasFailures: report.HasFailures,
		Tokens:      make([]tokenReportPayload, 0, len(report.Tokens)),
	}
	for _, t := range report.Tokens {
		p := tokenReportPayload{
			Mint:            t.Mint,
			LifetimeTotal:   t.LifetimeTotal,
			PlatformAccrual: t.PlatformAccrual,
			EarnerAccrual:   t.EarnerAccrual,
			Claimed:         t.Claimed,
			Payout:          t.Payout,
			Withdrawal:      t.Withdrawal,
			TreasuryLiquid:  t.TreasuryLiquid,
			Checks: checkPayload{
				AccrualMatchesSnapshot: t.AccrualMatchesSnapshot,
				OwedNonNegative:        t.OwedNonNegative,
				TreasuryNonNegative:    t.TreasuryNonNegative,
			},
			FailingEarners: t.FailingEarners,
			Unconfirmed:    t.Unconfirmed,
			Error:          t.Error,
		}
		for _, v := range t.Violations {
			p.Violations = append(p.Violations, v.Invariant)
		}
		resp.Tokens = append(resp.Tokens, p)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type runPayload struct {
	RunID            string  `json:"run_id"`
	Name             string  `json:"name"`
	Status           string  `json:"status"`
	StartedAt        int64   `json:"started_at"`
	FinishedAt       *int64  `json:"finished_at,omitempty"`
	TokensProcessed  int     `json:"tokens_processed"`
	SnapshotsWritten int     `json:"snapshots_written"`
	Error            *string `json:"error,omitempty"`
}

func newRunPayload(run *domain.JobRun) runPayload {
	return runPayload{
		RunID:            run.RunID,
		Name:             run.Name,
		Status:           string(run.Status),
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		TokensProcessed:  run.TokensProcessed,
		SnapshotsWritten: run.SnapshotsWritten,
		Error:            run.ErrorMessage,
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.tracker.Recent(r.Context(), limit)
	if err != nil {
		s.internalError(w, "list job runs", err)
		return
	}
	resp := make([]runPayload, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, newRunPayload(run))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// trackedMint resolves the {mint} parameter, answering 404 for tokens that
// are not tracked.
func (s *Server) trackedMint(w http.ResponseWriter, r *http.Request) (string, bool) {
	mint := chi.URLParam(r, "mint")
	if _, err := s.tokens.Get(r.Context(), mint); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "token not tracked")
			return "", false
		}
		s.internalError(w, "get token", err)
		return "", false
	}
	return mint, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error("request failed", "op", op, "error", err)
	s.writeError(w, http.StatusInternalServerError, op+" failed")
}
