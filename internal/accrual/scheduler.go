package accrual

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/storage"
)

// Job is a single accrual run.
type Job interface {
	Run(ctx context.Context) (*Summary, error)
}

// Status is the scheduler's view of the latest run.
type Status struct {
	LastSummary  *Summary
	LastError    string
	LastFinished time.Time
	Runs         int
}

// Scheduler runs a Job on an interval and on demand. Triggers arriving while
// a run is in progress coalesce into one follow-up run.
type Scheduler struct {
	job      Job
	interval time.Duration
	clock    clockwork.Clock
	log      *slog.Logger
	trigger  chan struct{}

	mu     sync.RWMutex
	status Status
}

// SchedulerOptions contains configuration for creating a Scheduler.
type SchedulerOptions struct {
	Job      Job
	Interval time.Duration   // Default: 5m
	Clock    clockwork.Clock // Default: real clock
	Logger   *slog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		job:      opts.Job,
		interval: interval,
		clock:    clock,
		log:      logger.OrDiscard(opts.Logger),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a run as soon as possible. It never blocks.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Status returns a copy of the latest run status.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run executes the job immediately, then on every tick and trigger until
// ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("accrual: starting scheduler", "interval", s.interval)

	s.safeRun(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.safeRun(ctx)
		case <-s.trigger:
			s.safeRun(ctx)
		}
	}
}

func (s *Scheduler) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("accrual: run panicked", "panic", r)
		}
	}()

	summary, err := s.job.Run(ctx)
	if errors.Is(err, storage.ErrJobLocked) {
		s.log.Debug("accrual: run skipped, lock held elsewhere")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Runs++
	s.status.LastFinished = s.clock.Now()
	if err != nil {
		s.status.LastError = err.Error()
		s.log.Error("accrual: run failed", "error", err)
		return
	}
	s.status.LastError = ""
	s.status.LastSummary = summary
}
