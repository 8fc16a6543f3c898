// Package ingestion turns externally reported lifetime fee totals into new
// fee snapshots.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/feesource"
	"royalty-ledger/internal/idhash"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/storage"
)

// FeeSource supplies current lifetime totals.
type FeeSource = feesource.Source

// Observation is the result of comparing one token's reported total with
// its latest snapshot.
type Observation struct {
	Token    *domain.Token
	Previous uint64              // latest stored total, 0 if none
	Current  uint64              // reported total
	Snapshot *domain.FeeSnapshot // nil when there is no positive delta
}

// Delta returns the new fees since the latest snapshot, 0 if none.
func (o *Observation) Delta() uint64 {
	if o.Snapshot == nil {
		return 0
	}
	return o.Current - o.Previous
}

// Ingestor reads fee totals and builds snapshots. It never writes; the
// snapshot is committed together with its entries by the caller.
type Ingestor struct {
	source    FeeSource
	snapshots storage.SnapshotStore
	clock     clockwork.Clock
	log       *slog.Logger
}

// IngestorOptions contains configuration for creating an Ingestor.
type IngestorOptions struct {
	Source    FeeSource
	Snapshots storage.SnapshotStore
	Clock     clockwork.Clock // Default: real clock
	Logger    *slog.Logger
}

// NewIngestor creates a new snapshot ingestor.
func NewIngestor(opts IngestorOptions) *Ingestor {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ingestor{
		source:    opts.Source,
		snapshots: opts.Snapshots,
		clock:     clock,
		log:       logger.OrDiscard(opts.Logger),
	}
}

// Pass is an ingestor bound to one job run.
type Pass struct {
	ing    *Ingestor
	runID  string
	source FeeSource
}

// Begin starts a pass for runID. Sources that support batch reads prefetch
// all tokens; a failed prefetch falls back to per-token reads.
func (i *Ingestor) Begin(ctx context.Context, runID string, tokens []*domain.Token) *Pass {
	p := &Pass{ing: i, runID: runID, source: i.source}
	if pf, ok := i.source.(feesource.Prefetcher); ok && len(tokens) > 0 {
		src, err := pf.Prefetch(ctx, tokens)
		if err != nil {
			i.log.Warn("fee prefetch failed, reading tokens individually", "run_id", runID, "error", err)
		} else {
			p.source = src
		}
	}
	return p
}

// Observe reads the token's current total and its latest snapshot. When the
// total grew, the returned observation carries a new snapshot tagged with
// the pass's run. A decreased total is logged and treated as no change.
//
// Source failures return *domain.DataSourceError.
func (p *Pass) Observe(ctx context.Context, token *domain.Token) (*Observation, error) {
	current, ref, err := p.source.LifetimeTotal(ctx, token)
	if err != nil {
		var dsErr *domain.DataSourceError
		if errors.As(err, &dsErr) {
			return nil, err
		}
		return nil, &domain.DataSourceError{Mint: token.Mint, Err: err}
	}

	previous, err := p.latestTotal(ctx, token.Mint)
	if err != nil {
		return nil, err
	}

	obs := &Observation{Token: token, Previous: previous, Current: current}
	switch {
	case current == previous:
		return obs, nil
	case current < previous:
		p.ing.log.Warn("fee total decreased, ignoring",
			"mint", token.Mint, "run_id", p.runID, "previous", previous, "current", current)
		return obs, nil
	}

	obs.Snapshot = &domain.FeeSnapshot{
		SnapshotID:            idhash.ComputeSnapshotID(token.Mint, p.runID),
		Mint:                  token.Mint,
		LifetimeTotalLamports: current,
		JobRunID:              p.runID,
		SourceRef:             ref,
		CreatedAt:             p.ing.clock.Now().UnixMilli(),
	}
	return obs, nil
}

func (p *Pass) latestTotal(ctx context.Context, mint string) (uint64, error) {
	latest, err := p.ing.snapshots.Latest(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest snapshot for %s: %w", mint, err)
	}
	return latest.LifetimeTotalLamports, nil
}
