// Package feesource reads the externally reported lifetime fee total of a
// token.
package feesource

import (
	"context"

	"royalty-ledger/internal/domain"
)

// Source reports a token's cumulative lifetime fee total in lamports.
// Totals are expected to be monotonic; callers treat a decrease as no change.
type Source interface {
	// LifetimeTotal returns the current total and a descriptor of where it
	// was read (stored as the snapshot's SourceRef). Failures are
	// *domain.DataSourceError.
	LifetimeTotal(ctx context.Context, token *domain.Token) (total uint64, sourceRef string, err error)
}

// Prefetcher is implemented by sources that can read many tokens in one
// round trip. The returned Source serves the prefetched values and falls
// back to the origin for tokens it does not hold.
type Prefetcher interface {
	Prefetch(ctx context.Context, tokens []*domain.Token) (Source, error)
}

type reading struct {
	total uint64
	ref   string
}

// prefetched serves readings captured for one run.
type prefetched struct {
	readings map[string]reading
	origin   Source
}

func (p *prefetched) LifetimeTotal(ctx context.Context, token *domain.Token) (uint64, string, error) {
	if r, ok := p.readings[token.Mint]; ok {
		return r.total, r.ref, nil
	}
	return p.origin.LifetimeTotal(ctx, token)
}
