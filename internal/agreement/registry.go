// Package agreement manages royalty agreement versions: reading the active
// split of a token and activating validated new versions.
package agreement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/solana"
	"royalty-ledger/internal/storage"
)

// Share is one earner's requested slice of a new version.
type Share struct {
	Wallet string
	Bps    uint32
}

// Registry reads and rotates agreement versions.
type Registry struct {
	store storage.AgreementStore
	clock clockwork.Clock
	log   *slog.Logger
}

// RegistryOptions contains configuration for creating a Registry.
type RegistryOptions struct {
	Store  storage.AgreementStore
	Clock  clockwork.Clock // Default: real clock
	Logger *slog.Logger
}

// NewRegistry creates a new agreement registry.
func NewRegistry(opts RegistryOptions) *Registry {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{store: opts.Store, clock: clock, log: logger.OrDiscard(opts.Logger)}
}

// ActiveVersion returns the open version for mint, or
// domain.ErrNoActiveAgreement.
func (r *Registry) ActiveVersion(ctx context.Context, mint string) (*domain.AgreementVersion, error) {
	v, err := r.store.GetActive(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNoActiveAgreement
	}
	if err != nil {
		return nil, fmt.Errorf("active agreement for %s: %w", mint, err)
	}
	return v, nil
}

// History returns every version of mint, oldest first.
func (r *Registry) History(ctx context.Context, mint string) ([]*domain.AgreementVersion, error) {
	return r.store.GetHistory(ctx, mint)
}

// Activate validates a new split and makes it the active version, closing
// the previous one at the same instant. Shares keep the given order.
// Invalid input returns *domain.ValidationError and writes nothing.
func (r *Registry) Activate(ctx context.Context, mint string, platformBps uint32, shares []Share) (*domain.AgreementVersion, error) {
	if err := solana.ValidatePublicKey(mint); err != nil {
		return nil, &domain.ValidationError{Field: "mint", Reason: err.Error()}
	}

	v := &domain.AgreementVersion{
		VersionID:      uuid.NewString(),
		Mint:           mint,
		PlatformFeeBps: platformBps,
		EffectiveFrom:  r.clock.Now().UnixMilli(),
		Shares:         make([]domain.AgreementShare, len(shares)),
	}
	for i, s := range shares {
		if err := solana.ValidateWallet(s.Wallet); err != nil {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("shares[%d].earner_wallet", i), Reason: err.Error()}
		}
		v.Shares[i] = domain.AgreementShare{
			VersionID:    v.VersionID,
			EarnerWallet: s.Wallet,
			Bps:          s.Bps,
			Position:     i,
		}
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	if err := r.store.Rotate(ctx, v); err != nil {
		return nil, fmt.Errorf("activate agreement for %s: %w", mint, err)
	}

	r.log.Info("agreement activated",
		"mint", mint, "version_id", v.VersionID, "platform_bps", platformBps, "earners", len(shares))
	return v, nil
}
