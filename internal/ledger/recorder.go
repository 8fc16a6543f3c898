// Package ledger records executor-reported monetary events: claims from the
// fee source, payouts to earners and platform withdrawals.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"royalty-ledger/internal/balance"
	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/idhash"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/solana"
	"royalty-ledger/internal/storage"
)

// EarnerBalances reads an earner's current position.
type EarnerBalances interface {
	EarnerBalance(ctx context.Context, mint, wallet string) (*balance.EarnerBalance, error)
}

// Recorder appends executor entries keyed by transaction signature, so a
// retried call with the same signature is a no-op.
type Recorder struct {
	ledger   storage.LedgerStore
	balances EarnerBalances
	clock    clockwork.Clock
	log      *slog.Logger
}

// RecorderOptions contains configuration for creating a Recorder.
type RecorderOptions struct {
	Ledger   storage.LedgerStore
	Balances EarnerBalances // optional, enables the payout-above-owed warning
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// NewRecorder creates a new executor entry recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{
		ledger:   opts.Ledger,
		balances: opts.Balances,
		clock:    clock,
		log:      logger.OrDiscard(opts.Logger),
	}
}

// Result describes a record call.
type Result struct {
	Entry     *domain.LedgerEntry
	Duplicate bool // the signature was already recorded
}

// RecordClaim records lamports moved from the fee source into the treasury.
func (r *Recorder) RecordClaim(ctx context.Context, mint string, amount uint64, txSignature string) (*Result, error) {
	return r.record(ctx, mint, domain.EntryTypeClaimFromSource, domain.BeneficiaryPlatform, "", amount, txSignature)
}

// RecordWithdrawal records lamports the platform withdrew from the treasury.
func (r *Recorder) RecordWithdrawal(ctx context.Context, mint string, amount uint64, txSignature string) (*Result, error) {
	return r.record(ctx, mint, domain.EntryTypePlatformWithdrawal, domain.BeneficiaryPlatform, "", amount, txSignature)
}

// RecordPayout records lamports paid to an earner. A payout above what the
// earner is owed is recorded anyway and logged; reconciliation reports it.
func (r *Recorder) RecordPayout(ctx context.Context, mint, wallet string, amount uint64, txSignature string) (*Result, error) {
	if err := solana.ValidatePublicKey(wallet); err != nil {
		return nil, &domain.ValidationError{Field: "wallet", Reason: err.Error()}
	}

	if r.balances != nil {
		b, err := r.balances.EarnerBalance(ctx, mint, wallet)
		if err != nil {
			return nil, err
		}
		if b.Owed < 0 || uint64(b.Owed) < amount {
			r.log.Warn("payout exceeds owed balance",
				"mint", mint, "wallet", wallet, "amount", amount, "owed", b.Owed, "tx", txSignature)
		}
	}

	return r.record(ctx, mint, domain.EntryTypePayoutToEarner, domain.BeneficiaryEarner, wallet, amount, txSignature)
}

func (r *Recorder) record(ctx context.Context, mint string, entryType domain.EntryType, kind domain.BeneficiaryKind, wallet string, amount uint64, txSignature string) (*Result, error) {
	if err := solana.ValidatePublicKey(mint); err != nil {
		return nil, &domain.ValidationError{Field: "mint", Reason: err.Error()}
	}
	if amount == 0 {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if txSignature == "" {
		return nil, &domain.ValidationError{Field: "tx_signature", Reason: "required"}
	}

	sig := txSignature
	e := &domain.LedgerEntry{
		EntryID:         idhash.ComputeExternalEntryID(mint, entryType, txSignature, wallet),
		Mint:            mint,
		EntryType:       entryType,
		BeneficiaryKind: kind,
		AmountLamports:  amount,
		ExternalRef:     &sig,
		CreatedAt:       r.clock.Now().UnixMilli(),
	}
	if wallet != "" {
		w := wallet
		e.BeneficiaryWallet = &w
	}

	err := r.ledger.Append(ctx, e)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		observability.RecordExecutorEntry(string(entryType), "duplicate")
		r.log.Info("executor entry already recorded", "mint", mint, "entry_type", entryType, "tx", txSignature)
		return &Result{Entry: e, Duplicate: true}, nil
	case err != nil:
		return nil, fmt.Errorf("record %s for %s: %w", entryType, mint, err)
	}

	observability.RecordExecutorEntry(string(entryType), "recorded")
	r.log.Info("executor entry recorded",
		"mint", mint, "entry_type", entryType, "amount", amount, "wallet", wallet, "tx", txSignature)
	return &Result{Entry: e}, nil
}
