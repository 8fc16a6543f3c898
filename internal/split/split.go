// Package split divides a positive fee delta between the platform and the
// earners of an agreement version.
//
// Integer arithmetic only, with 128-bit intermediates: for every delta the
// platform amount plus all earner amounts equals the delta exactly. The
// rounding residual goes to the platform.
package split

import (
	"errors"
	"math/bits"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/idhash"
)

// ErrZeroDelta is returned for a zero delta; there is nothing to split.
var ErrZeroDelta = errors.New("delta must be positive")

// Allocation is one earner's portion of a delta.
type Allocation struct {
	Wallet string
	Bps    uint32
	Amount uint64
}

// Result is the split of one delta under one agreement version.
type Result struct {
	Delta    uint64
	Platform uint64 // includes Residual
	Residual uint64 // rounding remainder assigned to the platform
	Earners  []Allocation
}

// EarnerTotal returns the sum of all earner amounts.
func (r *Result) EarnerTotal() uint64 {
	var sum uint64
	for _, a := range r.Earners {
		sum += a.Amount
	}
	return sum
}

// Compute splits delta under v:
//
//	platform = floor(delta * platform_bps / 10000)
//	pool     = delta - platform
//	earner_i = floor(pool * bps_i / (10000 - platform_bps))
//	residual = delta - platform - Σ earner_i, added to platform
//
// Earners keep the version's Position order. v must pass Validate.
func Compute(delta uint64, v *domain.AgreementVersion) (*Result, error) {
	if delta == 0 {
		return nil, ErrZeroDelta
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	platform := mulDiv(delta, uint64(v.PlatformFeeBps), domain.TotalBps)
	pool := delta - platform
	poolBps := uint64(v.EarnerPoolBps())

	res := &Result{Delta: delta, Earners: make([]Allocation, 0, len(v.Shares))}
	var distributed uint64
	for _, s := range v.Shares {
		var amount uint64
		if poolBps > 0 {
			amount = mulDiv(pool, uint64(s.Bps), poolBps)
		}
		distributed += amount
		res.Earners = append(res.Earners, Allocation{Wallet: s.EarnerWallet, Bps: s.Bps, Amount: amount})
	}

	res.Residual = pool - distributed
	res.Platform = platform + res.Residual
	return res, nil
}

// mulDiv returns floor(a*b/c) without overflow. Requires b <= c and c > 0,
// which keeps the quotient within 64 bits.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// Entries builds the ACCRUAL ledger entries for a split: one PLATFORM entry
// and one EARNER entry per share, zero amounts included. All reference the
// same snapshot, agreement version and job run.
func Entries(res *Result, snapshot *domain.FeeSnapshot, versionID string) []*domain.LedgerEntry {
	snapID := snapshot.SnapshotID
	runID := snapshot.JobRunID

	entries := make([]*domain.LedgerEntry, 0, 1+len(res.Earners))
	entries = append(entries, &domain.LedgerEntry{
		EntryID:            idhash.ComputeAccrualEntryID(snapID, domain.BeneficiaryPlatform, ""),
		Mint:               snapshot.Mint,
		EntryType:          domain.EntryTypeAccrual,
		BeneficiaryKind:    domain.BeneficiaryPlatform,
		AmountLamports:     res.Platform,
		SnapshotID:         &snapID,
		AgreementVersionID: &versionID,
		JobRunID:           &runID,
		CreatedAt:          snapshot.CreatedAt,
	})

	for _, a := range res.Earners {
		wallet := a.Wallet
		entries = append(entries, &domain.LedgerEntry{
			EntryID:            idhash.ComputeAccrualEntryID(snapID, domain.BeneficiaryEarner, wallet),
			Mint:               snapshot.Mint,
			EntryType:          domain.EntryTypeAccrual,
			BeneficiaryKind:    domain.BeneficiaryEarner,
			BeneficiaryWallet:  &wallet,
			AmountLamports:     a.Amount,
			SnapshotID:         &snapID,
			AgreementVersionID: &versionID,
			JobRunID:           &runID,
			CreatedAt:          snapshot.CreatedAt,
		})
	}
	return entries
}
