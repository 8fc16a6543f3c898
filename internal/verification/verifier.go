// Package verification replays the split of every committed snapshot and
// compares the result with the accrual entries stored for it.
package verification

import (
	"context"
	"fmt"
	"sort"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/split"
	"royalty-ledger/internal/storage"
)

// FieldDivergence is a mismatch between stored and replayed figures.
type FieldDivergence struct {
	Field    string // "platform", "earner:<wallet>", "entries" or "agreement_version"
	Expected uint64 // replayed value
	Actual   uint64 // stored value
}

// SnapshotResult is the verification of one snapshot's accrual entries.
type SnapshotResult struct {
	SnapshotID  string
	Delta       uint64
	VersionID   string
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for one mint.
type Report struct {
	Mint      string
	Snapshots int
	Matched   int
	Divergent int
	Results   []SnapshotResult // divergent snapshots only
}

// Verifier replays accrual splits from snapshots and agreement history.
type Verifier struct {
	tokens     storage.TokenStore
	snapshots  storage.SnapshotStore
	ledger     storage.LedgerStore
	agreements storage.AgreementStore
}

// NewVerifier creates a new verifier.
func NewVerifier(tokens storage.TokenStore, snapshots storage.SnapshotStore, ledger storage.LedgerStore, agreements storage.AgreementStore) *Verifier {
	return &Verifier{tokens: tokens, snapshots: snapshots, ledger: ledger, agreements: agreements}
}

// VerifyAll verifies every tracked token.
func (v *Verifier) VerifyAll(ctx context.Context) ([]*Report, error) {
	tokens, err := v.tokens.ListTracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked tokens: %w", err)
	}
	reports := make([]*Report, 0, len(tokens))
	for _, t := range tokens {
		r, err := v.VerifyMint(ctx, t.Mint)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", t.Mint, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// VerifyMint replays every snapshot of mint in lifetime-total order.
func (v *Verifier) VerifyMint(ctx context.Context, mint string) (*Report, error) {
	snaps, err := v.snapshots.ListByMint(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	entries, err := v.ledger.ListByMint(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	history, err := v.agreements.GetHistory(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("agreement history: %w", err)
	}

	versions := make(map[string]*domain.AgreementVersion, len(history))
	for _, ver := range history {
		versions[ver.VersionID] = ver
	}
	bySnapshot := make(map[string][]*domain.LedgerEntry)
	for _, e := range entries {
		if e.EntryType == domain.EntryTypeAccrual && e.SnapshotID != nil {
			bySnapshot[*e.SnapshotID] = append(bySnapshot[*e.SnapshotID], e)
		}
	}

	report := &Report{Mint: mint, Snapshots: len(snaps)}
	var prev uint64
	for _, snap := range snaps {
		res := verifySnapshot(snap, snap.LifetimeTotalLamports-prev, bySnapshot[snap.SnapshotID], versions)
		prev = snap.LifetimeTotalLamports
		if res.Match {
			report.Matched++
			continue
		}
		report.Divergent++
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func verifySnapshot(snap *domain.FeeSnapshot, delta uint64, entries []*domain.LedgerEntry, versions map[string]*domain.AgreementVersion) SnapshotResult {
	res := SnapshotResult{SnapshotID: snap.SnapshotID, Delta: delta}

	if len(entries) == 0 {
		res.Divergences = []FieldDivergence{{Field: "entries", Expected: delta}}
		return res
	}

	versionID := ""
	if entries[0].AgreementVersionID != nil {
		versionID = *entries[0].AgreementVersionID
	}
	for _, e := range entries[1:] {
		if e.AgreementVersionID == nil || *e.AgreementVersionID != versionID {
			res.Divergences = []FieldDivergence{{Field: "agreement_version"}}
			return res
		}
	}
	res.VersionID = versionID

	ver, ok := versions[versionID]
	if !ok {
		res.Divergences = []FieldDivergence{{Field: "agreement_version"}}
		return res
	}
	replayed, err := split.Compute(delta, ver)
	if err != nil {
		res.Divergences = []FieldDivergence{{Field: "entries", Expected: delta}}
		return res
	}

	res.Divergences = compareEntries(replayed, entries)
	res.Match = len(res.Divergences) == 0
	return res
}

// compareEntries compares a replayed split with stored entries.
func compareEntries(replayed *split.Result, stored []*domain.LedgerEntry) []FieldDivergence {
	expected := map[string]uint64{"platform": replayed.Platform}
	for _, a := range replayed.Earners {
		expected["earner:"+a.Wallet] += a.Amount
	}
	actual := make(map[string]uint64, len(stored))
	for _, e := range stored {
		key := "platform"
		if e.BeneficiaryKind == domain.BeneficiaryEarner {
			key = "earner:" + e.Wallet()
		}
		actual[key] += e.AmountLamports
	}

	fields := make([]string, 0, len(expected)+len(actual))
	for k := range expected {
		fields = append(fields, k)
	}
	for k := range actual {
		if _, ok := expected[k]; !ok {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)

	var divergences []FieldDivergence
	for _, f := range fields {
		if expected[f] != actual[f] {
			divergences = append(divergences, FieldDivergence{Field: f, Expected: expected[f], Actual: actual[f]})
		}
	}
	return divergences
}
