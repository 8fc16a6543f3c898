package reporting

import (
	"fmt"
	"strings"
	"time"

	"royalty-ledger/internal/reconciliation"
)

// RenderMarkdown renders a reconciliation report as Markdown.
func RenderMarkdown(r *reconciliation.Report) string {
	var sb strings.Builder

	sb.WriteString("# Reconciliation Report\n\n")
	sb.WriteString(fmt.Sprintf("Audit: %s\n\n", r.AuditID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", time.UnixMilli(r.GeneratedAt).UTC().Format(time.RFC3339)))

	failed := 0
	for _, t := range r.Tokens {
		if t.Failed() {
			failed++
		}
	}
	sb.WriteString(fmt.Sprintf("Tokens: %d | Failing: %d\n\n", len(r.Tokens), failed))
	if r.HasFailures {
		sb.WriteString("**Result: FAIL.** At least one invariant is violated.\n\n")
	} else {
		sb.WriteString("**Result: PASS.**\n\n")
	}

	// Checks
	sb.WriteString("## Checks\n\n")
	if len(r.Tokens) == 0 {
		sb.WriteString("No tracked tokens.\n\n")
		return sb.String()
	}
	sb.WriteString("| Mint | Accrual = Snapshot | Owed >= 0 | Treasury >= 0 | Status |\n")
	sb.WriteString("|------|--------------------|-----------|---------------|--------|\n")
	for _, t := range r.Tokens {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			t.Mint,
			check(t.AccrualMatchesSnapshot, t.Error),
			check(t.OwedNonNegative, t.Error),
			check(t.TreasuryNonNegative, t.Error),
			status(t)))
	}
	sb.WriteString("\n")

	// Figures
	sb.WriteString("## Figures\n\n")
	sb.WriteString("| Mint | Lifetime (SOL) | Platform Accrual | Earner Accrual | Claimed | Paid Out | Withdrawn | Treasury Liquid |\n")
	sb.WriteString("|------|----------------|------------------|----------------|---------|----------|-----------|-----------------|\n")
	for _, t := range r.Tokens {
		if t.Error != "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			t.Mint, SOL(t.LifetimeTotal), SOL(t.PlatformAccrual), SOL(t.EarnerAccrual),
			SOL(t.Claimed), SOL(t.Payout), SOL(t.Withdrawal), SignedSOL(t.TreasuryLiquid)))
	}
	sb.WriteString("\n")

	// Failures
	var failures []string
	for _, t := range r.Tokens {
		if t.Error != "" {
			failures = append(failures, fmt.Sprintf("- %s: not audited (%s)", t.Mint, t.Error))
		}
		for _, v := range t.Violations {
			failures = append(failures, fmt.Sprintf("- %s: %s (%s)", t.Mint, v.Invariant, v.Detail))
		}
		for _, c := range t.Unconfirmed {
			failures = append(failures, fmt.Sprintf("- %s: %s failing, awaiting confirmation", t.Mint, c))
		}
	}
	sb.WriteString("## Failures\n\n")
	if len(failures) == 0 {
		sb.WriteString("None.\n\n")
	} else {
		sb.WriteString(strings.Join(failures, "\n"))
		sb.WriteString("\n\n")
	}

	// Earners
	sb.WriteString("## Earners\n\n")
	sb.WriteString("| Mint | Wallet | Earned (SOL) | Paid (SOL) | Owed (SOL) |\n")
	sb.WriteString("|------|--------|--------------|------------|------------|\n")
	for _, t := range r.Tokens {
		for _, e := range t.Earners {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				t.Mint, e.Wallet, SOL(e.Earned), SOL(e.Paid), SignedSOL(e.Owed)))
		}
	}
	sb.WriteString("\n")

	return sb.String()
}

func check(passed bool, auditErr string) string {
	switch {
	case auditErr != "":
		return "n/a"
	case passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

func status(t *reconciliation.TokenReport) string {
	switch {
	case t.Error != "":
		return "ERROR"
	case len(t.Violations) > 0:
		return "FAIL"
	case len(t.Unconfirmed) > 0:
		return "PENDING"
	default:
		return "OK"
	}
}
