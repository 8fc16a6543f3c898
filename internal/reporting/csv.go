package reporting

import (
	"fmt"
	"strings"

	"royalty-ledger/internal/reconciliation"
)

// RenderCSV renders one row per token with raw lamport figures and check
// outcomes.
func RenderCSV(r *reconciliation.Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("audit_id,mint,lifetime_total_lamports,platform_accrual_lamports,earner_accrual_lamports,")
	sb.WriteString("claimed_lamports,payout_lamports,withdrawal_lamports,treasury_liquid_lamports,")
	sb.WriteString("accrual_matches_snapshot,owed_non_negative,treasury_non_negative,failing_earners,confirmed_failures,error\n")

	// Rows
	for _, t := range r.Tokens {
		confirmed := make([]string, 0, len(t.Violations))
		for _, v := range t.Violations {
			confirmed = append(confirmed, v.Invariant)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%d,%d,%d,%d,%d,%t,%t,%t,%s,%s,%s\n",
			r.AuditID,
			t.Mint,
			t.LifetimeTotal,
			t.PlatformAccrual,
			t.EarnerAccrual,
			t.Claimed,
			t.Payout,
			t.Withdrawal,
			t.TreasuryLiquid,
			t.AccrualMatchesSnapshot,
			t.OwedNonNegative,
			t.TreasuryNonNegative,
			strings.Join(t.FailingEarners, ";"),
			strings.Join(confirmed, ";"),
			csvField(t.Error),
		))
	}

	return sb.String()
}

func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
