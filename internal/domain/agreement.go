package domain

import "fmt"

// TotalBps is the basis-point denominator. Platform and earner shares of an
// agreement version always sum to exactly this value.
const TotalBps = 10000

// AgreementVersion is one royalty split configuration for a token.
// Exactly one version per mint has EffectiveTo == nil (the active version).
type AgreementVersion struct {
	VersionID      string           // PRIMARY KEY
	Mint           string           // token mint address
	PlatformFeeBps uint32           // platform share in basis points
	EffectiveFrom  int64            // activation timestamp (ms)
	EffectiveTo    *int64           // close timestamp (ms), nil while active
	Shares         []AgreementShare // earner shares ordered by Position
}

// AgreementShare is a single earner's slice of an agreement version.
type AgreementShare struct {
	VersionID    string // agreement version reference
	EarnerWallet string // base58 wallet address
	Bps          uint32 // earner share in basis points
	Position     int    // stable order within the version
}

// IsActive reports whether the version has not been closed.
func (v *AgreementVersion) IsActive() bool {
	return v.EffectiveTo == nil
}

// EarnerPoolBps returns the basis points shared among earners.
func (v *AgreementVersion) EarnerPoolBps() uint32 {
	return TotalBps - v.PlatformFeeBps
}

// Validate checks the basis-point invariant:
// PlatformFeeBps + Σ share.Bps == TotalBps, with no duplicate or empty wallets.
// Returns a *ValidationError describing the first violation found.
func (v *AgreementVersion) Validate() error {
	if v.Mint == "" {
		return &ValidationError{Field: "mint", Reason: "required"}
	}
	if v.PlatformFeeBps > TotalBps {
		return &ValidationError{
			Field:  "platform_fee_bps",
			Reason: fmt.Sprintf("%d exceeds %d", v.PlatformFeeBps, TotalBps),
		}
	}
	if v.PlatformFeeBps < TotalBps && len(v.Shares) == 0 {
		return &ValidationError{Field: "shares", Reason: "earner pool is non-zero but no earners are listed"}
	}

	seen := make(map[string]struct{}, len(v.Shares))
	sum := uint64(v.PlatformFeeBps)
	for i, s := range v.Shares {
		if s.EarnerWallet == "" {
			return &ValidationError{Field: fmt.Sprintf("shares[%d].earner_wallet", i), Reason: "required"}
		}
		if _, dup := seen[s.EarnerWallet]; dup {
			return &ValidationError{
				Field:  fmt.Sprintf("shares[%d].earner_wallet", i),
				Reason: "duplicate wallet " + s.EarnerWallet,
			}
		}
		seen[s.EarnerWallet] = struct{}{}
		sum += uint64(s.Bps)
	}

	if sum != TotalBps {
		return &ValidationError{
			Field:  "bps",
			Reason: fmt.Sprintf("platform_fee_bps + sum(share bps) = %d, want %d", sum, TotalBps),
		}
	}
	return nil
}
