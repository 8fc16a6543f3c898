package reporting

import (
	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

var lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)

// SOL renders a lamport amount as SOL with nine decimal places.
func SOL(lamports uint64) string {
	return decimal.NewFromUint64(lamports).Div(lamportsPerSOL).StringFixed(9)
}

// SignedSOL renders a signed lamport figure as SOL.
func SignedSOL(lamports int64) string {
	return decimal.NewFromInt(lamports).Div(lamportsPerSOL).StringFixed(9)
}
