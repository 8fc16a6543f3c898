package domain

// Token is a tracked fee-generating token.
// Corresponds to tokens table in PostgreSQL.
type Token struct {
	Mint       string  // PRIMARY KEY, base58 mint address
	FeeAccount string  // account holding the lifetime fee counter
	Label      *string // optional display name
	CreatedAt  int64   // record creation timestamp (ms)
}
