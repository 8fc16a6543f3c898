package solana

import "context"

// RPCClient defines the Solana JSON-RPC calls used to read fee counters.
type RPCClient interface {
	// GetAccountInfo retrieves an account. Returns nil, nil if it does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetMultipleAccounts retrieves up to MaxMultipleAccounts accounts.
	// Missing accounts are nil in the result, which has len(pubkeys) elements.
	GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*AccountInfo, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
