package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeAccount streams change notifications for one account.
	SubscribeAccount(ctx context.Context, pubkey string) (<-chan AccountNotification, error)

	// Close closes the WebSocket connection and every subscription channel.
	Close() error
}

// AccountNotification is an accountNotification message.
type AccountNotification struct {
	Pubkey  string
	Account *AccountInfo // Slot holds the notification context slot
}
