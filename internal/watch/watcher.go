// Package watch triggers early accrual runs when a tracked fee account
// changes on chain.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/solana"
	"royalty-ledger/internal/storage"
)

// Trigger requests an accrual run. accrual.Scheduler satisfies it.
type Trigger interface {
	Trigger()
}

// AccountWatcher subscribes to the fee account of every tracked token and
// fires the trigger on each change notification. Tokens registered after
// start are picked up on the next refresh.
type AccountWatcher struct {
	ws      solana.WSClient
	tokens  storage.TokenStore
	trigger Trigger
	refresh time.Duration
	clock   clockwork.Clock
	log     *slog.Logger

	mu         sync.Mutex
	subscribed map[string]string // fee account -> mint
}

// AccountWatcherOptions contains configuration for creating an
// AccountWatcher.
type AccountWatcherOptions struct {
	WS      solana.WSClient
	Tokens  storage.TokenStore
	Trigger Trigger
	Refresh time.Duration // Default: 1m
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// NewAccountWatcher creates a new account watcher.
func NewAccountWatcher(opts AccountWatcherOptions) *AccountWatcher {
	refresh := opts.Refresh
	if refresh <= 0 {
		refresh = time.Minute
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AccountWatcher{
		ws:         opts.WS,
		tokens:     opts.Tokens,
		trigger:    opts.Trigger,
		refresh:    refresh,
		clock:      clock,
		log:        logger.OrDiscard(opts.Logger),
		subscribed: make(map[string]string),
	}
}

// Run subscribes and forwards notifications until ctx is cancelled.
func (w *AccountWatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	w.sync(ctx, &wg)

	ticker := w.clock.NewTicker(w.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			w.sync(ctx, &wg)
		}
	}
}

// Subscribed returns the number of fee accounts currently watched.
func (w *AccountWatcher) Subscribed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subscribed)
}

// sync subscribes every tracked fee account not yet watched.
func (w *AccountWatcher) sync(ctx context.Context, wg *sync.WaitGroup) {
	tokens, err := w.tokens.ListTracked(ctx)
	if err != nil {
		w.log.Warn("watcher could not list tracked tokens", "error", err)
		return
	}

	for _, t := range tokens {
		w.mu.Lock()
		_, ok := w.subscribed[t.FeeAccount]
		w.mu.Unlock()
		if ok || t.FeeAccount == "" {
			continue
		}

		ch, err := w.ws.SubscribeAccount(ctx, t.FeeAccount)
		if err != nil {
			w.log.Warn("fee account subscription failed", "mint", t.Mint, "fee_account", t.FeeAccount, "error", err)
			continue
		}

		w.mu.Lock()
		w.subscribed[t.FeeAccount] = t.Mint
		w.mu.Unlock()
		w.log.Debug("watching fee account", "mint", t.Mint, "fee_account", t.FeeAccount)

		wg.Add(1)
		go func(mint, account string) {
			defer wg.Done()
			w.forward(ctx, mint, account, ch)
		}(t.Mint, t.FeeAccount)
	}
}

func (w *AccountWatcher) forward(ctx context.Context, mint, account string, ch <-chan solana.AccountNotification) {
	defer func() {
		// Closed streams are retried on the next refresh.
		w.mu.Lock()
		delete(w.subscribed, account)
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				w.log.Warn("fee account stream closed", "mint", mint, "fee_account", account)
				return
			}
			var slot int64
			if n.Account != nil {
				slot = n.Account.Slot
			}
			w.log.Debug("fee account changed", "mint", mint, "slot", slot)
			observability.RecordWatcherTrigger()
			w.trigger.Trigger()
		}
	}
}
