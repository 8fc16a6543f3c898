// Command server runs the accrual scheduler, the fee account watcher and
// the HTTP reporting API in one process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"royalty-ledger/internal/accrual"
	"royalty-ledger/internal/app"
	"royalty-ledger/internal/config"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/server"
	"royalty-ledger/internal/solana"
	"royalty-ledger/internal/watch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := flag.NewFlagSet("server", flag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := accrual.NewScheduler(accrual.SchedulerOptions{
		Job: a.Runner, Interval: cfg.Accrual.Interval, Logger: log,
	})
	srv := server.New(server.Options{
		Addr:      cfg.HTTP.Addr,
		Tokens:    a.Stores.Tokens,
		Views:     a.Views,
		Tracker:   a.Tracker,
		Auditor:   a.Auditor,
		Scheduler: scheduler,
		Logger:    log,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})

	if cfg.Reconciliation.Interval > 0 {
		g.Go(func() error {
			a.Auditor.Loop(gctx, cfg.Reconciliation.Interval)
			return nil
		})
	} else {
		log.Info("no audit interval, reconciliation history is written by cmd/reconcile only")
	}

	if cfg.Solana.WSEndpoint != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Commitment = cfg.Solana.Commitment
		wsCfg.Logger = log
		ws, err := solana.NewWSClient(gctx, cfg.Solana.WSEndpoint, &wsCfg)
		if err != nil {
			return fmt.Errorf("connect websocket: %w", err)
		}
		defer ws.Close()

		watcher := watch.NewAccountWatcher(watch.AccountWatcherOptions{
			WS: ws, Tokens: a.Stores.Tokens, Trigger: scheduler, Logger: log,
		})
		g.Go(func() error {
			_ = watcher.Run(gctx)
			return nil
		})
	} else {
		log.Info("no websocket endpoint, fee account watcher disabled")
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
