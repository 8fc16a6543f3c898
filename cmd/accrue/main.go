// Command accrue runs the fee accrual job once, or on an interval with
// --loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"royalty-ledger/internal/accrual"
	"royalty-ledger/internal/app"
	"royalty-ledger/internal/config"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := flag.NewFlagSet("accrue", flag.ExitOnError)
	config.RegisterFlags(flags)
	loop := flags.Bool("loop", false, "keep running on the configured interval")
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

	if *loop {
		scheduler := accrual.NewScheduler(accrual.SchedulerOptions{
			Job: a.Runner, Interval: cfg.Accrual.Interval, Logger: log,
		})
		log.Info("accrual loop started", "interval", cfg.Accrual.Interval)
		scheduler.Run(ctx)
		return nil
	}

	summary, err := a.Runner.Run(ctx)
	if errors.Is(err, storage.ErrJobLocked) {
		log.Warn("another accrual run holds the lock, nothing to do")
		return nil
	}
	if err != nil {
		return err
	}

	failed := 0
	for _, t := range summary.Tokens {
		if t.Err != nil {
			failed++
		}
	}
	fmt.Printf("run %s: %d tokens, %d snapshots written, %d failed\n",
		summary.Run.RunID, len(summary.Tokens), summary.SnapshotsWritten, failed)
	return nil
}
