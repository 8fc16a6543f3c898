// Command reconcile audits every tracked token, writes RECONCILIATION.md
// and a CSV, and exits with status 2 when any invariant fails.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"royalty-ledger/internal/app"
	"royalty-ledger/internal/config"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/reporting"
)

const exitFailures = 2

func main() {
	failed, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(exitFailures)
	}
}

func run() (bool, error) {
	flags := flag.NewFlagSet("reconcile", flag.ExitOnError)
	config.RegisterFlags(flags)
	dryRun := flags.Bool("dry-run", false, "do not append results to audit history")
	verify := flags.Bool("verify", false, "also replay every snapshot split against stored accrual entries")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		return false, err
	}
	log := logger.New(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return false, err
	}
	defer a.Close()

	audit := a.Auditor.Audit
	if *dryRun {
		audit = a.Auditor.Inspect
	}
	report, err := audit(ctx)
	if err != nil {
		return false, err
	}

	paths, err := reporting.WriteFiles(cfg.OutputDir, report)
	if err != nil {
		return false, err
	}
	for _, p := range paths {
		fmt.Printf("  - %s\n", p)
	}
	failed := report.HasFailures
	if failed {
		log.Error("reconciliation found failures", "error", report.Err())
	}

	if *verify {
		results, err := a.Verifier.VerifyAll(ctx)
		if err != nil {
			return false, err
		}
		for _, r := range results {
			for _, res := range r.Results {
				failed = true
				log.Error("accrual entries diverge from replayed split",
					"mint", r.Mint, "snapshot_id", res.SnapshotID, "delta", res.Delta, "divergences", res.Divergences)
			}
			log.Info("verified accrual history", "mint", r.Mint, "snapshots", r.Snapshots, "divergent", r.Divergent)
		}
	}
	return failed, nil
}
