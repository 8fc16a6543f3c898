// Command ledgerctl administers the ledger: tracked tokens, agreement
// versions and executor entries.
//
//	ledgerctl token register --mint M [--fee-account F] [--label L]
//	ledgerctl token list
//	ledgerctl agreement activate --mint M --platform-bps N --share WALLET=BPS ...
//	ledgerctl agreement show --mint M
//	ledgerctl record claim|withdrawal --mint M --amount N --sig S
//	ledgerctl record payout --mint M --wallet W --amount N --sig S
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"royalty-ledger/internal/app"
	"royalty-ledger/internal/config"
	"royalty-ledger/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ledgerctl <token|agreement|record> <action> [flags]")
	}
	group, action := args[0], args[1]

	cmd, ok := commands[group+" "+action]
	if !ok {
		return fmt.Errorf("unknown command %q", group+" "+action)
	}

	flags := flag.NewFlagSet("ledgerctl "+group+" "+action, flag.ContinueOnError)
	config.RegisterFlags(flags)
	bind := cmd(flags)
	if err := flags.Parse(args[2:]); err != nil {
		return err
	}

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

	return bind(ctx, a, os.Stdout)
}

// action runs a parsed command against the wired components.
type action func(ctx context.Context, a *app.App, out io.Writer) error

// command registers its flags and returns the action that reads them.
type command func(flags *flag.FlagSet) action

var commands = map[string]command{
	"token register":     tokenRegister,
	"token list":         tokenList,
	"agreement activate": agreementActivate,
	"agreement show":     agreementShow,
	"record claim":       recordClaim,
	"record withdrawal":  recordWithdrawal,
	"record payout":      recordPayout,
}
