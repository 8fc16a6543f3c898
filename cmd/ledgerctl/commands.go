package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"royalty-ledger/internal/agreement"
	"royalty-ledger/internal/app"
	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/ledger"
	"royalty-ledger/internal/reporting"
	"royalty-ledger/internal/solana"
)

func tokenRegister(flags *flag.FlagSet) action {
	mint := flags.String("mint", "", "token mint address")
	feeAccount := flags.String("fee-account", "", "fee counter account (default: fee vault PDA of the mint)")
	label := flags.String("label", "", "display name")

	return func(ctx context.Context, a *app.App, out io.Writer) error {
		if err := solana.ValidatePublicKey(*mint); err != nil {
			return fmt.Errorf("--mint: %w", err)
		}
		account := *feeAccount
		if account == "" {
			if a.Config.Solana.ProgramID == "" {
				return errors.New("--fee-account or --program-id is required")
			}
			derived, err := solana.FeeVaultAddress(*mint, a.Config.Solana.ProgramID)
			if err != nil {
				return fmt.Errorf("derive fee account: %w", err)
			}
			account = derived
		} else if err := solana.ValidatePublicKey(account); err != nil {
			return fmt.Errorf("--fee-account: %w", err)
		}

		t := &domain.Token{Mint: *mint, FeeAccount: account, CreatedAt: time.Now().UnixMilli()}
		if *label != "" {
			t.Label = label
		}
		if err := a.Stores.Tokens.Register(ctx, t); err != nil {
			return fmt.Errorf("register token: %w", err)
		}
		fmt.Fprintf(out, "registered %s (fee account %s)\n", t.Mint, t.FeeAccount)
		return nil
	}
}

func tokenList(_ *flag.FlagSet) action {
	return func(ctx context.Context, a *app.App, out io.Writer) error {
		tokens, err := a.Stores.Tokens.ListTracked(ctx)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			label := ""
			if t.Label != nil {
				label = *t.Label
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", t.Mint, t.FeeAccount, label)
		}
		return nil
	}
}

func agreementActivate(flags *flag.FlagSet) action {
	mint := flags.String("mint", "", "token mint address")
	platformBps := flags.Uint32("platform-bps", 0, "platform share in basis points")
	rawShares := flags.StringArray("share", nil, "earner share as WALLET=BPS, repeatable, in payout order")

	return func(ctx context.Context, a *app.App, out io.Writer) error {
		shares, err := parseShares(*rawShares)
		if err != nil {
			return err
		}
		v, err := a.Registry.Activate(ctx, *mint, *platformBps, shares)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "activated version %s for %s\n", v.VersionID, v.Mint)
		return nil
	}
}

func parseShares(raw []string) ([]agreement.Share, error) {
	shares := make([]agreement.Share, 0, len(raw))
	for _, s := range raw {
		wallet, bps, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--share %q: want WALLET=BPS", s)
		}
		n, err := strconv.ParseUint(bps, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("--share %q: %w", s, err)
		}
		shares = append(shares, agreement.Share{Wallet: wallet, Bps: uint32(n)})
	}
	return shares, nil
}

func agreementShow(flags *flag.FlagSet) action {
	mint := flags.String("mint", "", "token mint address")

	return func(ctx context.Context, a *app.App, out io.Writer) error {
		versions, err := a.Registry.History(ctx, *mint)
		if err != nil {
			return err
		}
		for _, v := range versions {
			state := "closed"
			if v.EffectiveTo == nil {
				state = "active"
			}
			fmt.Fprintf(out, "%s\t%s\tplatform=%d\tfrom=%s\n", v.VersionID, state, v.PlatformFeeBps,
				time.UnixMilli(v.EffectiveFrom).UTC().Format(time.RFC3339))
			for _, s := range v.Shares {
				fmt.Fprintf(out, "  %d\t%s\t%d\n", s.Position, s.EarnerWallet, s.Bps)
			}
		}
		return nil
	}
}

type entryFlags struct {
	mint   *string
	amount *uint64
	sig    *string
}

func registerEntryFlags(flags *flag.FlagSet) entryFlags {
	return entryFlags{
		mint:   flags.String("mint", "", "token mint address"),
		amount: flags.Uint64("amount", 0, "amount in lamports"),
		sig:    flags.String("sig", "", "on-chain transaction signature"),
	}
}

func printResult(out io.Writer, res *ledger.Result) {
	verb := "recorded"
	if res.Duplicate {
		verb = "already recorded"
	}
	fmt.Fprintf(out, "%s %s %d lamports (%s SOL) as %s\n", verb, res.Entry.EntryType,
		res.Entry.AmountLamports, reporting.SOL(res.Entry.AmountLamports), res.Entry.EntryID)
}

func recordClaim(flags *flag.FlagSet) action {
	f := registerEntryFlags(flags)
	return func(ctx context.Context, a *app.App, out io.Writer) error {
		res, err := a.Recorder.RecordClaim(ctx, *f.mint, *f.amount, *f.sig)
		if err != nil {
			return err
		}
		printResult(out, res)
		return nil
	}
}

func recordWithdrawal(flags *flag.FlagSet) action {
	f := registerEntryFlags(flags)
	return func(ctx context.Context, a *app.App, out io.Writer) error {
		res, err := a.Recorder.RecordWithdrawal(ctx, *f.mint, *f.amount, *f.sig)
		if err != nil {
			return err
		}
		printResult(out, res)
		return nil
	}
}

func recordPayout(flags *flag.FlagSet) action {
	f := registerEntryFlags(flags)
	wallet := flags.String("wallet", "", "earner wallet")
	return func(ctx context.Context, a *app.App, out io.Writer) error {
		res, err := a.Recorder.RecordPayout(ctx, *f.mint, *wallet, *f.amount, *f.sig)
		if err != nil {
			return err
		}
		printResult(out, res)
		return nil
	}
}
