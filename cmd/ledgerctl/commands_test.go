package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royalty-ledger/internal/app"
	"royalty-ledger/internal/config"
	"royalty-ledger/internal/domain"
)

func newKey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return base58.Encode(pub)
}

// runCommand parses args for the named command and runs it against a.
func runCommand(t *testing.T, a *app.App, name string, args ...string) (string, error) {
	t.Helper()
	cmd, ok := commands[name]
	require.True(t, ok, name)
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	act := cmd(flags)
	require.NoError(t, flags.Parse(args))

	var out bytes.Buffer
	err := act(context.Background(), a, &out)
	return out.String(), err
}

func TestTokenRegister_DerivesFeeAccount(t *testing.T) {
	programID := newKey(t)
	a := app.New(&config.Config{Solana: config.SolanaConfig{ProgramID: programID}}, nil, app.Options{})
	mint := newKey(t)

	out, err := runCommand(t, a, "token register", "--mint", mint, "--label", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "registered "+mint)

	tok, err := a.Stores.Tokens.Get(context.Background(), mint)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.FeeAccount)
	require.NotNil(t, tok.Label)
	assert.Equal(t, "demo", *tok.Label)

	_, err = runCommand(t, a, "token register", "--mint", "not-base58!")
	assert.Error(t, err)
}

func TestTokenRegister_RequiresFeeAccountOrProgram(t *testing.T) {
	a := app.New(&config.Config{}, nil, app.Options{})
	_, err := runCommand(t, a, "token register", "--mint", newKey(t))
	assert.Error(t, err)
}

func TestAgreementActivate(t *testing.T) {
	a := app.New(&config.Config{}, nil, app.Options{})
	mint, w1, w2 := newKey(t), newKey(t), newKey(t)

	_, err := runCommand(t, a, "agreement activate", "--mint", mint, "--platform-bps", "1000",
		"--share", w1+"=6000", "--share", w2+"=3000")
	require.NoError(t, err)

	v, err := a.Registry.ActiveVersion(context.Background(), mint)
	require.NoError(t, err)
	require.Len(t, v.Shares, 2)
	assert.Equal(t, w1, v.Shares[0].EarnerWallet)
	assert.Equal(t, uint32(3000), v.Shares[1].Bps)

	_, err = runCommand(t, a, "agreement activate", "--mint", mint, "--platform-bps", "1000", "--share", w1+"=8000")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	out, err := runCommand(t, a, "agreement show", "--mint", mint)
	require.NoError(t, err)
	assert.Contains(t, out, "active")
}

func TestRecordEntries(t *testing.T) {
	a := app.New(&config.Config{}, nil, app.Options{})
	mint, wallet := newKey(t), newKey(t)

	out, err := runCommand(t, a, "record claim", "--mint", mint, "--amount", "1500000000", "--sig", "sig-1")
	require.NoError(t, err)
	assert.Contains(t, out, "recorded CLAIM_FROM_SOURCE 1500000000 lamports (1.500000000 SOL)")

	out, err = runCommand(t, a, "record claim", "--mint", mint, "--amount", "1500000000", "--sig", "sig-1")
	require.NoError(t, err)
	assert.Contains(t, out, "already recorded")

	_, err = runCommand(t, a, "record payout", "--mint", mint, "--wallet", wallet, "--amount", "10", "--sig", "sig-2")
	require.NoError(t, err)

	_, err = runCommand(t, a, "record withdrawal", "--mint", mint, "--amount", "0", "--sig", "sig-3")
	assert.Error(t, err)
}

func TestParseShares(t *testing.T) {
	_, err := parseShares([]string{"walletonly"})
	assert.Error(t, err)
	_, err = parseShares([]string{"w=abc"})
	assert.Error(t, err)

	shares, err := parseShares([]string{"a=1", "b=2"})
	require.NoError(t, err)
	assert.Equal(t, "b", shares[1].Wallet)
}

func TestRun_UnknownCommand(t *testing.T) {
	assert.Error(t, run([]string{"token"}))
	assert.Error(t, run([]string{"token", "burn"}))
}
