package feesource

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/solana"
)

type fakeRPC struct {
	accounts      map[string]*solana.AccountInfo
	err           error
	multipleErr   error
	singleCalls   int
	multipleCalls int
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	f.singleCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts[pubkey], nil
}

func (f *fakeRPC) GetMultipleAccounts(_ context.Context, pubkeys []string) ([]*solana.AccountInfo, error) {
	f.multipleCalls++
	if f.multipleErr != nil {
		return nil, f.multipleErr
	}
	out := make([]*solana.AccountInfo, len(pubkeys))
	for i, k := range pubkeys {
		out[i] = f.accounts[k]
	}
	return out, nil
}

func (f *fakeRPC) GetSlot(context.Context) (int64, error) { return 1, nil }

func counterAccount(offset int, total uint64, slot int64) *solana.AccountInfo {
	data := make([]byte, offset+8+4)
	binary.LittleEndian.PutUint64(data[offset:], total)
	return &solana.AccountInfo{Slot: slot, Data: base64.StdEncoding.EncodeToString(data)}
}

func TestRPCSource_LifetimeTotal(t *testing.T) {
	rpc := &fakeRPC{accounts: map[string]*solana.AccountInfo{
		"vault1": counterAccount(DefaultCounterOffset, 150_000_000, 77),
	}}
	src := NewRPCSource(rpc, DefaultCounterOffset)

	total, ref, err := src.LifetimeTotal(context.Background(), &domain.Token{Mint: "m1", FeeAccount: "vault1"})
	if err != nil {
		t.Fatalf("LifetimeTotal: %v", err)
	}
	if total != 150_000_000 {
		t.Errorf("total = %d, want 150000000", total)
	}
	if ref != "rpc:vault1@77" {
		t.Errorf("ref = %q", ref)
	}
}

func TestRPCSource_Errors(t *testing.T) {
	short := &solana.AccountInfo{Data: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})}
	tests := []struct {
		name string
		rpc  *fakeRPC
	}{
		{"rpc failure", &fakeRPC{err: errors.New("connection refused")}},
		{"missing account", &fakeRPC{accounts: map[string]*solana.AccountInfo{}}},
		{"short data", &fakeRPC{accounts: map[string]*solana.AccountInfo{"vault1": short}}},
		{"bad base64", &fakeRPC{accounts: map[string]*solana.AccountInfo{"vault1": {Data: "%%%"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewRPCSource(tt.rpc, DefaultCounterOffset)
			_, _, err := src.LifetimeTotal(context.Background(), &domain.Token{Mint: "m1", FeeAccount: "vault1"})

			var dsErr *domain.DataSourceError
			if !errors.As(err, &dsErr) {
				t.Fatalf("expected DataSourceError, got %v", err)
			}
			if dsErr.Mint != "m1" {
				t.Errorf("mint = %q, want m1", dsErr.Mint)
			}
		})
	}
}

func TestRPCSource_Prefetch(t *testing.T) {
	accounts := make(map[string]*solana.AccountInfo)
	var tokens []*domain.Token
	for i := 0; i < solana.MaxMultipleAccounts+5; i++ {
		mint := "mint" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		vault := "vault-" + mint
		tokens = append(tokens, &domain.Token{Mint: mint, FeeAccount: vault})
		accounts[vault] = counterAccount(0, uint64(i+1), 5)
	}
	missing := &domain.Token{Mint: "gone", FeeAccount: "vault-gone"}
	tokens = append(tokens, missing)

	rpc := &fakeRPC{accounts: accounts}
	src := NewRPCSource(rpc, 0)

	cached, err := src.Prefetch(context.Background(), tokens)
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if rpc.multipleCalls != 2 {
		t.Errorf("expected 2 getMultipleAccounts calls, got %d", rpc.multipleCalls)
	}

	total, _, err := cached.LifetimeTotal(context.Background(), tokens[3])
	if err != nil || total != 4 {
		t.Errorf("prefetched total = %d, %v; want 4", total, err)
	}
	if rpc.singleCalls != 0 {
		t.Errorf("prefetched read hit RPC %d times", rpc.singleCalls)
	}

	// Missing accounts fall through to a live read.
	if _, _, err := cached.LifetimeTotal(context.Background(), missing); err == nil {
		t.Error("expected error for missing account")
	}
	if rpc.singleCalls != 1 {
		t.Errorf("expected fallback read, got %d single calls", rpc.singleCalls)
	}
}

func TestRPCSource_PrefetchChunkFailureFallsBack(t *testing.T) {
	rpc := &fakeRPC{
		accounts:    map[string]*solana.AccountInfo{"vault1": counterAccount(0, 9, 1)},
		multipleErr: errors.New("503"),
	}
	src := NewRPCSource(rpc, 0)
	token := &domain.Token{Mint: "m1", FeeAccount: "vault1"}

	cached, err := src.Prefetch(context.Background(), []*domain.Token{token})
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	total, _, err := cached.LifetimeTotal(context.Background(), token)
	if err != nil || total != 9 {
		t.Errorf("fallback total = %d, %v; want 9", total, err)
	}
}

func TestReadCounter(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data[8:], ^uint64(0))
	got, err := ReadCounter(data, 8)
	if err != nil || got != ^uint64(0) {
		t.Errorf("ReadCounter = %d, %v", got, err)
	}
	if _, err := ReadCounter(data, 9); err == nil {
		t.Error("expected error reading past end")
	}
	if _, err := ReadCounter(data, -1); err == nil {
		t.Error("expected error for negative offset")
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(map[string]uint64{"m1": 10})
	token := &domain.Token{Mint: "m1"}

	total, ref, err := src.LifetimeTotal(context.Background(), token)
	if err != nil || total != 10 || ref != "static" {
		t.Fatalf("LifetimeTotal = %d, %q, %v", total, ref, err)
	}

	src.SetError("m1", errors.New("down"))
	var dsErr *domain.DataSourceError
	if _, _, err := src.LifetimeTotal(context.Background(), token); !errors.As(err, &dsErr) {
		t.Errorf("expected DataSourceError, got %v", err)
	}

	src.Set("m1", 20)
	if total, _, _ := src.LifetimeTotal(context.Background(), token); total != 20 {
		t.Errorf("total = %d after Set, want 20", total)
	}

	if _, _, err := src.LifetimeTotal(context.Background(), &domain.Token{Mint: "other"}); !errors.Is(err, ErrNoFixture) {
		t.Errorf("expected ErrNoFixture, got %v", err)
	}
}
