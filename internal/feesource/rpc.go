package feesource

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/observability"
	"royalty-ledger/internal/solana"
)

// DefaultCounterOffset skips the 8-byte account discriminator.
const DefaultCounterOffset = 8

// ErrAccountNotFound is returned when a token's fee account does not exist.
var ErrAccountNotFound = errors.New("fee account not found")

// RPCSource reads a little-endian u64 lifetime counter from each token's
// fee account over Solana JSON-RPC.
type RPCSource struct {
	rpc    solana.RPCClient
	offset int
}

// NewRPCSource creates a source reading the counter at counterOffset.
// Rate limiting is configured on the client.
func NewRPCSource(rpc solana.RPCClient, counterOffset int) *RPCSource {
	return &RPCSource{rpc: rpc, offset: counterOffset}
}

var _ Prefetcher = (*RPCSource)(nil)

// LifetimeTotal reads one fee account.
func (s *RPCSource) LifetimeTotal(ctx context.Context, token *domain.Token) (uint64, string, error) {
	start := time.Now()
	info, err := s.rpc.GetAccountInfo(ctx, token.FeeAccount)
	observability.RecordRPCLatency("getAccountInfo", time.Since(start).Seconds())
	if err != nil {
		return 0, "", &domain.DataSourceError{Mint: token.Mint, Err: err}
	}
	return s.decode(token, info)
}

// Prefetch reads every token's fee account with getMultipleAccounts in
// chunks of solana.MaxMultipleAccounts. A failed chunk leaves its tokens to
// be read individually.
func (s *RPCSource) Prefetch(ctx context.Context, tokens []*domain.Token) (Source, error) {
	p := &prefetched{readings: make(map[string]reading, len(tokens)), origin: s}

	for begin := 0; begin < len(tokens); begin += solana.MaxMultipleAccounts {
		end := min(begin+solana.MaxMultipleAccounts, len(tokens))
		chunk := tokens[begin:end]

		keys := make([]string, len(chunk))
		for i, t := range chunk {
			keys[i] = t.FeeAccount
		}

		start := time.Now()
		infos, err := s.rpc.GetMultipleAccounts(ctx, keys)
		observability.RecordRPCLatency("getMultipleAccounts", time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		for i, t := range chunk {
			total, ref, err := s.decode(t, infos[i])
			if err != nil {
				continue
			}
			p.readings[t.Mint] = reading{total: total, ref: ref}
		}
	}
	return p, nil
}

func (s *RPCSource) decode(token *domain.Token, info *solana.AccountInfo) (uint64, string, error) {
	if info == nil {
		return 0, "", &domain.DataSourceError{Mint: token.Mint, Err: fmt.Errorf("%w: %s", ErrAccountNotFound, token.FeeAccount)}
	}
	data, err := info.DecodeData()
	if err != nil {
		return 0, "", &domain.DataSourceError{Mint: token.Mint, Err: err}
	}
	total, err := ReadCounter(data, s.offset)
	if err != nil {
		return 0, "", &domain.DataSourceError{Mint: token.Mint, Err: err}
	}
	return total, fmt.Sprintf("rpc:%s@%d", token.FeeAccount, info.Slot), nil
}

// ReadCounter decodes the little-endian u64 at offset.
func ReadCounter(data []byte, offset int) (uint64, error) {
	if offset < 0 || len(data) < offset+8 {
		return 0, fmt.Errorf("account data is %d bytes, counter needs %d", len(data), offset+8)
	}
	return binary.LittleEndian.Uint64(data[offset : offset+8]), nil
}
