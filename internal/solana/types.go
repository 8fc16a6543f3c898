package solana

import (
	"encoding/base64"
	"fmt"
)

// Commitment levels accepted by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// MaxMultipleAccounts is the node limit for getMultipleAccounts.
const MaxMultipleAccounts = 100

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Slot       int64  `json:"-"` // context slot of the read
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// DecodeData returns the raw account data.
func (a *AccountInfo) DecodeData() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return raw, nil
}

type rpcContext struct {
	Slot int64 `json:"slot"`
}

type accountValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

func (v *accountValue) toInfo(slot int64) *AccountInfo {
	if v == nil {
		return nil
	}
	info := &AccountInfo{
		Slot:       slot,
		Lamports:   v.Lamports,
		Owner:      v.Owner,
		Executable: v.Executable,
		RentEpoch:  v.RentEpoch,
	}
	if len(v.Data) >= 1 {
		info.Data = v.Data[0]
	}
	return info
}
