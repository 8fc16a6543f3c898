package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an ed25519 public key.
const PublicKeyLength = 32

// maxSeedLength is the runtime limit for a single PDA seed.
const maxSeedLength = 32

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("no viable bump seed")

// DecodePublicKey parses a base58 public key.
func DecodePublicKey(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58 %q: %w", s, err)
	}
	if len(raw) != PublicKeyLength {
		return nil, fmt.Errorf("public key %q: got %d bytes, want %d", s, len(raw), PublicKeyLength)
	}
	return raw, nil
}

// ValidatePublicKey reports whether s is a well-formed base58 public key.
func ValidatePublicKey(s string) error {
	_, err := DecodePublicKey(s)
	return err
}

// ValidateWallet checks that s is a public key on the ed25519 curve, i.e. an
// address a private key can sign for. Program derived addresses fail this.
func ValidateWallet(s string) error {
	raw, err := DecodePublicKey(s)
	if err != nil {
		return err
	}
	if !IsOnCurve(raw) {
		return fmt.Errorf("wallet %s is not on the ed25519 curve", s)
	}
	return nil
}

// IsOnCurve reports whether b encodes a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// FindProgramAddress derives the canonical program address for seeds,
// searching bump seeds from 255 down. Returns the base58 address and bump.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodePublicKey(programID)
	if err != nil {
		return "", 0, fmt.Errorf("program id: %w", err)
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return "", 0, fmt.Errorf("seed length %d exceeds %d", len(seed), maxSeedLength)
		}
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program)
		h.Write([]byte("ProgramDerivedAddress"))
		sum := h.Sum(nil)

		if !IsOnCurve(sum) {
			return base58.Encode(sum), uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

// FeeVaultAddress derives the default fee account of a mint: the program
// address of seeds ["fee_vault", mint] under programID.
func FeeVaultAddress(mint, programID string) (string, error) {
	mintKey, err := DecodePublicKey(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte("fee_vault"), mintKey}, programID)
	return addr, err
}
