package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSnapshotID computes a deterministic snapshot_id using SHA256.
// Formula: SHA256(mint|job_run_id)
// Returns hex-encoded hash (64 characters).
//
// One run writes at most one snapshot per mint, so the id doubles as the
// idempotency key of a token's unit of work within a run.
func ComputeSnapshotID(mint, jobRunID string) string {
	data := fmt.Sprintf("%s|%s", mint, jobRunID)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
