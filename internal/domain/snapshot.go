package domain

// FeeSnapshot is a point-in-time observation of a token's cumulative
// lifetime fee total. Corresponds to fee_snapshots table in PostgreSQL.
//
// Snapshots for one mint are append-only and non-decreasing in
// LifetimeTotalLamports.
type FeeSnapshot struct {
	SnapshotID            string // PRIMARY KEY, SHA256(mint|job_run_id)
	Mint                  string // token mint address
	LifetimeTotalLamports uint64 // externally reported lifetime fees
	JobRunID              string // job run that observed the total
	SourceRef             string // fee source descriptor (e.g. "rpc:<account>")
	CreatedAt             int64  // record creation timestamp (ms)
}
