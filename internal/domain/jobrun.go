package domain

// JobStatus is the lifecycle state of a job run.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// IsTerminal reports whether the status ends a run.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

// JobRun records one batch invocation of the accrual pipeline.
// Corresponds to job_runs table in PostgreSQL.
type JobRun struct {
	RunID            string    // PRIMARY KEY (uuid)
	Name             string    // job name, also the lock name
	StartedAt        int64     // ms
	FinishedAt       *int64    // ms, nil while running
	Status           JobStatus // running | success | error
	TokensProcessed  int       // tokens examined in the run
	SnapshotsWritten int       // snapshots committed in the run
	ErrorMessage     *string   // set when Status == error
}
