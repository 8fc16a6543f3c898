package storage

import "errors"

// Storage errors for append-only stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleSnapshot is returned by CommitAccrual when the latest stored
	// snapshot no longer matches the value the delta was computed from.
	ErrStaleSnapshot = errors.New("stale snapshot: latest lifetime total changed")

	// ErrAmountOverflow is returned when a lamport sum leaves the int64
	// range the ledger tables store.
	ErrAmountOverflow = errors.New("lamport sum out of range")

	// ErrJobLocked is returned when another process holds the job lock.
	ErrJobLocked = errors.New("job lock held by another run")
)
