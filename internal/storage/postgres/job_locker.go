package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"royalty-ledger/internal/storage"
)

// JobLocker implements storage.JobLocker with session-level advisory locks.
// A held lock pins one pooled connection until released.
type JobLocker struct {
	pool *Pool
}

// NewJobLocker creates a new JobLocker.
func NewJobLocker(pool *Pool) *JobLocker {
	return &JobLocker{pool: pool}
}

// Compile-time interface check.
var _ storage.JobLocker = (*JobLocker)(nil)

// TryLock acquires the named lock or returns ErrJobLocked.
func (l *JobLocker) TryLock(ctx context.Context, name string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(`+lockKey+`)`, "job:"+name).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, storage.ErrJobLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(`+lockKey+`)`, "job:"+name); err != nil {
				// Closing the session drops every lock it holds.
				_ = conn.Conn().Close(ctx)
			}
			conn.Release()
		})
	}, nil
}
