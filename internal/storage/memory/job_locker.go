package memory

import (
	"context"
	"sync"

	"royalty-ledger/internal/storage"
)

// JobLocker is an in-process implementation of storage.JobLocker.
type JobLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewJobLocker creates a new in-process job locker.
func NewJobLocker() *JobLocker {
	return &JobLocker{held: make(map[string]struct{})}
}

// TryLock acquires the named lock or returns ErrJobLocked.
func (l *JobLocker) TryLock(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[name]; busy {
		return nil, storage.ErrJobLocked
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}

var _ storage.JobLocker = (*JobLocker)(nil)
