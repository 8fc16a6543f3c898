package memory

import (
	"context"
	"sort"
	"sync"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

const defaultListLimit = 50

// JobRunStore is an in-memory implementation of storage.JobRunStore.
type JobRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.JobRun // keyed by run_id
}

// NewJobRunStore creates a new in-memory job run store.
func NewJobRunStore() *JobRunStore {
	return &JobRunStore{
		data: make(map[string]*domain.JobRun),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *JobRunStore) Insert(_ context.Context, r *domain.JobRun) error {
	if r == nil || r.RunID == "" || r.Name == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.RunID] = cloneRun(r)
	return nil
}

// Complete records the terminal state of a running run.
func (s *JobRunStore) Complete(_ context.Context, r *domain.JobRun) error {
	if r == nil || !r.Status.IsTerminal() || r.FinishedAt == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[r.RunID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Status.IsTerminal() {
		return storage.ErrInvalidInput
	}

	next := cloneRun(cur)
	next.Status = r.Status
	finished := *r.FinishedAt
	next.FinishedAt = &finished
	next.TokensProcessed = r.TokensProcessed
	next.SnapshotsWritten = r.SnapshotsWritten
	if r.ErrorMessage != nil {
		msg := *r.ErrorMessage
		next.ErrorMessage = &msg
	}
	s.data[r.RunID] = next
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *JobRunStore) GetByID(_ context.Context, runID string) (*domain.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRun(r), nil
}

// ListRecent retrieves the latest runs ordered by started_at DESC.
func (s *JobRunStore) ListRecent(_ context.Context, limit int) ([]*domain.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.JobRun, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, cloneRun(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt != result[j].StartedAt {
			return result[i].StartedAt > result[j].StartedAt
		}
		return result[i].RunID > result[j].RunID
	})

	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneRun(r *domain.JobRun) *domain.JobRun {
	copy := *r
	if r.FinishedAt != nil {
		v := *r.FinishedAt
		copy.FinishedAt = &v
	}
	if r.ErrorMessage != nil {
		v := *r.ErrorMessage
		copy.ErrorMessage = &v
	}
	return &copy
}

var _ storage.JobRunStore = (*JobRunStore)(nil)
