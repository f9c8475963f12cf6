package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-scrubber/internal/jobs"
)

// Store keeps statement analysis jobs in memory. It is safe for concurrent
// use and loses everything on restart.
//
// Jobs go in and come out as deep copies, so callers never share records or
// reports with the store, and statement passwords are dropped on the way in.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.AnalyzeStatementJob
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.AnalyzeStatementJob),
	}
}

// SaveJob stores a password-free copy of job, replacing any previous state.
func (s *Store) SaveJob(ctx context.Context, job *jobs.AnalyzeStatementJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job.Clone()
	return nil
}

// GetJob returns a copy of the job, or jobs.ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.AnalyzeStatementJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}

// ListJobs returns the jobs matching filter, newest first. Jobs created at
// the same instant are ordered by ID so pages are stable.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalyzeStatementJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.AnalyzeStatementJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if matches(job, filter) {
			matched = append(matched, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.JobID < b.JobID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	page := paginate(matched, filter.Offset, filter.Limit)
	out := make([]*jobs.AnalyzeStatementJob, len(page))
	for i, job := range page {
		out[i] = job.Clone()
	}
	return out, nil
}

// UpdateJobStatus sets the status of a stored job. A non-empty errorMsg
// replaces the recorded error.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

func matches(job *jobs.AnalyzeStatementJob, filter jobs.JobFilter) bool {
	if filter.Status != "" && job.Status != filter.Status {
		return false
	}
	if filter.GCSURI != "" && job.GCSURI != filter.GCSURI {
		return false
	}
	return true
}

// paginate applies offset then limit; a limit of 0 means no limit.
func paginate(list []*jobs.AnalyzeStatementJob, offset, limit int) []*jobs.AnalyzeStatementJob {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

var _ jobs.JobStore = (*Store)(nil)
