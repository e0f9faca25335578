package jobserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tweetmap/tweetmap-worker/api/types"
)

// JobStore owns every job and enforces the lifecycle
// queued -> fetching -> done|error. Terminal jobs never change again.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*types.Job
	now  func() time.Time
}

func NewJobStore(now func() time.Time) *JobStore {
	if now == nil {
		now = time.Now
	}
	return &JobStore{jobs: make(map[string]*types.Job), now: now}
}

// Create inserts a queued job with a fresh id.
func (s *JobStore) Create(target string) types.Job {
	t := s.now().UTC()
	j := &types.Job{
		UUID:      uuid.New().String(),
		Target:    target,
		Status:    types.JobStatusQueued,
		CreatedAt: t,
		UpdatedAt: t,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.UUID] = j
	return *j
}

// Start moves a queued job to fetching.
func (s *JobStore) Start(id string) error {
	return s.transition(id, func(j *types.Job) error {
		if j.Status != types.JobStatusQueued {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, types.JobStatusFetching)
		}
		j.Status = types.JobStatusFetching
		return nil
	})
}

// Complete moves a fetching job to done with its result.
func (s *JobStore) Complete(id string, result *types.ScrapeResult) error {
	return s.transition(id, func(j *types.Job) error {
		if j.Status != types.JobStatusFetching {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, types.JobStatusDone)
		}
		j.Status = types.JobStatusDone
		j.Result = result
		return nil
	})
}

// Fail moves a fetching job to error.
func (s *JobStore) Fail(id string, jobErr *types.JobError) error {
	return s.transition(id, func(j *types.Job) error {
		if j.Status != types.JobStatusFetching {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, types.JobStatusError)
		}
		j.Status = types.JobStatusError
		j.Error = jobErr
		return nil
	})
}

func (s *JobStore) transition(id string, apply func(*types.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if err := apply(j); err != nil {
		return err
	}
	j.UpdatedAt = s.now().UTC()
	return nil
}

// Get returns a copy of the job.
func (s *JobStore) Get(id string) (types.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return types.Job{}, false
	}
	return *j, true
}

// Remove drops a job regardless of its state.
func (s *JobStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Sweep removes every job created more than ttl ago, whatever its status,
// and returns how many were removed.
func (s *JobStore) Sweep(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// CountByStatus tallies jobs per status.
func (s *JobStore) CountByStatus() map[types.JobStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[types.JobStatus]int{
		types.JobStatusQueued:   0,
		types.JobStatusFetching: 0,
		types.JobStatusDone:     0,
		types.JobStatusError:    0,
	}
	for _, j := range s.jobs {
		out[j.Status]++
	}
	return out
}

// Len is the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
