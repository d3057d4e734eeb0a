package jobs

import (
	"context"
	"sort"
	"sync"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
)

// MemoryStore is an in-process Store used for tests and ephemeral runs.
type MemoryStore struct {
	mu         sync.RWMutex
	jobs       map[string]core.PromptOptimizationJob
	iterations map[string][]core.OptimizationIteration
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]core.PromptOptimizationJob),
		iterations: make(map[string][]core.OptimizationIteration),
	}
}

func (s *MemoryStore) SaveJob(_ context.Context, job *core.PromptOptimizationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *job
	stored.Iterations = nil // history lives in the iterations table
	s.jobs[job.ID] = stored
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*core.PromptOptimizationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.jobs[id]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.JobNotFound, "job not found"),
			errors.Fields{"job_id": id},
		)
	}

	job := stored
	job.Iterations = canonicalOrder(s.iterations[id])
	return &job, nil
}

func (s *MemoryStore) ListJobs(_ context.Context) ([]*core.PromptOptimizationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*core.PromptOptimizationJob, 0, len(s.jobs))
	for id := range s.jobs {
		job := s.jobs[id]
		jobs = append(jobs, &job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryStore) AppendIteration(_ context.Context, jobID string, iter core.OptimizationIteration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return errors.WithFields(
			errors.New(errors.JobNotFound, "job not found"),
			errors.Fields{"job_id": jobID},
		)
	}

	s.iterations[jobID] = append(s.iterations[jobID], iter)
	return nil
}

func (s *MemoryStore) Iterations(_ context.Context, jobID string) ([]core.OptimizationIteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.jobs[jobID]; !ok {
		return nil, errors.WithFields(
			errors.New(errors.JobNotFound, "job not found"),
			errors.Fields{"job_id": jobID},
		)
	}

	return canonicalOrder(s.iterations[jobID]), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// canonicalOrder returns a copy of the history sorted by the contract's
// (round, iteration) order, regardless of arrival order.
func canonicalOrder(iterations []core.OptimizationIteration) []core.OptimizationIteration {
	sorted := append([]core.OptimizationIteration(nil), iterations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RoundNumber != sorted[j].RoundNumber {
			return sorted[i].RoundNumber < sorted[j].RoundNumber
		}
		return sorted[i].IterationNumber < sorted[j].IterationNumber
	})
	return sorted
}
