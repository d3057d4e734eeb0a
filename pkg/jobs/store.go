package jobs

import (
	"context"

	"github.com/richpaul1/promptopt/pkg/core"
)

// Store persists job aggregates and their append-only iteration history.
// Iteration records are children of a job and are never updated or deleted.
type Store interface {
	// SaveJob inserts or updates a job record. The job's Iterations slice
	// is not written here; iterations travel through AppendIteration only.
	SaveJob(ctx context.Context, job *core.PromptOptimizationJob) error

	// GetJob loads a job with its full iteration history in canonical
	// (round, iteration) order. Unknown IDs fail with a JobNotFound code.
	GetJob(ctx context.Context, id string) (*core.PromptOptimizationJob, error)

	// ListJobs returns all stored jobs without their iteration histories.
	ListJobs(ctx context.Context) ([]*core.PromptOptimizationJob, error)

	// AppendIteration adds one iteration record to a job's history.
	AppendIteration(ctx context.Context, jobID string, iter core.OptimizationIteration) error

	// Iterations returns a job's history in canonical order.
	Iterations(ctx context.Context, jobID string) ([]core.OptimizationIteration, error)

	// Close releases store resources.
	Close() error
}
