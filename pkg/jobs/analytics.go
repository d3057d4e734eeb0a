package jobs

import (
	"context"
	"time"

	"github.com/richpaul1/promptopt/pkg/core"
)

// Analytics summarizes a job's full history. Every field is derived from
// persisted iterations on demand; nothing here is stored.
type Analytics struct {
	JobID            string                  `json:"job_id"`
	Status           core.JobStatus          `json:"status"`
	TotalIterations  int                     `json:"total_iterations"`
	TotalRounds      int                     `json:"total_rounds"`
	BestScore        float64                 `json:"best_score"`
	AverageScore     float64                 `json:"average_score"`
	ScoreProgression []float64               `json:"score_progression"`
	ImprovementRate  float64                 `json:"improvement_rate"`
	Convergence      core.ConvergenceMetrics `json:"convergence"`
	Duration         time.Duration           `json:"duration"` // excludes paused time
}

// Analytics computes run analytics for a job at any point in its lifecycle.
// An empty history yields zero values, not an error.
func (s *Service) Analytics(ctx context.Context, jobID string) (*Analytics, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	scores := job.ScoreHistory()

	analytics := &Analytics{
		JobID:            jobID,
		Status:           job.Status,
		TotalIterations:  len(job.Iterations),
		ScoreProgression: scores,
		ImprovementRate:  s.stopping.ImprovementRate(scores, 0),
		Convergence:      s.stopping.DetectConvergence(scores, 0.01),
		Duration:         time.Since(job.CreatedAt) - job.PausedDuration,
	}

	if job.FinalResults != nil {
		analytics.Duration = job.FinalResults.CompletedAt.Sub(job.CreatedAt) - job.PausedDuration
	}

	var sum float64
	for _, iter := range job.Iterations {
		sum += iter.ActualScore
		if iter.ActualScore > analytics.BestScore {
			analytics.BestScore = iter.ActualScore
		}
		if iter.RoundNumber > analytics.TotalRounds {
			analytics.TotalRounds = iter.RoundNumber
		}
	}
	if len(scores) > 0 {
		analytics.AverageScore = sum / float64(len(scores))
	}
	return analytics, nil
}
