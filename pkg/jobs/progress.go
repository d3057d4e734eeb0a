package jobs

import (
	"context"
	"time"

	"github.com/richpaul1/promptopt/pkg/core"
)

// snapshotBuffer bounds each subscriber channel. Slow consumers miss
// intermediate snapshots rather than stall the run.
const snapshotBuffer = 16

// ProgressSnapshot is a point-in-time, read-only view of a running job.
// Elapsed excludes time spent paused.
type ProgressSnapshot struct {
	JobID           string                  `json:"job_id"`
	Status          core.JobStatus          `json:"status"`
	CurrentRound    int                     `json:"current_round"`
	TotalIterations int                     `json:"total_iterations"`
	BestScore       float64                 `json:"best_score"`
	LatestScore     float64                 `json:"latest_score"`
	OverallProgress float64                 `json:"overall_progress"` // [0, 1]
	Convergence     core.ConvergenceMetrics `json:"convergence"`
	Elapsed         time.Duration           `json:"elapsed"`
	Timestamp       time.Time               `json:"timestamp"`
}

// ProgressSnapshot assembles the current snapshot for a job from persisted
// state. Safe to call from any goroutine at any point in the lifecycle.
func (s *Service) ProgressSnapshot(ctx context.Context, jobID string) (*ProgressSnapshot, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	control, err := s.control(ctx, jobID)
	if err != nil {
		return nil, err
	}

	control.mu.Lock()
	status := control.status
	pausedTotal := control.pausedTotal
	if status == core.JobPaused {
		pausedTotal += time.Since(control.pausedAt)
	}
	control.mu.Unlock()

	scores := job.ScoreHistory()

	snapshot := &ProgressSnapshot{
		JobID:           jobID,
		Status:          status,
		CurrentRound:    job.Progress.CurrentRound,
		TotalIterations: len(job.Iterations),
		BestScore:       job.Progress.BestScore,
		Convergence:     s.stopping.DetectConvergence(scores, 0.01),
		Elapsed:         time.Since(job.CreatedAt) - pausedTotal,
		Timestamp:       time.Now(),
	}
	if len(scores) > 0 {
		snapshot.LatestScore = scores[len(scores)-1]
	}
	if job.Config.MaxIterations > 0 {
		snapshot.OverallProgress = clampUnit(float64(len(job.Iterations)) / float64(job.Config.MaxIterations))
	}
	return snapshot, nil
}

// SubscribeProgress registers a listener for progress snapshots. A snapshot
// is pushed after every appended iteration and every status change; a full
// buffer drops the oldest update for that subscriber. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (s *Service) SubscribeProgress(ctx context.Context, jobID string) (<-chan ProgressSnapshot, func(), error) {
	control, err := s.control(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan ProgressSnapshot, snapshotBuffer)

	control.mu.Lock()
	id := control.nextSubID
	control.nextSubID++
	control.subs[id] = ch
	control.mu.Unlock()

	unsubscribe := func() {
		control.mu.Lock()
		defer control.mu.Unlock()
		if sub, ok := control.subs[id]; ok {
			delete(control.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe, nil
}

// publishSnapshot fans the current snapshot out to every subscriber without
// blocking the publisher.
func (s *Service) publishSnapshot(ctx context.Context, jobID string) {
	snapshot, err := s.ProgressSnapshot(ctx, jobID)
	if err != nil {
		return
	}

	control, err := s.control(ctx, jobID)
	if err != nil {
		return
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	for _, sub := range control.subs {
		select {
		case sub <- *snapshot:
		default:
			// Drop the oldest snapshot to make room for the newest.
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- *snapshot:
			default:
			}
		}
	}
}

// closeSubscribers tears down all subscriptions after a terminal transition.
func (s *Service) closeSubscribers(control *jobControl) {
	control.mu.Lock()
	defer control.mu.Unlock()
	for id, sub := range control.subs {
		delete(control.subs, id)
		close(sub)
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
