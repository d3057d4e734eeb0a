package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richpaul1/promptopt/pkg/agents"
	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/ensemble"
	"github.com/richpaul1/promptopt/pkg/errors"
	"github.com/richpaul1/promptopt/pkg/logging"
	"github.com/richpaul1/promptopt/pkg/stopping"
)

// pauseCheckInterval is how often a running round loop re-checks a paused
// job's status.
const pauseCheckInterval = 50 * time.Millisecond

// Service owns the job aggregate: it is the sole writer of a job's status
// and iteration history. Lifecycle operations on the same job are
// serialized through a per-job control.
type Service struct {
	store       Store
	evaluator   core.Evaluator
	coordinator *ensemble.Coordinator
	stopping    *stopping.Service
	ensembleCfg ensemble.Config
	options     ensemble.Options
	logger      *logging.Logger

	mu       sync.Mutex
	controls map[string]*jobControl
}

// jobControl serializes lifecycle mutations and iteration appends for one
// job, and tracks paused-time accounting plus progress subscribers.
type jobControl struct {
	mu            sync.Mutex
	status        core.JobStatus
	pausedAt      time.Time
	pausedTotal   time.Duration
	cancel        context.CancelFunc
	roundCounters map[int]int
	subs          map[int]chan ProgressSnapshot
	nextSubID     int
}

// CreateJobRequest is the input for a new job.
type CreateJobRequest struct {
	Name             string
	StartingQuestion string
	InitialPrompt    string
	Config           *core.JobConfig
	TrainingExamples []core.TrainingExample
}

// NewService wires the job service to its collaborators. The registry seeds
// the ensemble coordinator; ensembleCfg and options govern every round.
func NewService(store Store, evaluator core.Evaluator, registry *agents.Registry, ensembleCfg ensemble.Config, options ensemble.Options) *Service {
	return &Service{
		store:       store,
		evaluator:   evaluator,
		coordinator: ensemble.NewCoordinator(registry, evaluator),
		stopping:    stopping.NewService(),
		ensembleCfg: ensembleCfg,
		options:     options,
		logger:      logging.GetLogger(),
		controls:    make(map[string]*jobControl),
	}
}

// CreateJob validates the request and persists a new job in the created
// state. Validation failures leave no state behind.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*core.PromptOptimizationJob, error) {
	if req.Name == "" {
		return nil, errors.New(errors.ValidationFailed, "job name is required")
	}
	if req.InitialPrompt == "" {
		return nil, errors.New(errors.ValidationFailed, "initial prompt is required")
	}
	if req.StartingQuestion == "" {
		return nil, errors.New(errors.ValidationFailed, "starting question is required")
	}

	cfg := core.DefaultJobConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	job := &core.PromptOptimizationJob{
		ID:               uuid.New().String(),
		Name:             req.Name,
		StartingQuestion: req.StartingQuestion,
		InitialPrompt:    req.InitialPrompt,
		Status:           core.JobCreated,
		Config:           cfg,
		TrainingExamples: req.TrainingExamples,
		CreatedAt:        time.Now(),
	}

	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.controls[job.ID] = &jobControl{
		status:        core.JobCreated,
		roundCounters: make(map[int]int),
		subs:          make(map[int]chan ProgressSnapshot),
	}
	s.mu.Unlock()

	s.logger.Info(logging.WithJobID(ctx, job.ID), "job created: %s", job.Name)
	return job, nil
}

// GetJob loads a job with its full history.
func (s *Service) GetJob(ctx context.Context, jobID string) (*core.PromptOptimizationJob, error) {
	return s.store.GetJob(ctx, jobID)
}

// AddTrainingExample appends an example to an existing job. The example is
// visible to subsequent iterations only, never retroactively.
func (s *Service) AddTrainingExample(ctx context.Context, jobID string, example core.TrainingExample) error {
	control, err := s.control(ctx, jobID)
	if err != nil {
		return err
	}

	control.mu.Lock()
	defer control.mu.Unlock()

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if example.ID == "" {
		example.ID = uuid.New().String()
	}
	job.TrainingExamples = append(job.TrainingExamples, example)
	return s.store.SaveJob(ctx, job)
}

// StartJob transitions created -> running.
func (s *Service) StartJob(ctx context.Context, jobID string) (core.JobStatus, error) {
	return s.transition(ctx, jobID, core.JobRunning)
}

// PauseJob transitions running -> paused and starts the paused-time clock.
func (s *Service) PauseJob(ctx context.Context, jobID string) (core.JobStatus, error) {
	return s.transition(ctx, jobID, core.JobPaused)
}

// ResumeJob transitions paused -> running and accrues the paused duration.
func (s *Service) ResumeJob(ctx context.Context, jobID string) (core.JobStatus, error) {
	return s.transition(ctx, jobID, core.JobRunning)
}

// CancelJob moves the job to its terminal cancelled state and signals any
// in-flight round loop. Agents observe the cancellation at their next
// iteration boundary.
func (s *Service) CancelJob(ctx context.Context, jobID string) (core.JobStatus, error) {
	status, err := s.transition(ctx, jobID, core.JobCancelled)
	if err != nil {
		return status, err
	}

	control, _ := s.control(ctx, jobID)
	if control != nil {
		control.mu.Lock()
		if control.cancel != nil {
			control.cancel()
		}
		control.mu.Unlock()
	}
	return status, nil
}

// Status returns the job's current lifecycle status.
func (s *Service) Status(ctx context.Context, jobID string) (core.JobStatus, error) {
	control, err := s.control(ctx, jobID)
	if err != nil {
		return "", err
	}
	control.mu.Lock()
	defer control.mu.Unlock()
	return control.status, nil
}

// EvaluatePrompt scores an arbitrary prompt independent of any job.
func (s *Service) EvaluatePrompt(ctx context.Context, prompt, question string, examples []core.TrainingExample) (*core.Evaluation, error) {
	return s.evaluator.Evaluate(ctx, prompt, question, examples)
}

// control returns the per-job control, rebuilding it from the store when
// the job exists but the process has no control yet.
func (s *Service) control(ctx context.Context, jobID string) (*jobControl, error) {
	s.mu.Lock()
	if control, ok := s.controls[jobID]; ok {
		s.mu.Unlock()
		return control, nil
	}
	s.mu.Unlock()

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if control, ok := s.controls[jobID]; ok {
		return control, nil
	}
	control := &jobControl{
		status:        job.Status,
		pausedTotal:   job.PausedDuration,
		roundCounters: make(map[int]int),
		subs:          make(map[int]chan ProgressSnapshot),
	}
	s.controls[jobID] = control
	return control, nil
}

// transition applies one lifecycle transition under the per-job lock,
// persists the new status, and notifies subscribers.
func (s *Service) transition(ctx context.Context, jobID string, to core.JobStatus) (core.JobStatus, error) {
	control, err := s.control(ctx, jobID)
	if err != nil {
		return "", err
	}

	// The job record is read-modified-written under the per-job lock so a
	// concurrent append or example add can never save a stale snapshot.
	control.mu.Lock()
	from := control.status
	if !from.CanTransition(to) {
		control.mu.Unlock()
		return from, errors.WithFields(
			errors.New(errors.InvalidJobState, "illegal job transition"),
			errors.Fields{"job_id": jobID, "from": string(from), "to": string(to)},
		)
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		control.mu.Unlock()
		return from, err
	}

	now := time.Now()
	pausedTotal := control.pausedTotal
	if from == core.JobPaused {
		pausedTotal += now.Sub(control.pausedAt)
	}

	job.Status = to
	job.PausedDuration = pausedTotal
	if err := s.store.SaveJob(ctx, job); err != nil {
		control.mu.Unlock()
		return from, err
	}

	if to == core.JobPaused {
		control.pausedAt = now
	}
	control.pausedTotal = pausedTotal
	control.status = to
	control.mu.Unlock()

	s.logger.Info(logging.WithJobID(ctx, jobID), "job transition: %s -> %s", from, to)
	s.publishSnapshot(ctx, jobID)

	if to.Terminal() {
		s.closeSubscribers(control)
	}
	return to, nil
}

// appendIteration is the single funnel through which iteration records
// reach the store. The per-job lock is held across numbering, the append,
// and the progress refresh, so concurrent appends, example adds, and
// transitions never save a stale job snapshot. Nothing is written once the
// job has left the running state. When renumber is set, the iteration
// number is reassigned from a per-round counter so the persisted history
// stays strictly increasing even when parallel agents interleave.
func (s *Service) appendIteration(ctx context.Context, jobID string, iter core.OptimizationIteration, renumber bool) bool {
	control, err := s.control(ctx, jobID)
	if err != nil {
		return false
	}

	control.mu.Lock()
	if control.status != core.JobRunning {
		control.mu.Unlock()
		return false
	}
	if renumber {
		control.roundCounters[iter.RoundNumber]++
		iter.IterationNumber = control.roundCounters[iter.RoundNumber]
	}

	if iter.ID == "" {
		iter.ID = uuid.New().String()
	}
	iter.JobID = jobID

	if err := s.store.AppendIteration(ctx, jobID, iter); err != nil {
		control.mu.Unlock()
		s.logger.Error(logging.WithJobID(ctx, jobID), "failed to persist iteration: %v", err)
		return false
	}

	// Refresh the derived progress fields on the job record.
	if job, err := s.store.GetJob(ctx, jobID); err == nil {
		job.Progress.BestScore = 0
		job.Progress.CurrentRound = 0
		for _, it := range job.Iterations {
			if it.ActualScore > job.Progress.BestScore {
				job.Progress.BestScore = it.ActualScore
			}
			if it.RoundNumber > job.Progress.CurrentRound {
				job.Progress.CurrentRound = it.RoundNumber
			}
		}
		job.Progress.TotalIterations = len(job.Iterations)
		job.Progress.LastUpdated = iter.Timestamp
		if err := s.store.SaveJob(ctx, job); err != nil {
			s.logger.Error(logging.WithJobID(ctx, jobID), "failed to save progress: %v", err)
		}
	}
	control.mu.Unlock()

	s.publishSnapshot(ctx, jobID)
	return true
}

// RunOptimizationIteration executes one default-loop iteration: apply the
// next vocabulary action to the job's current best prompt, score it, and
// append exactly one iteration record. Used in single-agent mode and by
// external drivers stepping a job manually.
func (s *Service) RunOptimizationIteration(ctx context.Context, jobID string, round, iterationNumber int) (*core.OptimizationIteration, error) {
	if round < 1 || iterationNumber < 1 {
		return nil, errors.WithFields(
			errors.New(errors.ValidationFailed, "round and iteration numbers start at 1"),
			errors.Fields{"round": round, "iteration": iterationNumber},
		)
	}

	control, err := s.control(ctx, jobID)
	if err != nil {
		return nil, err
	}

	control.mu.Lock()
	status := control.status
	control.mu.Unlock()
	if status != core.JobRunning {
		return nil, errors.WithFields(
			errors.New(errors.InvalidJobState, "job is not running"),
			errors.Fields{"job_id": jobID, "status": string(status)},
		)
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	basePrompt := job.InitialPrompt
	if best := job.BestIteration(); best != nil {
		basePrompt = best.InputPrompt
	}

	candidates := core.DefaultActionCandidates()
	action := candidates[(iterationNumber-1)%len(candidates)]
	prompt := core.ApplyAction(basePrompt, action)

	start := time.Now()
	eval, err := s.evaluator.Evaluate(ctx, prompt, job.StartingQuestion, job.TrainingExamples)
	if err != nil {
		// Recoverable: the iteration is skipped, the job is untouched.
		return nil, errors.Wrap(err, errors.EvaluationFailed, "iteration evaluation failed")
	}

	iter := core.OptimizationIteration{
		ID:              uuid.New().String(),
		JobID:           jobID,
		RoundNumber:     round,
		IterationNumber: iterationNumber,
		InputPrompt:     prompt,
		ActualScore:     eval.OverallScore,
		CriteriaScores:  eval.CriteriaScores,
		AppliedActions:  []core.RLAction{action},
		Timestamp:       time.Now(),
		ExecutionTime:   time.Since(start),
		Confidence:      eval.OverallScore / 10,
	}

	if !s.appendIteration(ctx, jobID, iter, false) {
		return nil, errors.New(errors.InvalidJobState, "iteration rejected: job no longer running")
	}
	return &iter, nil
}

// RunToCompletion drives the job's ensemble rounds until a stopping rule
// fires, the job is cancelled, or the context ends. Pause is honored
// cooperatively between rounds.
func (s *Service) RunToCompletion(ctx context.Context, jobID string) (*core.PromptOptimizationJob, error) {
	ctx = logging.WithJobID(ctx, jobID)

	control, err := s.control(ctx, jobID)
	if err != nil {
		return nil, err
	}

	control.mu.Lock()
	if control.status == core.JobCreated {
		control.mu.Unlock()
		if _, err := s.StartJob(ctx, jobID); err != nil {
			return nil, err
		}
		control.mu.Lock()
	}
	if control.status != core.JobRunning && control.status != core.JobPaused {
		status := control.status
		control.mu.Unlock()
		return nil, errors.WithFields(
			errors.New(errors.InvalidJobState, "job cannot run"),
			errors.Fields{"job_id": jobID, "status": string(status)},
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	control.cancel = cancel
	control.mu.Unlock()
	defer cancel()

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	stopCfg := stopping.DefaultConfig(job.Config.MaxIterations, job.Config.TargetScore)
	ensembleCfg := s.ensembleCfg
	if job.Config.FusionStrategy != "" {
		ensembleCfg.FusionStrategy = job.Config.FusionStrategy
	}
	ensembleCfg.ParallelExecution = job.Config.ParallelExecution

	bestPrompt := job.InitialPrompt
	bestScore := 0.0
	var lastFusion *core.EnsembleFusionResult
	var stopReason string

	for round := 1; ; round++ {
		if !s.waitWhilePaused(runCtx, control) {
			return s.finishCancelled(ctx, jobID)
		}

		session, err := s.coordinator.CreateSession(ensembleCfg, s.options)
		if err != nil {
			return nil, s.failJob(ctx, jobID, err)
		}

		input := ensemble.RunInput{
			JobID:         jobID,
			RoundNumber:   round,
			InitialPrompt: bestPrompt,
			Query:         job.StartingQuestion,
			Examples:      job.TrainingExamples,
			Training:      job.Config.Training,
			RecordIteration: func(iter core.OptimizationIteration) {
				s.appendIteration(runCtx, jobID, iter, true)
			},
		}

		results, err := s.coordinator.Execute(runCtx, session, input)
		if err != nil {
			if errors.HasCode(err, errors.Canceled) {
				return s.finishCancelled(ctx, jobID)
			}
			return nil, s.failJob(ctx, jobID, err)
		}
		if runCtx.Err() != nil {
			return s.finishCancelled(ctx, jobID)
		}

		// Fusion failures are isolated: the round's recorded history stands.
		fusion, err := s.coordinator.FuseResults(results, ensembleCfg)
		if err != nil {
			s.logger.Warn(ctx, "fusion failed in round %d: %v", round, err)
		} else {
			lastFusion = fusion
			if fusion.FusedResult.Score > bestScore {
				bestScore = fusion.FusedResult.Score
				bestPrompt = fusion.FusedResult.Prompt
			}
		}

		iterations, err := s.store.Iterations(ctx, jobID)
		if err != nil {
			return nil, s.failJob(ctx, jobID, err)
		}

		decision := s.stopping.CheckStoppingCriteria(iterations, stopCfg)
		s.stopping.LogDecision(ctx, decision, len(iterations))
		if decision.ShouldStop {
			stopReason = decision.Reason
			break
		}

		// Refresh examples added mid-run; visible to subsequent rounds only.
		if refreshed, err := s.store.GetJob(ctx, jobID); err == nil {
			job = refreshed
		}
	}

	return s.completeJob(ctx, jobID, bestPrompt, bestScore, stopReason, lastFusion)
}

// waitWhilePaused blocks until the job is running again. Returns false when
// the run should abort because of cancellation.
func (s *Service) waitWhilePaused(ctx context.Context, control *jobControl) bool {
	for {
		if ctx.Err() != nil {
			return false
		}

		control.mu.Lock()
		status := control.status
		control.mu.Unlock()

		switch status {
		case core.JobRunning:
			return true
		case core.JobPaused:
			time.Sleep(pauseCheckInterval)
		default:
			return false
		}
	}
}

func (s *Service) finishCancelled(ctx context.Context, jobID string) (*core.PromptOptimizationJob, error) {
	// CancelJob already moved the status; just report the final record.
	return s.store.GetJob(ctx, jobID)
}

func (s *Service) failJob(ctx context.Context, jobID string, cause error) error {
	if _, err := s.transition(ctx, jobID, core.JobFailed); err != nil {
		s.logger.Error(ctx, "failed to mark job failed: %v", err)
	}
	return cause
}

func (s *Service) completeJob(ctx context.Context, jobID, bestPrompt string, bestScore float64, reason string, fusion *core.EnsembleFusionResult) (*core.PromptOptimizationJob, error) {
	control, err := s.control(ctx, jobID)
	if err != nil {
		return nil, err
	}

	control.mu.Lock()
	if !control.status.CanTransition(core.JobCompleted) {
		status := control.status
		control.mu.Unlock()
		return nil, errors.WithFields(
			errors.New(errors.InvalidJobState, "cannot complete job"),
			errors.Fields{"job_id": jobID, "status": string(status)},
		)
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		control.mu.Unlock()
		return nil, err
	}

	job.Status = core.JobCompleted
	job.FinalResults = &core.FinalResults{
		BestPrompt:      bestPrompt,
		BestScore:       bestScore,
		TotalIterations: len(job.Iterations),
		StoppingReason:  reason,
		Fusion:          fusion,
		CompletedAt:     time.Now(),
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		control.mu.Unlock()
		return nil, err
	}
	control.status = core.JobCompleted
	control.mu.Unlock()

	s.logger.Info(ctx, "job completed: best_score=%.4f iterations=%d reason=%q",
		bestScore, len(job.Iterations), reason)

	s.publishSnapshot(ctx, jobID)
	s.closeSubscribers(control)
	return job, nil
}
