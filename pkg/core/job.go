package core

import (
	"time"
)

// JobStatus enumerates the job lifecycle states.
type JobStatus string

const (
	JobCreated   JobStatus = "created"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// jobTransitions is the strict lifecycle state machine:
// created -> running -> (paused <-> running)* -> completed|failed|cancelled.
var jobTransitions = map[JobStatus][]JobStatus{
	JobCreated: {JobRunning, JobCancelled, JobFailed},
	JobRunning: {JobPaused, JobCompleted, JobFailed, JobCancelled},
	JobPaused:  {JobRunning, JobCancelled, JobFailed},
}

// CanTransition reports whether moving from one status to another is a legal
// lifecycle transition. Terminal states allow no transitions.
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is a terminal lifecycle state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// TrainingConfig holds the hyperparameters of one agent's bounded search.
type TrainingConfig struct {
	MaxEpisodeLength     int     `json:"max_episode_length" yaml:"max_episode_length"`
	EpisodesPerUpdate    int     `json:"episodes_per_update" yaml:"episodes_per_update"`
	ConvergenceThreshold float64 `json:"convergence_threshold" yaml:"convergence_threshold"`
	ExplorationBonus     float64 `json:"exploration_bonus" yaml:"exploration_bonus"`
}

// DefaultTrainingConfig returns the agent search defaults.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		MaxEpisodeLength:     4,
		EpisodesPerUpdate:    2,
		ConvergenceThreshold: 9.0,
		ExplorationBonus:     0.1,
	}
}

// JobConfig carries per-job optimization settings.
type JobConfig struct {
	MaxIterations     int                  `json:"max_iterations" yaml:"max_iterations"`
	TargetScore       float64              `json:"target_score" yaml:"target_score"`
	ParallelExecution bool                 `json:"parallel_execution" yaml:"parallel_execution"`
	FusionStrategy    string               `json:"fusion_strategy" yaml:"fusion_strategy"`
	Criteria          []EvaluationCriteria `json:"criteria,omitempty" yaml:"criteria,omitempty"`
	Training          TrainingConfig       `json:"training" yaml:"training"`
}

// DefaultJobConfig returns sane defaults for a new job.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		MaxIterations:     20,
		TargetScore:       8.5,
		ParallelExecution: true,
		FusionStrategy:    "best_of_breed",
		Criteria:          DefaultCriteria(),
		Training:          DefaultTrainingConfig(),
	}
}

// DefaultCriteria is the standard multi-criteria rubric.
func DefaultCriteria() []EvaluationCriteria {
	return []EvaluationCriteria{
		{ID: "clarity", Name: "Clarity", Weight: 0.35, Description: "Unambiguous, readable instructions"},
		{ID: "completeness", Name: "Completeness", Weight: 0.35, Description: "Covers all aspects of the task"},
		{ID: "helpfulness", Name: "Helpfulness", Weight: 0.30, Description: "Produces actionable, useful answers"},
	}
}

// Progress is a derived view of how far a job has come.
type Progress struct {
	BestScore       float64   `json:"best_score"`
	CurrentRound    int       `json:"current_round"`
	TotalIterations int       `json:"total_iterations"`
	LastUpdated     time.Time `json:"last_updated"`
}

// FinalResults is set exactly once, on the terminal transition to completed.
type FinalResults struct {
	BestPrompt      string                `json:"best_prompt"`
	BestScore       float64               `json:"best_score"`
	TotalIterations int                   `json:"total_iterations"`
	StoppingReason  string                `json:"stopping_reason"`
	Fusion          *EnsembleFusionResult `json:"fusion,omitempty"`
	CompletedAt     time.Time             `json:"completed_at"`
}

// PromptOptimizationJob is the aggregate root of one optimization run.
// Status and Iterations are the only fields mutated after creation, and only
// by the owning job service.
type PromptOptimizationJob struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	StartingQuestion string                  `json:"starting_question"`
	InitialPrompt    string                  `json:"initial_prompt"`
	Status           JobStatus               `json:"status"`
	Config           JobConfig               `json:"config"`
	TrainingExamples []TrainingExample       `json:"training_examples,omitempty"`
	Iterations       []OptimizationIteration `json:"iterations,omitempty"`
	Progress         Progress                `json:"progress"`
	FinalResults     *FinalResults           `json:"final_results,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	PausedDuration   time.Duration           `json:"paused_duration"`
}

// AppendIteration adds one iteration to the history and refreshes the derived
// progress fields. History is append-only; entries are never mutated.
func (j *PromptOptimizationJob) AppendIteration(iter OptimizationIteration) {
	j.Iterations = append(j.Iterations, iter)
	if iter.ActualScore > j.Progress.BestScore {
		j.Progress.BestScore = iter.ActualScore
	}
	if iter.RoundNumber > j.Progress.CurrentRound {
		j.Progress.CurrentRound = iter.RoundNumber
	}
	j.Progress.TotalIterations = len(j.Iterations)
	j.Progress.LastUpdated = iter.Timestamp
}

// BestIteration returns the highest-scoring iteration, or nil when the
// history is empty.
func (j *PromptOptimizationJob) BestIteration() *OptimizationIteration {
	var best *OptimizationIteration
	for i := range j.Iterations {
		if best == nil || j.Iterations[i].ActualScore > best.ActualScore {
			best = &j.Iterations[i]
		}
	}
	return best
}

// ScoreHistory returns the iteration scores in canonical history order.
func (j *PromptOptimizationJob) ScoreHistory() []float64 {
	scores := make([]float64, len(j.Iterations))
	for i, iter := range j.Iterations {
		scores[i] = iter.ActualScore
	}
	return scores
}
