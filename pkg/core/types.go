package core

import (
	"time"
)

// TrainingExample is an immutable reference case a prompt is scored against.
type TrainingExample struct {
	ID               string                 `json:"id"`
	Query            string                 `json:"query"`
	ExpectedResponse string                 `json:"expected_response"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// EvaluationCriteria describes one weighted axis of prompt quality.
// Weights across a criteria set need not sum to 1; the scorer normalizes.
type EvaluationCriteria struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"` // in (0, 1]
	Description string  `json:"description,omitempty"`
}

// Evaluation is the scoring oracle's verdict for one (prompt, response)
// pairing. Immutable once created.
type Evaluation struct {
	OverallScore   float64            `json:"overall_score"` // [0, 10]
	CriteriaScores map[string]float64 `json:"criteria_scores"`
	Reason         string             `json:"reason,omitempty"`
	EvaluatorType  string             `json:"evaluator_type"`
	Timestamp      time.Time          `json:"timestamp"`
}

// CriterionScore returns the score recorded for a criterion, with a neutral
// default when the criterion was not scored.
func (e *Evaluation) CriterionScore(criterionID string) float64 {
	if e == nil {
		return 5.0
	}
	if score, ok := e.CriteriaScores[criterionID]; ok {
		return score
	}
	return 5.0
}

// OptimizationIteration records one agent-step. Append-only; ordering by
// (RoundNumber, IterationNumber) is the canonical history order.
type OptimizationIteration struct {
	ID                string             `json:"id"`
	JobID             string             `json:"job_id"`
	RoundNumber       int                `json:"round_number"`
	IterationNumber   int                `json:"iteration_number"`
	InputPrompt       string             `json:"input_prompt"`
	GeneratedResponse string             `json:"generated_response,omitempty"`
	ActualScore       float64            `json:"actual_score"`
	CriteriaScores    map[string]float64 `json:"criteria_scores,omitempty"`
	AppliedActions    []RLAction         `json:"applied_actions,omitempty"`
	AgentID           string             `json:"agent_id,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
	ExecutionTime     time.Duration      `json:"execution_time"`
	Confidence        float64            `json:"confidence"`
	Novelty           float64            `json:"novelty"`
}

// SpecializedOptimizationResult is the outcome of one specialized agent run.
type SpecializedOptimizationResult struct {
	AgentID            string              `json:"agent_id"`
	AgentType          string              `json:"agent_type"`
	FocusCriteria      []string            `json:"focus_criteria"`
	BestPrompt         string              `json:"best_prompt"`
	BestScore          float64             `json:"best_score"`
	CriteriaScores     map[string]float64  `json:"criteria_scores,omitempty"`
	Confidence         float64             `json:"confidence"` // [0, 1]
	Iterations         int                 `json:"iterations"`
	ConvergenceReached bool                `json:"convergence_reached"`
	ActionCounts       map[ActionType]int  `json:"action_counts,omitempty"`
	Insights           SpecializedInsights `json:"insights"`
}

// SpecializedInsights is the rule-based qualitative summary an agent emits
// alongside its numeric result.
type SpecializedInsights struct {
	StrengthAreas    []string `json:"strength_areas,omitempty"`
	ImprovementAreas []string `json:"improvement_areas,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// FusedCandidate is the consensus candidate an ensemble settles on.
type FusedCandidate struct {
	Prompt    string  `json:"prompt"`
	Score     float64 `json:"score"`
	Consensus float64 `json:"consensus"` // [0, 1]
}

// DiversityMetrics quantifies how differently the ensemble's agents searched.
type DiversityMetrics struct {
	PromptVariety     float64 `json:"prompt_variety"`     // [0, 1]
	ApproachDiversity float64 `json:"approach_diversity"` // [0, 1]
}

// EnsembleFusionResult combines the fused candidate with the per-agent
// results it was derived from.
type EnsembleFusionResult struct {
	FusedResult      FusedCandidate                  `json:"fused_result"`
	AgentResults     []SpecializedOptimizationResult `json:"agent_results"`
	DiversityMetrics DiversityMetrics                `json:"diversity_metrics"`
}

// TrendDirection classifies the recent slope of a score trajectory.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// ConvergenceMetrics is derived from a score history on demand and never
// persisted independently.
type ConvergenceMetrics struct {
	ScoreVariance   float64        `json:"score_variance"`
	ImprovementRate float64        `json:"improvement_rate"`
	PlateauLength   int            `json:"plateau_length"`
	TrendDirection  TrendDirection `json:"trend_direction"`
	ConfidenceLevel float64        `json:"confidence_level"` // [0, 1]
}

// RecommendedAction is the stopping service's advice for a run.
type RecommendedAction string

const (
	ActionContinue RecommendedAction = "continue"
	ActionStop     RecommendedAction = "stop"
)

// StoppingDecision is the outcome of evaluating stopping criteria after an
// iteration.
type StoppingDecision struct {
	ShouldStop        bool              `json:"should_stop"`
	Reason            string            `json:"reason"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	Confidence        float64           `json:"confidence"` // [0, 1]
}
