package core

import (
	"context"
)

// Evaluator scores a prompt for a query against held-out training examples.
// Implementations wrap an external scoring oracle; repeated calls on
// unchanged input must stay comparable, since scores are compared across
// iterations to detect convergence.
type Evaluator interface {
	Evaluate(ctx context.Context, prompt, query string, examples []TrainingExample) (*Evaluation, error)
}

// AgentState is the view of the search an agent consults while filtering and
// ranking candidate actions. Each agent owns its own state; nothing here is
// shared between agents.
type AgentState struct {
	CurrentPrompt     string
	Query             string
	Examples          []TrainingExample
	RecentEvaluations []Evaluation
	AppliedActions    []RLAction
	EpisodeNumber     int
	StepNumber        int
}

// LatestEvaluation returns the most recent evaluation, or nil when the agent
// has not scored anything yet.
func (s *AgentState) LatestEvaluation() *Evaluation {
	if len(s.RecentEvaluations) == 0 {
		return nil
	}
	return &s.RecentEvaluations[len(s.RecentEvaluations)-1]
}
