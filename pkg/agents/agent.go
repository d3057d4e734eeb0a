package agents

import (
	"context"

	"github.com/richpaul1/promptopt/pkg/core"
)

// AgentType identifies a concrete specialization. The set is closed;
// construction of unknown types fails explicitly.
type AgentType string

const (
	AgentClarity      AgentType = "clarity"
	AgentCompleteness AgentType = "completeness"
	AgentHelpfulness  AgentType = "helpfulness"
)

// SpecializedAgent runs a bounded local search tuned to exactly one quality
// criterion.
type SpecializedAgent interface {
	// ID is the unique identity of this agent instance.
	ID() string

	// Type is the specialization tag.
	Type() AgentType

	// FocusCriterion is the criterion ID this agent optimizes for.
	FocusCriterion() string

	// FilterRelevantActions keeps the candidate actions this specialization
	// considers relevant. Pure predicate over the fixed vocabulary.
	FilterRelevantActions(candidates []core.RLAction, state *core.AgentState) []core.RLAction

	// SpecializationScore ranks a single action for this specialization,
	// clamped to [0, 1].
	SpecializationScore(action core.RLAction, state *core.AgentState) float64

	// Run executes the agent's episode loop and returns its best candidate.
	Run(ctx context.Context, session *Session) (*core.SpecializedOptimizationResult, error)
}

// Session carries everything one agent run needs. Each agent receives its own
// session; nothing in it is shared between agents.
type Session struct {
	JobID         string
	RoundNumber   int
	InitialPrompt string
	Query         string
	Examples      []core.TrainingExample
	Candidates    []core.RLAction
	Config        core.TrainingConfig

	// RecordIteration is invoked once per successful agent step, in the
	// order steps complete. May be nil when the caller does not persist
	// iteration history.
	RecordIteration func(core.OptimizationIteration)
}

func (s *Session) record(iter core.OptimizationIteration) {
	if s.RecordIteration != nil {
		s.RecordIteration(iter)
	}
}

func (s *Session) candidates() []core.RLAction {
	if len(s.Candidates) > 0 {
		return s.Candidates
	}
	return core.DefaultActionCandidates()
}
