package agents

import (
	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
)

// Factory constructs one agent instance bound to an evaluator.
type Factory func(evaluator core.Evaluator) SpecializedAgent

// Registry maps agent type tags to constructors. The set is closed: lookups
// of unknown tags fail explicitly instead of falling back to a default.
type Registry struct {
	factories map[AgentType]Factory
}

// NewRegistry returns a registry pre-populated with the built-in
// specializations.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[AgentType]Factory{
			AgentClarity:      NewClarityAgent,
			AgentCompleteness: NewCompletenessAgent,
			AgentHelpfulness:  NewHelpfulnessAgent,
		},
	}
}

// Register adds or replaces a factory for a type tag.
func (r *Registry) Register(agentType AgentType, factory Factory) {
	r.factories[agentType] = factory
}

// Create instantiates an agent for the given type tag.
func (r *Registry) Create(agentType AgentType, evaluator core.Evaluator) (SpecializedAgent, error) {
	factory, ok := r.factories[agentType]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.UnsupportedAgentType, "unsupported agent type"),
			errors.Fields{"agent_type": string(agentType)},
		)
	}
	return factory(evaluator), nil
}

// Types lists the registered type tags.
func (r *Registry) Types() []AgentType {
	types := make([]AgentType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}
