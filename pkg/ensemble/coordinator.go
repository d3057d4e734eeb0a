package ensemble

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/richpaul1/promptopt/pkg/agents"
	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
	"github.com/richpaul1/promptopt/pkg/logging"
)

// AgentSpec names one ensemble member and its fusion weight.
type AgentSpec struct {
	Type   agents.AgentType `json:"type" yaml:"type"`
	Weight float64          `json:"weight" yaml:"weight"`
}

// Config describes the ensemble: which agents run, how they run, and how
// their results fuse.
type Config struct {
	Agents             []AgentSpec `json:"agents" yaml:"agents"`
	ParallelExecution  bool        `json:"parallel_execution" yaml:"parallel_execution"`
	FusionStrategy     string      `json:"fusion_strategy" yaml:"fusion_strategy"`
	ConsensusThreshold float64     `json:"consensus_threshold" yaml:"consensus_threshold"`
	MaxConcurrent      int         `json:"max_concurrent" yaml:"max_concurrent"`
}

// Options bounds a single ensemble execution.
type Options struct {
	TimeoutMinutes int `json:"timeout_minutes" yaml:"timeout_minutes"`
}

// SessionStatus tracks an ensemble session through its short lifecycle.
type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
)

// Session is one configured ensemble run.
type Session struct {
	SessionID string
	Config    Config
	Options   Options
	Agents    []agents.SpecializedAgent
	Status    SessionStatus
	Results   []core.SpecializedOptimizationResult
}

// RunInput is the per-round material handed to every agent. Each agent gets
// its own agents.Session built from it; they share no mutable state.
type RunInput struct {
	JobID           string
	RoundNumber     int
	InitialPrompt   string
	Query           string
	Examples        []core.TrainingExample
	Training        core.TrainingConfig
	Candidates      []core.RLAction
	RecordIteration func(core.OptimizationIteration)
}

// Coordinator orchestrates N specialized agents and fuses their outputs.
type Coordinator struct {
	registry  *agents.Registry
	evaluator core.Evaluator
	logger    *logging.Logger
}

// NewCoordinator creates a coordinator bound to an agent registry and the
// scoring oracle.
func NewCoordinator(registry *agents.Registry, evaluator core.Evaluator) *Coordinator {
	return &Coordinator{
		registry:  registry,
		evaluator: evaluator,
		logger:    logging.GetLogger(),
	}
}

// CreateSession validates the ensemble configuration and constructs one
// agent per entry. Agent-creation failures are fatal to session creation.
func (c *Coordinator) CreateSession(cfg Config, opts Options) (*Session, error) {
	if len(cfg.Agents) == 0 {
		return nil, errors.New(errors.ValidationFailed, "ensemble config requires at least one agent")
	}

	members := make([]agents.SpecializedAgent, 0, len(cfg.Agents))
	for i := range cfg.Agents {
		if cfg.Agents[i].Weight <= 0 {
			cfg.Agents[i].Weight = 1.0
		}
		agent, err := c.registry.Create(cfg.Agents[i].Type, c.evaluator)
		if err != nil {
			return nil, err
		}
		members = append(members, agent)
	}

	return &Session{
		SessionID: uuid.New().String(),
		Config:    cfg,
		Options:   opts,
		Agents:    members,
		Status:    SessionCreated,
		Results:   []core.SpecializedOptimizationResult{},
	}, nil
}

// Execute runs every agent in the session, concurrently when configured, and
// collects their results in member order. An agent that exceeds the timeout
// or fails at runtime contributes its best-so-far (or a baseline) result;
// it never sinks the ensemble.
func (c *Coordinator) Execute(ctx context.Context, session *Session, input RunInput) ([]core.SpecializedOptimizationResult, error) {
	if err := errors.CheckContext(ctx, "ensemble execution"); err != nil {
		return nil, err
	}

	session.Status = SessionRunning
	results := make([]core.SpecializedOptimizationResult, len(session.Agents))

	runOne := func(idx int) {
		agent := session.Agents[idx]

		agentCtx := ctx
		if session.Options.TimeoutMinutes > 0 {
			var cancel context.CancelFunc
			agentCtx, cancel = context.WithTimeout(ctx, time.Duration(session.Options.TimeoutMinutes)*time.Minute)
			defer cancel()
		}

		agentSession := &agents.Session{
			JobID:           input.JobID,
			RoundNumber:     input.RoundNumber,
			InitialPrompt:   input.InitialPrompt,
			Query:           input.Query,
			Examples:        input.Examples,
			Candidates:      input.Candidates,
			Config:          input.Training,
			RecordIteration: input.RecordIteration,
		}

		result, err := agent.Run(agentCtx, agentSession)
		if err != nil {
			c.logger.Warn(ctx, "agent %s failed, using baseline result: %v", agent.ID(), err)
			result = &core.SpecializedOptimizationResult{
				AgentID:       agent.ID(),
				AgentType:     string(agent.Type()),
				FocusCriteria: []string{agent.FocusCriterion()},
				BestPrompt:    input.InitialPrompt,
			}
		}
		results[idx] = *result
	}

	if session.Config.ParallelExecution && len(session.Agents) > 1 {
		maxConcurrent := session.Config.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = len(session.Agents)
		}

		p := pool.New().WithMaxGoroutines(maxConcurrent)
		for i := range session.Agents {
			i := i
			p.Go(func() {
				runOne(i)
			})
		}
		p.Wait()
	} else {
		for i := range session.Agents {
			runOne(i)
		}
	}

	session.Results = results
	session.Status = SessionCompleted

	c.logger.Info(ctx, "ensemble session %s completed: %d agents", session.SessionID, len(results))
	return results, nil
}
