package ensemble

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richpaul1/promptopt/pkg/agents"
	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
)

// fixedEvaluator returns the same score for every call. Safe for concurrent
// use by parallel agents.
type fixedEvaluator struct {
	score float64
}

func (e *fixedEvaluator) Evaluate(_ context.Context, _, _ string, _ []core.TrainingExample) (*core.Evaluation, error) {
	return &core.Evaluation{
		OverallScore: e.score,
		CriteriaScores: map[string]float64{
			"clarity":      e.score,
			"completeness": e.score,
			"helpfulness":  e.score,
		},
		EvaluatorType: "fixed",
	}, nil
}

func threeAgentConfig(parallel bool) Config {
	return Config{
		Agents: []AgentSpec{
			{Type: agents.AgentClarity, Weight: 1.0},
			{Type: agents.AgentCompleteness, Weight: 1.0},
			{Type: agents.AgentHelpfulness, Weight: 1.0},
		},
		ParallelExecution:  parallel,
		FusionStrategy:     StrategyBestOfBreed,
		ConsensusThreshold: 0.7,
	}
}

func newTestCoordinator(score float64) *Coordinator {
	return NewCoordinator(agents.NewRegistry(), &fixedEvaluator{score: score})
}

func resultWith(agentType, prompt string, score float64) core.SpecializedOptimizationResult {
	return core.SpecializedOptimizationResult{
		AgentID:    agentType + "-1",
		AgentType:  agentType,
		BestPrompt: prompt,
		BestScore:  score,
	}
}

func TestCreateSessionValidation(t *testing.T) {
	coordinator := newTestCoordinator(6.0)

	_, err := coordinator.CreateSession(Config{}, Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ValidationFailed))

	_, err = coordinator.CreateSession(Config{
		Agents: []AgentSpec{{Type: agents.AgentType("mystery")}},
	}, Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.UnsupportedAgentType))
}

func TestCreateSession(t *testing.T) {
	coordinator := newTestCoordinator(6.0)

	session, err := coordinator.CreateSession(Config{
		Agents: []AgentSpec{
			{Type: agents.AgentClarity}, // weight defaults to 1.0
			{Type: agents.AgentHelpfulness, Weight: 2.0},
		},
	}, Options{TimeoutMinutes: 5})
	require.NoError(t, err)

	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, SessionCreated, session.Status)
	assert.Len(t, session.Agents, 2)
	assert.Empty(t, session.Results)
	assert.Equal(t, 1.0, session.Config.Agents[0].Weight)
	assert.Equal(t, 2.0, session.Config.Agents[1].Weight)
}

func runInput(recorded *[]core.OptimizationIteration) RunInput {
	var mu sync.Mutex
	return RunInput{
		JobID:         "job-ens",
		RoundNumber:   1,
		InitialPrompt: "You are an assistant.",
		Query:         "Explain DNS.",
		Training:      core.DefaultTrainingConfig(),
		RecordIteration: func(iter core.OptimizationIteration) {
			mu.Lock()
			defer mu.Unlock()
			if recorded != nil {
				*recorded = append(*recorded, iter)
			}
		},
	}
}

func TestExecuteSequential(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	session, err := coordinator.CreateSession(threeAgentConfig(false), Options{})
	require.NoError(t, err)

	var recorded []core.OptimizationIteration
	results, err := coordinator.Execute(context.Background(), session, runInput(&recorded))
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, SessionCompleted, session.Status)
	assert.NotEmpty(t, recorded)

	// Results stay in member order regardless of completion order.
	assert.Equal(t, string(agents.AgentClarity), results[0].AgentType)
	assert.Equal(t, string(agents.AgentCompleteness), results[1].AgentType)
	assert.Equal(t, string(agents.AgentHelpfulness), results[2].AgentType)
}

func TestExecuteParallel(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	session, err := coordinator.CreateSession(threeAgentConfig(true), Options{TimeoutMinutes: 1})
	require.NoError(t, err)

	var recorded []core.OptimizationIteration
	results, err := coordinator.Execute(context.Background(), session, runInput(&recorded))
	require.NoError(t, err)

	require.Len(t, results, 3)
	for _, result := range results {
		assert.NotEmpty(t, result.AgentID)
		assert.NotEmpty(t, result.BestPrompt)
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	session, err := coordinator.CreateSession(threeAgentConfig(false), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = coordinator.Execute(ctx, session, runInput(nil))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.Canceled))
}

func TestFuseResultsEmpty(t *testing.T) {
	coordinator := newTestCoordinator(6.0)

	_, err := coordinator.FuseResults(nil, threeAgentConfig(false))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ValidationFailed))
}

func TestFuseResultsUnknownStrategy(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	cfg := threeAgentConfig(false)
	cfg.FusionStrategy = "majority_rules"

	_, err := coordinator.FuseResults([]core.SpecializedOptimizationResult{
		resultWith("clarity", "prompt a", 7.0),
	}, cfg)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.UnsupportedFusionStrategy))
}

func TestFuseBestOfBreed(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	cfg := threeAgentConfig(false)

	results := []core.SpecializedOptimizationResult{
		resultWith("clarity", "prompt high", 8.5),
		resultWith("helpfulness", "prompt low", 8.2),
	}

	fusion, err := coordinator.FuseResults(results, cfg)
	require.NoError(t, err)

	assert.Equal(t, "prompt high", fusion.FusedResult.Prompt)
	assert.Equal(t, 8.5, fusion.FusedResult.Score)
	assert.Len(t, fusion.AgentResults, 2)
}

func TestFuseBestOfBreedTieBreaksByInputOrder(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	cfg := threeAgentConfig(false)

	fusion, err := coordinator.FuseResults([]core.SpecializedOptimizationResult{
		resultWith("clarity", "first", 8.0),
		resultWith("helpfulness", "second", 8.0),
	}, cfg)
	require.NoError(t, err)

	assert.Equal(t, "first", fusion.FusedResult.Prompt)
}

func TestFuseWeightedVoting(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	cfg := Config{
		Agents: []AgentSpec{
			{Type: agents.AgentClarity, Weight: 3.0},
			{Type: agents.AgentHelpfulness, Weight: 1.0},
		},
		FusionStrategy: StrategyWeightedVoting,
	}

	results := []core.SpecializedOptimizationResult{
		resultWith("clarity", "weighted winner", 8.0),
		resultWith("helpfulness", "runner up", 6.0),
	}

	fusion, err := coordinator.FuseResults(results, cfg)
	require.NoError(t, err)

	// (8*3 + 6*1) / 4 = 7.5; the prompt follows the max weight*score product.
	assert.InDelta(t, 7.5, fusion.FusedResult.Score, 1e-9)
	assert.Equal(t, "weighted winner", fusion.FusedResult.Prompt)
}

func TestFuseConsensusAgreement(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	cfg := threeAgentConfig(false)
	cfg.FusionStrategy = StrategyConsensus
	cfg.ConsensusThreshold = 0.9

	// Tight scores: stddev ~0.08, consensus ~0.98 > threshold -> plain mean.
	results := []core.SpecializedOptimizationResult{
		resultWith("clarity", "a", 7.9),
		resultWith("completeness", "b", 8.0),
		resultWith("helpfulness", "c", 8.1),
	}

	fusion, err := coordinator.FuseResults(results, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 8.0, fusion.FusedResult.Score, 1e-9)
	assert.Equal(t, "c", fusion.FusedResult.Prompt, "highest score carries the prompt")
	assert.Greater(t, fusion.FusedResult.Consensus, 0.9)
}

func TestFuseConsensusFallsBackToWeightedVoting(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	cfg := Config{
		Agents: []AgentSpec{
			{Type: agents.AgentClarity, Weight: 1.0},
			{Type: agents.AgentHelpfulness, Weight: 1.0},
		},
		FusionStrategy:     StrategyConsensus,
		ConsensusThreshold: 0.95,
	}

	// Wide disagreement: stddev 2.5, consensus 0.5 below threshold.
	results := []core.SpecializedOptimizationResult{
		resultWith("clarity", "a", 9.0),
		resultWith("helpfulness", "b", 4.0),
	}

	fusion, err := coordinator.FuseResults(results, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 6.5, fusion.FusedResult.Score, 1e-9, "weighted_voting mean")
	assert.Equal(t, "a", fusion.FusedResult.Prompt)
}

func TestFuseHybrid(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	cfg := threeAgentConfig(false)
	cfg.FusionStrategy = StrategyHybrid

	results := []core.SpecializedOptimizationResult{
		resultWith("clarity", "hybrid pick", 9.0),
		resultWith("helpfulness", "other", 7.0),
	}

	fusion, err := coordinator.FuseResults(results, cfg)
	require.NoError(t, err)

	// 0.7*9.0 + 0.3*8.0 = 8.7
	assert.InDelta(t, 8.7, fusion.FusedResult.Score, 1e-9)
	assert.Equal(t, "hybrid pick", fusion.FusedResult.Prompt)
}

func TestSingleResultFusion(t *testing.T) {
	coordinator := newTestCoordinator(6.0)
	cfg := threeAgentConfig(false)

	fusion, err := coordinator.FuseResults([]core.SpecializedOptimizationResult{
		resultWith("clarity", "only prompt", 7.7),
	}, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1.0, fusion.FusedResult.Consensus, "single result has full consensus")
	assert.Equal(t, core.DiversityMetrics{}, fusion.DiversityMetrics, "no diversity with nothing to compare")
}

func TestCalculatePromptSimilarity(t *testing.T) {
	coordinator := newTestCoordinator(6.0)

	prompt := "Answer the question clearly and completely."
	assert.Equal(t, 1.0, coordinator.CalculatePromptSimilarity(prompt, prompt))

	partial := coordinator.CalculatePromptSimilarity(prompt, "Answer the question briefly.")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)

	assert.Equal(t, 0.0, coordinator.CalculatePromptSimilarity("alpha beta", "gamma delta"))
	assert.Equal(t, 1.0, coordinator.CalculatePromptSimilarity("", ""))
	assert.Equal(t, 0.0, coordinator.CalculatePromptSimilarity("alpha", ""))

	// Similarity is symmetric.
	a, b := "use numbered steps", "use short numbered lists"
	assert.Equal(t,
		coordinator.CalculatePromptSimilarity(a, b),
		coordinator.CalculatePromptSimilarity(b, a))
}

func TestCalculateDiversityMetrics(t *testing.T) {
	coordinator := newTestCoordinator(6.0)

	varied := []core.SpecializedOptimizationResult{
		{
			AgentType:    "clarity",
			BestPrompt:   "Keep answers short and direct.",
			ActionCounts: map[core.ActionType]int{core.ActionSimplifyLanguage: 3},
		},
		{
			AgentType:    "completeness",
			BestPrompt:   "Enumerate every relevant consideration in detail.",
			ActionCounts: map[core.ActionType]int{core.ActionAddContext: 2, core.ActionAddExample: 1},
		},
	}

	metrics := coordinator.CalculateDiversityMetrics(varied)
	assert.Greater(t, metrics.PromptVariety, 0.0)
	assert.LessOrEqual(t, metrics.PromptVariety, 1.0)
	assert.Greater(t, metrics.ApproachDiversity, 0.0)
	assert.LessOrEqual(t, metrics.ApproachDiversity, 1.0)

	// Identical prompts and approaches collapse both metrics toward zero.
	identical := []core.SpecializedOptimizationResult{
		{BestPrompt: "Same prompt.", ActionCounts: map[core.ActionType]int{core.ActionAddExample: 2}},
		{BestPrompt: "Same prompt.", ActionCounts: map[core.ActionType]int{core.ActionAddExample: 2}},
	}
	metrics = coordinator.CalculateDiversityMetrics(identical)
	assert.Equal(t, 0.0, metrics.PromptVariety)
	assert.Equal(t, 0.0, metrics.ApproachDiversity)
}
