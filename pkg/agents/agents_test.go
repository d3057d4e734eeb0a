package agents

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
)

// scriptedEvaluator returns a fixed score sequence, repeating the final score
// once the script is exhausted. Safe for concurrent use.
type scriptedEvaluator struct {
	mu     sync.Mutex
	scores []float64
	idx    int
	err    error
	calls  int
}

func (e *scriptedEvaluator) Evaluate(_ context.Context, _, _ string, _ []core.TrainingExample) (*core.Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	if e.err != nil {
		return nil, e.err
	}

	score := e.scores[len(e.scores)-1]
	if e.idx < len(e.scores) {
		score = e.scores[e.idx]
		e.idx++
	}

	return &core.Evaluation{
		OverallScore: score,
		CriteriaScores: map[string]float64{
			"clarity":      score,
			"completeness": score,
			"helpfulness":  score,
		},
		EvaluatorType: "scripted",
	}, nil
}

func testSession(recorded *[]core.OptimizationIteration) *Session {
	var mu sync.Mutex
	return &Session{
		JobID:         "job-test",
		RoundNumber:   1,
		InitialPrompt: "You are an assistant.",
		Query:         "How do I reset my password?",
		Config:        core.DefaultTrainingConfig(),
		RecordIteration: func(iter core.OptimizationIteration) {
			mu.Lock()
			defer mu.Unlock()
			if recorded != nil {
				*recorded = append(*recorded, iter)
			}
		},
	}
}

func TestFilterRelevantActions(t *testing.T) {
	agent := NewClarityAgent(&scriptedEvaluator{scores: []float64{5}})

	candidates := []core.RLAction{
		{Type: core.ActionSimplifyLanguage, Description: "simplify wording for clarity"},
		{Type: core.ActionAddInstruction, Description: "add a clear direct instruction"},
		// Relevant type but no keyword trigger.
		{Type: core.ActionAddInstruction, Description: "append boilerplate"},
		// Keyword but irrelevant type for clarity.
		{Type: core.ActionAdjustTone, Description: "make tone clear and friendly"},
	}

	filtered := agent.FilterRelevantActions(candidates, &core.AgentState{})

	require.Len(t, filtered, 2)
	assert.Equal(t, core.ActionSimplifyLanguage, filtered[0].Type)
	assert.Equal(t, core.ActionAddInstruction, filtered[1].Type)
}

func TestSpecializationScoreBounds(t *testing.T) {
	agent := NewClarityAgent(&scriptedEvaluator{scores: []float64{5}})

	for _, action := range core.DefaultActionCandidates() {
		score := agent.SpecializationScore(action, &core.AgentState{})
		assert.GreaterOrEqual(t, score, 0.0, "%s", action.Type)
		assert.LessOrEqual(t, score, 1.0, "%s", action.Type)
	}

	// Irrelevant type scores zero.
	score := agent.SpecializationScore(core.RLAction{Type: core.ActionAdjustTone, Description: "clear"}, &core.AgentState{})
	assert.Equal(t, 0.0, score)
}

func TestSpecializationScoreAntiPatternPenalty(t *testing.T) {
	agent := NewClarityAgent(&scriptedEvaluator{scores: []float64{5}})
	// High current criterion score suppresses the situational bonus so the
	// penalty is visible in isolation.
	state := &core.AgentState{
		RecentEvaluations: []core.Evaluation{
			{CriteriaScores: map[string]float64{"clarity": 9.0}},
		},
	}

	plain := core.RLAction{Type: core.ActionAddInstruction, Description: "add a clear instruction"}
	tainted := core.RLAction{Type: core.ActionAddInstruction, Description: "add a clear but complex instruction"}

	assert.Greater(t,
		agent.SpecializationScore(plain, state),
		agent.SpecializationScore(tainted, state))
}

func TestSpecializationScoreSituationalBonus(t *testing.T) {
	agent := NewClarityAgent(&scriptedEvaluator{scores: []float64{5}})
	action := core.RLAction{Type: core.ActionChangeFormat, Description: "use numbered steps"}

	lagging := &core.AgentState{
		RecentEvaluations: []core.Evaluation{
			{CriteriaScores: map[string]float64{"clarity": 4.0}},
		},
	}
	healthy := &core.AgentState{
		RecentEvaluations: []core.Evaluation{
			{CriteriaScores: map[string]float64{"clarity": 8.0}},
		},
	}

	assert.Greater(t,
		agent.SpecializationScore(action, lagging),
		agent.SpecializationScore(action, healthy))

	// Empty history defaults the criterion to 5.0, which is below the
	// needs-improvement threshold, so the bonus applies.
	assert.Equal(t,
		agent.SpecializationScore(action, lagging),
		agent.SpecializationScore(action, &core.AgentState{}))
}

func TestRunImprovesAndRecords(t *testing.T) {
	evaluator := &scriptedEvaluator{scores: []float64{5.0, 5.5, 6.0, 6.5, 7.0, 7.2, 7.4, 7.5, 7.5}}
	agent := NewClarityAgent(evaluator)

	var recorded []core.OptimizationIteration
	session := testSession(&recorded)

	result, err := agent.Run(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, string(AgentClarity), result.AgentType)
	assert.Equal(t, []string{"clarity"}, result.FocusCriteria)
	assert.Greater(t, result.Iterations, 0)
	assert.Len(t, recorded, result.Iterations)
	assert.Greater(t, result.BestScore, 5.0, "best must beat the baseline")
	assert.NotEqual(t, session.InitialPrompt, result.BestPrompt)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)

	for i, iter := range recorded {
		assert.Equal(t, "job-test", iter.JobID)
		assert.Equal(t, 1, iter.RoundNumber)
		assert.Equal(t, i+1, iter.IterationNumber)
		assert.Equal(t, result.AgentID, iter.AgentID)
		assert.Len(t, iter.AppliedActions, 1)
	}
}

func TestRunConvergesEarlyAtThreshold(t *testing.T) {
	// Baseline 5.0, then an immediate jump past the convergence threshold.
	evaluator := &scriptedEvaluator{scores: []float64{5.0, 9.5}}
	agent := NewCompletenessAgent(evaluator)

	var recorded []core.OptimizationIteration
	session := testSession(&recorded)

	result, err := agent.Run(context.Background(), session)
	require.NoError(t, err)

	assert.True(t, result.ConvergenceReached)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 9.5, result.BestScore)
}

func TestRunWithFailingOracle(t *testing.T) {
	evaluator := &scriptedEvaluator{err: errors.New(errors.EvaluationFailed, "oracle down")}
	agent := NewHelpfulnessAgent(evaluator)

	var recorded []core.OptimizationIteration
	session := testSession(&recorded)

	result, err := agent.Run(context.Background(), session)
	require.NoError(t, err, "oracle failures are recoverable, not fatal")

	assert.Equal(t, 0, result.Iterations)
	assert.Empty(t, recorded)
	assert.False(t, result.ConvergenceReached)
	assert.Equal(t, session.InitialPrompt, result.BestPrompt)
}

func TestInsightsWithoutEvaluations(t *testing.T) {
	evaluator := &scriptedEvaluator{err: errors.New(errors.EvaluationFailed, "oracle down")}
	agent := NewClarityAgent(evaluator)

	result, err := agent.Run(context.Background(), testSession(nil))
	require.NoError(t, err)

	// No evaluation ever succeeded, so insights fall back to the best score.
	require.NotEmpty(t, result.Insights.ImprovementAreas)
	assert.Contains(t, result.Insights.ImprovementAreas[0], "needs improvement")
}

func TestRunObservesCancellation(t *testing.T) {
	evaluator := &scriptedEvaluator{scores: []float64{5.0}}
	agent := NewClarityAgent(evaluator)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var recorded []core.OptimizationIteration
	result, err := agent.Run(ctx, testSession(&recorded))
	require.NoError(t, err)

	assert.Empty(t, recorded, "no iteration may be written after cancellation")
	assert.Equal(t, 0, result.Iterations)
}

func TestInsightsTiers(t *testing.T) {
	tests := []struct {
		name       string
		score      float64
		wantField  string
		wantPhrase string
	}{
		{name: "excellent", score: 8.5, wantField: "strength", wantPhrase: "excellent"},
		{name: "good", score: 7.0, wantField: "strength", wantPhrase: "solid"},
		{name: "needs improvement", score: 5.0, wantField: "improvement", wantPhrase: "needs improvement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evaluator := &scriptedEvaluator{scores: []float64{tt.score - 0.5, tt.score}}
			agent := NewClarityAgent(evaluator)

			result, err := agent.Run(context.Background(), testSession(nil))
			require.NoError(t, err)

			if tt.wantField == "strength" {
				require.NotEmpty(t, result.Insights.StrengthAreas)
				assert.Contains(t, result.Insights.StrengthAreas[0], tt.wantPhrase)
			} else {
				require.NotEmpty(t, result.Insights.ImprovementAreas)
				assert.Contains(t, result.Insights.ImprovementAreas[0], tt.wantPhrase)
			}
			assert.NotEmpty(t, result.Insights.Recommendations)
		})
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	evaluator := &scriptedEvaluator{scores: []float64{5}}

	for _, agentType := range []AgentType{AgentClarity, AgentCompleteness, AgentHelpfulness} {
		agent, err := registry.Create(agentType, evaluator)
		require.NoError(t, err)
		assert.Equal(t, agentType, agent.Type())
		assert.NotEmpty(t, agent.ID())
	}

	_, err := registry.Create(AgentType("fluency"), evaluator)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.UnsupportedAgentType))

	assert.Len(t, registry.Types(), 3)
}

func TestDominantActionType(t *testing.T) {
	actions := []core.RLAction{
		{Type: core.ActionAddInstruction},
		{Type: core.ActionChangeFormat},
		{Type: core.ActionChangeFormat},
	}

	dominant, ok := dominantActionType(actions)
	require.True(t, ok)
	assert.Equal(t, core.ActionChangeFormat, dominant)

	_, ok = dominantActionType(nil)
	assert.False(t, ok)
}
