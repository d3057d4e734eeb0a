package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyActionDeterminism(t *testing.T) {
	prompt := "You are a support assistant."

	for _, action := range DefaultActionCandidates() {
		first := ApplyAction(prompt, action)
		second := ApplyAction(prompt, action)
		assert.Equal(t, first, second, "action %s must be a pure function", action.Type)
		assert.NotEqual(t, prompt, first, "action %s should change the prompt", action.Type)
	}
}

func TestApplyActionShapes(t *testing.T) {
	prompt := "Base prompt."

	tests := []struct {
		name     string
		action   RLAction
		contains string
	}{
		{
			name: "instruction appended as new line",
			action: RLAction{
				Type:       ActionAddInstruction,
				Parameters: map[string]interface{}{"instruction": "Answer directly."},
			},
			contains: "\nAnswer directly.",
		},
		{
			name: "constraint gets prefix",
			action: RLAction{
				Type:       ActionAddConstraint,
				Parameters: map[string]interface{}{"constraint": "Stay under 100 words."},
			},
			contains: "Constraint: Stay under 100 words.",
		},
		{
			name: "format directive",
			action: RLAction{
				Type:       ActionChangeFormat,
				Parameters: map[string]interface{}{"format": "bullet points"},
			},
			contains: "Format: bullet points",
		},
		{
			name:     "simplify language is parameterless",
			action:   RLAction{Type: ActionSimplifyLanguage},
			contains: "plain language",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ApplyAction(prompt, tt.action)
			assert.Contains(t, result, tt.contains)
		})
	}
}

func TestApplyActionUnknownTypeLeavesPromptUntouched(t *testing.T) {
	prompt := "Untouched."
	result := ApplyAction(prompt, RLAction{Type: ActionType("rewrite_everything")})
	assert.Equal(t, prompt, result)
}

func TestAddExampleCreatesSectionOnce(t *testing.T) {
	action := RLAction{
		Type:       ActionAddExample,
		Parameters: map[string]interface{}{"example": "Q: ... A: ..."},
	}

	once := ApplyAction("Prompt.", action)
	twice := ApplyAction(once, action)

	assert.Equal(t, 1, countOccurrences(twice, "Examples:"))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobCreated, JobRunning, true},
		{JobCreated, JobPaused, false},
		{JobCreated, JobCompleted, false},
		{JobRunning, JobPaused, true},
		{JobRunning, JobCompleted, true},
		{JobRunning, JobCancelled, true},
		{JobPaused, JobRunning, true},
		{JobPaused, JobCompleted, false},
		{JobCompleted, JobRunning, false},
		{JobCancelled, JobRunning, false},
		{JobFailed, JobRunning, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}

	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCancelled.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.False(t, JobPaused.Terminal())
}

func TestAppendIterationMaintainsBestScore(t *testing.T) {
	job := &PromptOptimizationJob{
		ID:     "job-1",
		Status: JobRunning,
	}

	assert.Equal(t, 0.0, job.Progress.BestScore, "best score is 0 when empty")

	scores := []float64{6.2, 7.8, 7.1, 8.4, 8.0}
	for i, score := range scores {
		job.AppendIteration(OptimizationIteration{
			ID:              "it-" + string(rune('a'+i)),
			JobID:           job.ID,
			RoundNumber:     1,
			IterationNumber: i + 1,
			ActualScore:     score,
			Timestamp:       time.Now(),
		})

		max := scores[0]
		for _, s := range scores[:i+1] {
			if s > max {
				max = s
			}
		}
		assert.Equal(t, max, job.Progress.BestScore, "after iteration %d", i+1)
	}

	assert.Equal(t, len(scores), job.Progress.TotalIterations)
	assert.Len(t, job.ScoreHistory(), len(scores))

	best := job.BestIteration()
	require.NotNil(t, best)
	assert.Equal(t, 8.4, best.ActualScore)
}

func TestIterationOrderingIsPreserved(t *testing.T) {
	job := &PromptOptimizationJob{ID: "job-2"}

	for round := 1; round <= 2; round++ {
		for iter := 1; iter <= 3; iter++ {
			job.AppendIteration(OptimizationIteration{
				RoundNumber:     round,
				IterationNumber: iter,
				Timestamp:       time.Now(),
			})
		}
	}

	for i := 1; i < len(job.Iterations); i++ {
		prev, cur := job.Iterations[i-1], job.Iterations[i]
		ordered := cur.RoundNumber > prev.RoundNumber ||
			(cur.RoundNumber == prev.RoundNumber && cur.IterationNumber > prev.IterationNumber)
		assert.True(t, ordered, "history must be non-decreasing in (round, iteration)")
	}
}

func TestCriterionScoreDefault(t *testing.T) {
	var nilEval *Evaluation
	assert.Equal(t, 5.0, nilEval.CriterionScore("clarity"))

	eval := &Evaluation{CriteriaScores: map[string]float64{"clarity": 7.5}}
	assert.Equal(t, 7.5, eval.CriterionScore("clarity"))
	assert.Equal(t, 5.0, eval.CriterionScore("completeness"))
}
