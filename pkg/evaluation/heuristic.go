package evaluation

import (
	"context"
	"strings"
	"time"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
)

// longPromptThreshold is the character count past which clarity degrades.
const longPromptThreshold = 1500

// HeuristicEvaluator scores prompts from observable text features. It is a
// pure function of its inputs, which makes scores comparable across
// iterations without an external oracle. Used as the default evaluator in
// tests and offline runs.
type HeuristicEvaluator struct {
	criteria []core.EvaluationCriteria
}

// NewHeuristicEvaluator creates a heuristic evaluator over the given
// criteria, defaulting to the standard rubric.
func NewHeuristicEvaluator(criteria []core.EvaluationCriteria) *HeuristicEvaluator {
	if len(criteria) == 0 {
		criteria = core.DefaultCriteria()
	}
	return &HeuristicEvaluator{criteria: criteria}
}

// Evaluate scores the prompt on each criterion and aggregates with the
// criteria weights.
func (e *HeuristicEvaluator) Evaluate(ctx context.Context, prompt, query string, examples []core.TrainingExample) (*core.Evaluation, error) {
	if err := errors.CheckContext(ctx, "heuristic evaluation"); err != nil {
		return nil, err
	}
	if prompt == "" {
		return nil, errors.New(errors.InvalidInput, "cannot evaluate an empty prompt")
	}

	scores := map[string]float64{
		"clarity":      e.clarityScore(prompt),
		"completeness": e.completenessScore(prompt, examples),
		"helpfulness":  e.helpfulnessScore(prompt),
	}

	var weightedSum, weightTotal float64
	for _, criterion := range e.criteria {
		score, ok := scores[criterion.ID]
		if !ok {
			score = 5.0
		}
		weightedSum += score * criterion.Weight
		weightTotal += criterion.Weight
	}

	overall := 5.0
	if weightTotal > 0 {
		overall = weightedSum / weightTotal
	}

	return &core.Evaluation{
		OverallScore:   clampScore(overall),
		CriteriaScores: scores,
		EvaluatorType:  "heuristic",
		Timestamp:      time.Now(),
	}, nil
}

func (e *HeuristicEvaluator) clarityScore(prompt string) float64 {
	lower := strings.ToLower(prompt)
	score := 4.0

	if strings.Contains(prompt, "Format:") {
		score += 1.5
	}
	if strings.Contains(lower, "numbered steps") {
		score += 1.0
	}
	if strings.Contains(lower, "plain language") {
		score += 1.5
	}
	if strings.Contains(prompt, "Constraint:") {
		score += 1.0
	}
	if len(prompt) > longPromptThreshold {
		score -= 1.5
	}
	return clampScore(score)
}

func (e *HeuristicEvaluator) completenessScore(prompt string, examples []core.TrainingExample) float64 {
	lower := strings.ToLower(prompt)
	score := 4.0

	if strings.Contains(prompt, "Examples:") {
		score += 1.5
	}
	if strings.Contains(lower, "every part") || strings.Contains(lower, "edge case") {
		score += 1.5
	}
	if strings.Contains(prompt, "Context:") {
		score += 1.0
	}

	// Reference material grounds the prompt; diminishing returns past three.
	bonus := 0.5 * float64(len(examples))
	if bonus > 1.5 {
		bonus = 1.5
	}
	return clampScore(score + bonus)
}

func (e *HeuristicEvaluator) helpfulnessScore(prompt string) float64 {
	lower := strings.ToLower(prompt)
	score := 4.0

	if strings.Contains(prompt, "Tone:") {
		score += 1.5
	}
	if strings.Contains(lower, "worked example") {
		score += 1.5
	}
	if strings.Contains(lower, "directly") {
		score += 1.0
	}
	if strings.Contains(lower, "assumptions") || strings.Contains(lower, "actionable") {
		score += 1.0
	}
	return clampScore(score)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
