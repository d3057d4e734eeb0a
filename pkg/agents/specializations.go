package agents

import (
	"github.com/richpaul1/promptopt/pkg/core"
)

// NewClarityAgent builds the specialization that rewards unambiguous,
// readable prompts.
func NewClarityAgent(evaluator core.Evaluator) SpecializedAgent {
	return newBaseAgent(AgentClarity, specializationProfile{
		criterionID: "clarity",
		relevantTypes: map[core.ActionType]float64{
			core.ActionSimplifyLanguage: 0.8,
			core.ActionAddInstruction:   0.7,
			core.ActionChangeFormat:     0.6,
			core.ActionAddConstraint:    0.5,
		},
		keywordBonuses: map[string]float64{
			"clear":    0.2,
			"clarity":  0.2,
			"simplify": 0.15,
			"concise":  0.15,
			"direct":   0.1,
			"steps":    0.1,
			"plain":    0.1,
		},
		antiPatterns: map[string]float64{
			"complex":   0.2,
			"jargon":    0.2,
			"elaborate": 0.1,
			"verbose":   0.15,
		},
		recommendations: map[string][]string{
			"excellent": {
				"keep instructions short and front-loaded",
			},
			"good": {
				"tighten long sentences into single directives",
				"prefer numbered steps over prose for procedures",
			},
			"needs_improvement": {
				"remove qualifiers and jargon from instructions",
				"state the expected output shape in one sentence",
				"split compound instructions into separate lines",
			},
		},
	}, evaluator)
}

// NewCompletenessAgent builds the specialization that rewards full coverage
// of the task.
func NewCompletenessAgent(evaluator core.Evaluator) SpecializedAgent {
	return newBaseAgent(AgentCompleteness, specializationProfile{
		criterionID: "completeness",
		relevantTypes: map[core.ActionType]float64{
			core.ActionAddInstruction: 0.7,
			core.ActionAddContext:     0.7,
			core.ActionAddExample:     0.6,
			core.ActionModifyExample:  0.5,
			core.ActionChangeFormat:   0.5,
		},
		keywordBonuses: map[string]float64{
			"complete":      0.2,
			"thorough":      0.2,
			"comprehensive": 0.15,
			"cover":         0.15,
			"detail":        0.1,
			"edge":          0.1,
			"missing":       0.1,
		},
		antiPatterns: map[string]float64{
			"brief":   0.15,
			"short":   0.1,
			"minimal": 0.15,
		},
		recommendations: map[string][]string{
			"excellent": {
				"coverage is strong; guard against padding",
			},
			"good": {
				"enumerate the sub-questions the answer must address",
				"ask for edge cases and assumptions explicitly",
			},
			"needs_improvement": {
				"add an instruction to address every part of the question",
				"require the answer to state what information is missing",
				"add a checklist-style format so gaps are visible",
			},
		},
	}, evaluator)
}

// NewHelpfulnessAgent builds the specialization that rewards actionable,
// practically useful answers.
func NewHelpfulnessAgent(evaluator core.Evaluator) SpecializedAgent {
	return newBaseAgent(AgentHelpfulness, specializationProfile{
		criterionID: "helpfulness",
		relevantTypes: map[core.ActionType]float64{
			core.ActionAddExample:     0.8,
			core.ActionAdjustTone:     0.6,
			core.ActionAddInstruction: 0.6,
			core.ActionModifyExample:  0.6,
			core.ActionAddConstraint:  0.5,
		},
		keywordBonuses: map[string]float64{
			"helpful":    0.2,
			"useful":     0.15,
			"actionable": 0.2,
			"practical":  0.15,
			"example":    0.15,
			"ground":     0.1,
			"support":    0.1,
		},
		antiPatterns: map[string]float64{
			"abstract":    0.15,
			"theoretical": 0.15,
			"vague":       0.2,
		},
		recommendations: map[string][]string{
			"excellent": {
				"answers are actionable; keep examples current",
			},
			"good": {
				"pair each recommendation with a worked example",
				"ask for next steps at the end of every answer",
			},
			"needs_improvement": {
				"require concrete examples instead of abstract advice",
				"instruct the model to propose a specific next action",
				"anchor answers to the user's stated situation",
			},
		},
	}, evaluator)
}
