package core

import (
	"fmt"
	"strings"
)

// ActionType identifies one kind of prompt-edit operation. The vocabulary is
// fixed; agents select from it, they never invent new kinds.
type ActionType string

const (
	ActionAddInstruction   ActionType = "add_instruction"
	ActionAddConstraint    ActionType = "add_constraint"
	ActionChangeFormat     ActionType = "change_format"
	ActionAddExample       ActionType = "add_example"
	ActionModifyExample    ActionType = "modify_example"
	ActionSimplifyLanguage ActionType = "simplify_language"
	ActionAdjustTone       ActionType = "adjust_tone"
	ActionAddContext       ActionType = "add_context"
)

// ActionTypes lists the full action vocabulary in stable order.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionAddInstruction,
		ActionAddConstraint,
		ActionChangeFormat,
		ActionAddExample,
		ActionModifyExample,
		ActionSimplifyLanguage,
		ActionAdjustTone,
		ActionAddContext,
	}
}

// RLAction is a stateless prompt-edit operation: a type from the fixed
// vocabulary plus free-form parameters. Many actions can share a type.
type RLAction struct {
	Type        ActionType             `json:"type"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Description string                 `json:"description"`
}

func (a RLAction) stringParam(key, fallback string) string {
	if v, ok := a.Parameters[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// ApplyAction transforms a prompt by one action. The transformation is a pure
// function of (prompt, action): identical inputs always yield the identical
// output, which keeps agent trajectories reproducible.
func ApplyAction(prompt string, action RLAction) string {
	base := strings.TrimRight(prompt, "\n")

	switch action.Type {
	case ActionAddInstruction:
		text := action.stringParam("instruction", action.Description)
		return base + "\n" + text
	case ActionAddConstraint:
		text := action.stringParam("constraint", action.Description)
		return base + "\nConstraint: " + text
	case ActionChangeFormat:
		format := action.stringParam("format", "structured sections with headers")
		return base + "\nFormat: " + format
	case ActionAddExample:
		example := action.stringParam("example", action.Description)
		if !strings.Contains(base, "Examples:") {
			base += "\nExamples:"
		}
		return base + "\n- " + example
	case ActionModifyExample:
		guidance := action.stringParam("guidance", action.Description)
		return base + "\nWhen giving examples: " + guidance
	case ActionSimplifyLanguage:
		return base + "\nUse plain language and avoid jargon."
	case ActionAdjustTone:
		tone := action.stringParam("tone", "professional and direct")
		return base + "\nTone: " + tone
	case ActionAddContext:
		context := action.stringParam("context", action.Description)
		return base + "\nContext: " + context
	default:
		// Unknown types leave the prompt untouched rather than corrupt it.
		return prompt
	}
}

// DefaultActionCandidates returns the built-in candidate pool agents filter
// and rank. Order is stable; tie-breaking during selection relies on it.
func DefaultActionCandidates() []RLAction {
	return []RLAction{
		{
			Type:        ActionAddInstruction,
			Parameters:  map[string]interface{}{"instruction": "Answer the question directly before adding supporting detail."},
			Description: "add a clear instruction to answer directly first",
		},
		{
			Type:        ActionAddInstruction,
			Parameters:  map[string]interface{}{"instruction": "Cover every part of the question, including edge cases."},
			Description: "add instruction for complete and thorough coverage",
		},
		{
			Type:        ActionAddConstraint,
			Parameters:  map[string]interface{}{"constraint": "Keep the answer under 300 words."},
			Description: "add a concise length constraint for clarity",
		},
		{
			Type:        ActionAddConstraint,
			Parameters:  map[string]interface{}{"constraint": "Cite the information the answer relies on."},
			Description: "add constraint to ground answers in given detail",
		},
		{
			Type:        ActionChangeFormat,
			Parameters:  map[string]interface{}{"format": "numbered steps"},
			Description: "change format to clear numbered steps",
		},
		{
			Type:        ActionChangeFormat,
			Parameters:  map[string]interface{}{"format": "summary followed by detailed sections"},
			Description: "change format to summary plus comprehensive detail",
		},
		{
			Type:        ActionAddExample,
			Parameters:  map[string]interface{}{"example": "Show a worked example before the final answer."},
			Description: "add a helpful worked example",
		},
		{
			Type:        ActionModifyExample,
			Parameters:  map[string]interface{}{"guidance": "prefer short, concrete examples over abstract ones"},
			Description: "modify examples to be concrete and useful",
		},
		{
			Type:        ActionSimplifyLanguage,
			Description: "simplify wording, remove jargon for clarity",
		},
		{
			Type:        ActionAdjustTone,
			Parameters:  map[string]interface{}{"tone": "supportive and practical"},
			Description: "adjust tone to be helpful and actionable",
		},
		{
			Type:        ActionAddContext,
			Parameters:  map[string]interface{}{"context": "State assumptions explicitly when information is missing."},
			Description: "add context about handling missing information completely",
		},
	}
}

func (a RLAction) String() string {
	return fmt.Sprintf("%s(%s)", a.Type, a.Description)
}
