package evaluation

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
	"github.com/richpaul1/promptopt/pkg/logging"
)

// AnthropicConfig configures the LLM-backed evaluator.
type AnthropicConfig struct {
	APIKey      string  `json:"api_key" yaml:"api_key"`
	Model       string  `json:"model" yaml:"model"`
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// AnthropicEvaluator scores prompts by asking a Claude model to grade them
// against a rubric and return JSON scores. Temperature defaults to zero so
// repeated evaluations of the same prompt stay comparable.
type AnthropicEvaluator struct {
	client      *anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	criteria    []core.EvaluationCriteria
	logger      *logging.Logger
}

// rubricResponse is the JSON shape the model is instructed to produce.
type rubricResponse struct {
	Scores map[string]float64 `json:"scores"`
	Reason string             `json:"reason"`
}

// NewAnthropicEvaluator creates an evaluator backed by the Anthropic API.
// The API key falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicEvaluator(cfg AnthropicConfig, criteria []core.EvaluationCriteria) (*AnthropicEvaluator, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "API key is required")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)

	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = anthropic.Model("claude-sonnet-4-5-20250929")
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	if len(criteria) == 0 {
		criteria = core.DefaultCriteria()
	}

	return &AnthropicEvaluator{
		client:      &client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		criteria:    criteria,
		logger:      logging.GetLogger(),
	}, nil
}

// Evaluate grades the prompt with one model call and maps the returned
// rubric scores into an Evaluation.
func (e *AnthropicEvaluator) Evaluate(ctx context.Context, prompt, query string, examples []core.TrainingExample) (*core.Evaluation, error) {
	if err := errors.CheckContext(ctx, "anthropic evaluation"); err != nil {
		return nil, err
	}
	if prompt == "" {
		return nil, errors.New(errors.InvalidInput, "cannot evaluate an empty prompt")
	}

	rubric := e.buildRubric(prompt, query, examples)

	message, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: e.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(rubric),
			),
		},
		MaxTokens:   e.maxTokens,
		Temperature: anthropic.Float(e.temperature),
	})

	if err != nil {
		var apiErr *anthropic.Error
		if stderrors.As(err, &apiErr) {
			e.logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
		}
		return nil, errors.WithFields(
			errors.Wrap(err, errors.EvaluationFailed, "rubric evaluation request failed"),
			errors.Fields{"model": string(e.model)})
	}

	if message == nil || len(message.Content) == 0 {
		return nil, errors.New(errors.EvaluationFailed, "received empty response from Anthropic API")
	}

	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	e.logger.Debug(ctx, "rubric evaluation: %d prompt tokens, %d completion tokens",
		message.Usage.InputTokens, message.Usage.OutputTokens)

	parsed, err := parseRubricResponse(responseText)
	if err != nil {
		return nil, err
	}
	return e.toEvaluation(parsed), nil
}

// buildRubric renders the grading instructions handed to the model.
func (e *AnthropicEvaluator) buildRubric(prompt, query string, examples []core.TrainingExample) string {
	var b strings.Builder

	b.WriteString("You are grading a system prompt for an AI assistant.\n\n")
	b.WriteString("Score the prompt from 0 to 10 on each criterion:\n")
	for _, criterion := range e.criteria {
		fmt.Fprintf(&b, "- %s: %s\n", criterion.ID, criterion.Description)
	}

	fmt.Fprintf(&b, "\nUser question the prompt must handle:\n%s\n", query)
	fmt.Fprintf(&b, "\nPrompt under evaluation:\n---\n%s\n---\n", prompt)

	if len(examples) > 0 {
		b.WriteString("\nReference cases the prompt should produce answers like:\n")
		for _, example := range examples {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", example.Query, example.ExpectedResponse)
		}
	}

	b.WriteString("\nRespond with JSON only, in this exact shape:\n")
	b.WriteString(`{"scores": {`)
	for i, criterion := range e.criteria {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: 0.0", criterion.ID)
	}
	b.WriteString(`}, "reason": "one sentence"}`)

	return b.String()
}

// toEvaluation folds the model's per-criterion scores into a weighted
// overall score, clamping each to the 10-point scale.
func (e *AnthropicEvaluator) toEvaluation(parsed *rubricResponse) *core.Evaluation {
	scores := make(map[string]float64, len(parsed.Scores))
	for id, score := range parsed.Scores {
		scores[id] = clampScore(score)
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
		Reason:         parsed.Reason,
		EvaluatorType:  "anthropic",
		Timestamp:      time.Now(),
	}
}

// parseRubricResponse extracts the JSON object from the model's reply,
// tolerating markdown code fences and surrounding prose.
func parseRubricResponse(text string) (*rubricResponse, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errors.New(errors.EvaluationFailed, "no JSON object in evaluator response")
	}

	var parsed rubricResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, errors.Wrap(err, errors.EvaluationFailed, "malformed evaluator response")
	}
	if len(parsed.Scores) == 0 {
		return nil, errors.New(errors.EvaluationFailed, "evaluator response contains no scores")
	}
	return &parsed, nil
}
