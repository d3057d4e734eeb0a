package agents

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
	"github.com/richpaul1/promptopt/pkg/logging"
)

const (
	// needsImprovementThreshold marks the criterion score under which the
	// situational bonus kicks in.
	needsImprovementThreshold = 6.0

	// situationalBonus is added when the agent's own criterion is lagging.
	situationalBonus = 0.2

	// Insight tiers over the final criterion score.
	tierExcellent = 8.0
	tierGood      = 6.5
)

// specializationProfile is the deterministic heuristic table that makes one
// agent different from another: relevant action types with their base
// scores, keyword bonuses, anti-pattern penalties and canned
// recommendations.
type specializationProfile struct {
	criterionID     string
	relevantTypes   map[core.ActionType]float64 // base score per action type
	keywordBonuses  map[string]float64          // additive, matched in description
	antiPatterns    map[string]float64          // subtractive, matched in description
	recommendations map[string][]string         // tier -> canned advice
}

// baseAgent implements the shared search algorithm. Concrete specializations
// differ only in their profile and default configuration.
type baseAgent struct {
	id        string
	agentType AgentType
	profile   specializationProfile
	evaluator core.Evaluator
	logger    *logging.Logger
}

func newBaseAgent(agentType AgentType, profile specializationProfile, evaluator core.Evaluator) *baseAgent {
	return &baseAgent{
		id:        string(agentType) + "-" + uuid.New().String()[:8],
		agentType: agentType,
		profile:   profile,
		evaluator: evaluator,
		logger:    logging.GetLogger(),
	}
}

func (a *baseAgent) ID() string             { return a.id }
func (a *baseAgent) Type() AgentType        { return a.agentType }
func (a *baseAgent) FocusCriterion() string { return a.profile.criterionID }

// FilterRelevantActions passes an action when its type is in the relevant
// set and its description contains at least one keyword trigger.
func (a *baseAgent) FilterRelevantActions(candidates []core.RLAction, _ *core.AgentState) []core.RLAction {
	var relevant []core.RLAction
	for _, action := range candidates {
		if _, ok := a.profile.relevantTypes[action.Type]; !ok {
			continue
		}
		if !a.matchesKeyword(action.Description) {
			continue
		}
		relevant = append(relevant, action)
	}
	return relevant
}

func (a *baseAgent) matchesKeyword(description string) bool {
	desc := strings.ToLower(description)
	for keyword := range a.profile.keywordBonuses {
		if strings.Contains(desc, keyword) {
			return true
		}
	}
	return false
}

// SpecializationScore combines the type's base score, keyword bonuses,
// anti-pattern penalties and a situational bonus when the agent's own
// criterion is currently lagging. Clamped to [0, 1].
func (a *baseAgent) SpecializationScore(action core.RLAction, state *core.AgentState) float64 {
	score, ok := a.profile.relevantTypes[action.Type]
	if !ok {
		return 0
	}

	desc := strings.ToLower(action.Description)
	for keyword, bonus := range a.profile.keywordBonuses {
		if strings.Contains(desc, keyword) {
			score += bonus
		}
	}
	for pattern, penalty := range a.profile.antiPatterns {
		if strings.Contains(desc, pattern) {
			score -= penalty
		}
	}

	if a.currentCriterionScore(state) < needsImprovementThreshold {
		score += situationalBonus
	}

	return clamp01(score)
}

// currentCriterionScore reads the agent's criterion from the latest
// evaluation, defaulting to a neutral 5.0 before anything has been scored.
func (a *baseAgent) currentCriterionScore(state *core.AgentState) float64 {
	if state == nil {
		return 5.0
	}
	return state.LatestEvaluation().CriterionScore(a.profile.criterionID)
}

// selectAction picks the highest-specialization-scoring action. Ties break
// by stable input order.
func (a *baseAgent) selectAction(actions []core.RLAction, state *core.AgentState) (core.RLAction, bool) {
	if len(actions) == 0 {
		return core.RLAction{}, false
	}

	bestIdx := 0
	bestScore := a.SpecializationScore(actions[0], state)
	for i := 1; i < len(actions); i++ {
		if score := a.SpecializationScore(actions[i], state); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return actions[bestIdx], true
}

// Run executes up to EpisodesPerUpdate episodes of at most MaxEpisodeLength
// steps each. Episode failures abort only that episode; an agent that never
// completes a step still returns a result carrying the initial prompt's
// score.
func (a *baseAgent) Run(ctx context.Context, session *Session) (*core.SpecializedOptimizationResult, error) {
	ctx = logging.WithAgentID(ctx, a.id)
	cfg := session.Config
	if cfg.MaxEpisodeLength <= 0 {
		cfg = core.DefaultTrainingConfig()
	}

	bestPrompt := session.InitialPrompt
	bestScore := a.baselineScore(ctx, session)
	var bestEval *core.Evaluation

	state := &core.AgentState{
		CurrentPrompt: session.InitialPrompt,
		Query:         session.Query,
		Examples:      session.Examples,
	}

	iterations := 0
	converged := false

episodes:
	for episode := 0; episode < cfg.EpisodesPerUpdate; episode++ {
		state.EpisodeNumber = episode
		state.CurrentPrompt = bestPrompt

		for step := 0; step < cfg.MaxEpisodeLength; step++ {
			// Cancellation is observed at iteration boundaries; nothing is
			// recorded once it has been seen.
			if err := errors.CheckContext(ctx, "agent step"); err != nil {
				a.logger.Debug(ctx, "agent run cut off: %v", err)
				break episodes
			}
			state.StepNumber = step

			filtered := a.FilterRelevantActions(session.candidates(), state)
			action, ok := a.selectAction(filtered, state)
			if !ok {
				a.logger.Debug(ctx, "no relevant actions for %s, ending episode %d", a.agentType, episode)
				break
			}

			stepStart := time.Now()
			nextPrompt := core.ApplyAction(state.CurrentPrompt, action)

			eval, err := a.evaluator.Evaluate(ctx, nextPrompt, session.Query, session.Examples)
			if err != nil {
				// Recoverable oracle failure: the episode is abandoned, the
				// run is not.
				a.logger.Warn(ctx, "evaluation failed in episode %d step %d: %v", episode, step, err)
				continue episodes
			}

			state.CurrentPrompt = nextPrompt
			state.AppliedActions = append(state.AppliedActions, action)
			state.RecentEvaluations = append(state.RecentEvaluations, *eval)
			iterations++

			iter := core.OptimizationIteration{
				ID:              uuid.New().String(),
				JobID:           session.JobID,
				RoundNumber:     session.RoundNumber,
				IterationNumber: iterations,
				InputPrompt:     nextPrompt,
				ActualScore:     eval.OverallScore,
				CriteriaScores:  eval.CriteriaScores,
				AppliedActions:  []core.RLAction{action},
				AgentID:         a.id,
				Timestamp:       time.Now(),
				ExecutionTime:   time.Since(stepStart),
				Confidence:      clamp01(eval.OverallScore / 10),
				Novelty:         actionNovelty(state.AppliedActions),
			}
			session.record(iter)
			a.logger.IterationResult(ctx, session.RoundNumber, iterations, eval.OverallScore, iter.ExecutionTime)

			if eval.OverallScore > bestScore {
				bestScore = eval.OverallScore
				bestPrompt = nextPrompt
				bestEval = eval
			}

			if bestScore >= cfg.ConvergenceThreshold {
				converged = true
				break episodes
			}
		}
	}

	result := &core.SpecializedOptimizationResult{
		AgentID:            a.id,
		AgentType:          string(a.agentType),
		FocusCriteria:      []string{a.profile.criterionID},
		BestPrompt:         bestPrompt,
		BestScore:          bestScore,
		Confidence:         a.resultConfidence(bestScore, iterations, cfg),
		Iterations:         iterations,
		ConvergenceReached: converged,
		ActionCounts:       actionTypeCounts(state.AppliedActions),
		Insights:           a.generateInsights(state, bestEval, bestScore),
	}
	if bestEval != nil {
		result.CriteriaScores = bestEval.CriteriaScores
	}

	return result, nil
}

// baselineScore scores the untouched initial prompt so an agent with zero
// successful steps still reports a meaningful best score.
func (a *baseAgent) baselineScore(ctx context.Context, session *Session) float64 {
	eval, err := a.evaluator.Evaluate(ctx, session.InitialPrompt, session.Query, session.Examples)
	if err != nil {
		a.logger.Warn(ctx, "baseline evaluation failed: %v", err)
		return 0
	}
	return eval.OverallScore
}

// resultConfidence blends score quality with how much evidence the run
// produced. Deterministic by construction.
func (a *baseAgent) resultConfidence(bestScore float64, iterations int, cfg core.TrainingConfig) float64 {
	budget := cfg.MaxEpisodeLength * cfg.EpisodesPerUpdate
	if budget == 0 {
		budget = 1
	}
	coverage := float64(iterations) / float64(budget)
	return clamp01(0.7*(bestScore/10) + 0.3*clamp01(coverage))
}

// generateInsights classifies the final criterion score into tiers and
// reports which action kinds dominated the trajectory.
func (a *baseAgent) generateInsights(state *core.AgentState, bestEval *core.Evaluation, bestScore float64) core.SpecializedInsights {
	criterionScore := bestScore
	if bestEval != nil {
		criterionScore = bestEval.CriterionScore(a.profile.criterionID)
	}

	insights := core.SpecializedInsights{}
	name := a.profile.criterionID

	switch {
	case criterionScore >= tierExcellent:
		insights.StrengthAreas = append(insights.StrengthAreas, name+" is excellent")
		insights.Recommendations = append(insights.Recommendations, a.profile.recommendations["excellent"]...)
	case criterionScore >= tierGood:
		insights.StrengthAreas = append(insights.StrengthAreas, name+" is solid")
		insights.Recommendations = append(insights.Recommendations, a.profile.recommendations["good"]...)
	default:
		insights.ImprovementAreas = append(insights.ImprovementAreas, name+" needs improvement")
		insights.Recommendations = append(insights.Recommendations, a.profile.recommendations["needs_improvement"]...)
	}

	if dominant, ok := dominantActionType(state.AppliedActions); ok {
		insights.StrengthAreas = append(insights.StrengthAreas,
			"most effective action kind: "+string(dominant))
	}

	return insights
}

// dominantActionType returns the most frequently applied action type.
// Ties break toward the type applied first.
func dominantActionType(actions []core.RLAction) (core.ActionType, bool) {
	if len(actions) == 0 {
		return "", false
	}

	counts := make(map[core.ActionType]int)
	var order []core.ActionType
	for _, action := range actions {
		if counts[action.Type] == 0 {
			order = append(order, action.Type)
		}
		counts[action.Type]++
	}

	best := order[0]
	for _, t := range order[1:] {
		if counts[t] > counts[best] {
			best = t
		}
	}
	return best, true
}

// actionTypeCounts tallies how often each action kind was applied.
func actionTypeCounts(actions []core.RLAction) map[core.ActionType]int {
	if len(actions) == 0 {
		return nil
	}
	counts := make(map[core.ActionType]int)
	for _, action := range actions {
		counts[action.Type]++
	}
	return counts
}

// actionNovelty is the fraction of the vocabulary the trajectory has touched.
func actionNovelty(actions []core.RLAction) float64 {
	if len(actions) == 0 {
		return 0
	}
	seen := make(map[core.ActionType]struct{})
	for _, action := range actions {
		seen[action.Type] = struct{}{}
	}
	return clamp01(float64(len(seen)) / float64(len(core.ActionTypes())))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
