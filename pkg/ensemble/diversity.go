package ensemble

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/richpaul1/promptopt/pkg/core"
)

var lowerCaser = cases.Lower(language.Und)

// tokenize splits a prompt into normalized word tokens: Unicode-aware
// lowercasing, split on anything that is not a letter or digit.
func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(lowerCaser.String(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}

// CalculatePromptSimilarity returns the Jaccard similarity of two prompts'
// normalized token sets, in [0, 1]. Identical prompts score 1.0; prompts
// sharing no tokens score 0.
func (c *Coordinator) CalculatePromptSimilarity(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)

	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 1.0
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	intersection := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection

	return float64(intersection) / float64(union)
}

// CalculateDiversityMetrics quantifies how differently the agents searched.
// PromptVariety is the average pairwise token dissimilarity of the agents'
// best prompts; ApproachDiversity is the normalized variance of their
// action-type distributions. Both are 0 for a single result.
func (c *Coordinator) CalculateDiversityMetrics(results []core.SpecializedOptimizationResult) core.DiversityMetrics {
	if len(results) <= 1 {
		return core.DiversityMetrics{}
	}

	return core.DiversityMetrics{
		PromptVariety:     c.promptVariety(results),
		ApproachDiversity: approachDiversity(results),
	}
}

func (c *Coordinator) promptVariety(results []core.SpecializedOptimizationResult) float64 {
	var total float64
	pairs := 0

	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			total += 1 - c.CalculatePromptSimilarity(results[i].BestPrompt, results[j].BestPrompt)
			pairs++
		}
	}

	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

// approachDiversity computes, per action type, the variance of the fraction
// of each agent's steps that used that type, averages across the
// vocabulary, and normalizes by the maximum variance of a fraction (0.25).
func approachDiversity(results []core.SpecializedOptimizationResult) float64 {
	types := core.ActionTypes()
	distributions := make([][]float64, len(results))

	for i, result := range results {
		total := 0
		for _, count := range result.ActionCounts {
			total += count
		}

		dist := make([]float64, len(types))
		if total > 0 {
			for t, actionType := range types {
				dist[t] = float64(result.ActionCounts[actionType]) / float64(total)
			}
		}
		distributions[i] = dist
	}

	var varianceSum float64
	for t := range types {
		var sum float64
		for _, dist := range distributions {
			sum += dist[t]
		}
		mean := sum / float64(len(distributions))

		var sq float64
		for _, dist := range distributions {
			d := dist[t] - mean
			sq += d * d
		}
		varianceSum += sq / float64(len(distributions))
	}

	avgVariance := varianceSum / float64(len(types))
	normalized := avgVariance / 0.25
	if normalized > 1 {
		normalized = 1
	}
	return normalized
}
