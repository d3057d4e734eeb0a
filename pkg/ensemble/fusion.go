package ensemble

import (
	"math"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
)

// Fusion strategy names.
const (
	StrategyWeightedVoting = "weighted_voting"
	StrategyConsensus      = "consensus"
	StrategyBestOfBreed    = "best_of_breed"
	StrategyHybrid         = "hybrid"
)

// hybrid blend: the best_of_breed pick dominates, the weighted aggregate
// tempers it. Fixed ratio keeps fusion deterministic.
const (
	hybridBestWeight     = 0.7
	hybridEnsembleWeight = 0.3
)

// FuseResults combines agent results into one consensus candidate using the
// configured strategy. An empty result set or an unknown strategy fails the
// fusion call; recorded iteration history is never touched.
func (c *Coordinator) FuseResults(results []core.SpecializedOptimizationResult, cfg Config) (*core.EnsembleFusionResult, error) {
	if len(results) == 0 {
		return nil, errors.New(errors.ValidationFailed, "cannot fuse empty result set")
	}

	weights := fusionWeights(results, cfg)

	var fused core.FusedCandidate
	switch cfg.FusionStrategy {
	case StrategyWeightedVoting, "":
		fused = fuseWeightedVoting(results, weights)
	case StrategyConsensus:
		fused = fuseConsensus(results, weights, cfg.ConsensusThreshold)
	case StrategyBestOfBreed:
		fused = fuseBestOfBreed(results)
	case StrategyHybrid:
		fused = fuseHybrid(results, weights)
	default:
		return nil, errors.WithFields(
			errors.New(errors.UnsupportedFusionStrategy, "unsupported fusion strategy"),
			errors.Fields{"strategy": cfg.FusionStrategy},
		)
	}

	return &core.EnsembleFusionResult{
		FusedResult:      fused,
		AgentResults:     results,
		DiversityMetrics: c.CalculateDiversityMetrics(results),
	}, nil
}

// fusionWeights resolves per-result weights from the config, defaulting to
// uniform weight when a result's agent type has no configured entry.
func fusionWeights(results []core.SpecializedOptimizationResult, cfg Config) []float64 {
	byType := make(map[string]float64, len(cfg.Agents))
	for _, spec := range cfg.Agents {
		byType[string(spec.Type)] = spec.Weight
	}

	weights := make([]float64, len(results))
	for i, result := range results {
		w := byType[result.AgentType]
		if w <= 0 {
			w = 1.0
		}
		weights[i] = w
	}
	return weights
}

// fuseWeightedVoting averages scores by weight; the prompt comes from the
// single result with the highest weight*score product (earlier index wins
// ties).
func fuseWeightedVoting(results []core.SpecializedOptimizationResult, weights []float64) core.FusedCandidate {
	var weightedSum, weightTotal float64
	bestIdx := 0
	bestProduct := weights[0] * results[0].BestScore

	for i, result := range results {
		weightedSum += result.BestScore * weights[i]
		weightTotal += weights[i]

		if product := weights[i] * result.BestScore; product > bestProduct {
			bestProduct = product
			bestIdx = i
		}
	}

	return core.FusedCandidate{
		Prompt:    results[bestIdx].BestPrompt,
		Score:     weightedSum / weightTotal,
		Consensus: consensusOf(scoresOf(results)),
	}
}

// fuseConsensus uses the plain mean when agents agree strongly enough,
// falling back to weighted voting when they do not. The prompt is the
// highest-scoring agent's in either branch.
func fuseConsensus(results []core.SpecializedOptimizationResult, weights []float64, threshold float64) core.FusedCandidate {
	scores := scoresOf(results)
	consensus := consensusOf(scores)

	if consensus <= threshold {
		return fuseWeightedVoting(results, weights)
	}

	var sum float64
	for _, score := range scores {
		sum += score
	}

	best := fuseBestOfBreed(results)
	return core.FusedCandidate{
		Prompt:    best.Prompt,
		Score:     sum / float64(len(scores)),
		Consensus: consensus,
	}
}

// fuseBestOfBreed picks the single highest-scoring result; input order
// breaks ties.
func fuseBestOfBreed(results []core.SpecializedOptimizationResult) core.FusedCandidate {
	bestIdx := 0
	for i, result := range results {
		if result.BestScore > results[bestIdx].BestScore {
			bestIdx = i
		}
	}

	return core.FusedCandidate{
		Prompt:    results[bestIdx].BestPrompt,
		Score:     results[bestIdx].BestScore,
		Consensus: consensusOf(scoresOf(results)),
	}
}

// fuseHybrid keeps best_of_breed's prompt and blends its score with the
// weighted_voting aggregate at a fixed ratio.
func fuseHybrid(results []core.SpecializedOptimizationResult, weights []float64) core.FusedCandidate {
	best := fuseBestOfBreed(results)
	voted := fuseWeightedVoting(results, weights)

	return core.FusedCandidate{
		Prompt:    best.Prompt,
		Score:     hybridBestWeight*best.Score + hybridEnsembleWeight*voted.Score,
		Consensus: best.Consensus,
	}
}

// consensusOf measures agreement among agent scores as 1 minus the standard
// deviation normalized by half the 10-point scale, clamped to [0, 1]. A
// single result yields 1.0 by definition.
func consensusOf(scores []float64) float64 {
	if len(scores) <= 1 {
		return 1.0
	}

	var sum float64
	for _, v := range scores {
		sum += v
	}
	mean := sum / float64(len(scores))

	var sq float64
	for _, v := range scores {
		d := v - mean
		sq += d * d
	}
	stdDev := math.Sqrt(sq / float64(len(scores)))

	normalized := stdDev / 5.0
	if normalized > 1 {
		normalized = 1
	}
	return 1 - normalized
}

func scoresOf(results []core.SpecializedOptimizationResult) []float64 {
	scores := make([]float64, len(results))
	for i, result := range results {
		scores[i] = result.BestScore
	}
	return scores
}
