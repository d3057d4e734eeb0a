package stopping

import (
	"context"
	"math"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/logging"
)

// Config contains the thresholds governing the stopping decision.
type Config struct {
	MaxIterations        int     `json:"max_iterations"`
	TargetScore          float64 `json:"target_score"`
	MinIterations        int     `json:"min_iterations"`
	ImprovementThreshold float64 `json:"improvement_threshold"`
	VarianceThreshold    float64 `json:"variance_threshold"`
	PlateauPatience      int     `json:"plateau_patience"`
	ConfidenceThreshold  float64 `json:"confidence_threshold"`
}

// plateauBand is the absolute score band within which trailing iterations
// count as a plateau.
const plateauBand = 0.1

// DefaultConfig derives a stopping configuration from the run budget.
// MinIterations scales with the budget so short runs still get a warmup.
func DefaultConfig(maxIterations int, targetScore float64) Config {
	minIterations := int(math.Round(0.2 * float64(maxIterations)))
	if minIterations < 3 {
		minIterations = 3
	}

	return Config{
		MaxIterations:        maxIterations,
		TargetScore:          targetScore,
		MinIterations:        minIterations,
		ImprovementThreshold: 0.01,
		VarianceThreshold:    0.05,
		PlateauPatience:      5,
		ConfidenceThreshold:  0.8,
	}
}

// Service decides, after each iteration, whether an optimization run should
// stop and why. It is stateless; every decision is recomputed from the
// iteration history it is handed.
type Service struct {
	logger *logging.Logger
}

// NewService creates a stopping service.
func NewService() *Service {
	return &Service{logger: logging.GetLogger()}
}

// CheckStoppingCriteria evaluates the stopping rules in strict priority
// order and returns the first matching decision.
func (s *Service) CheckStoppingCriteria(iterations []core.OptimizationIteration, cfg Config) core.StoppingDecision {
	scores := scoresOf(iterations)

	// Rule 1: nothing has happened yet.
	if len(iterations) == 0 {
		return core.StoppingDecision{
			ShouldStop:        false,
			Reason:            "no iterations completed",
			RecommendedAction: core.ActionContinue,
			Confidence:        1.0,
		}
	}

	// Rule 2: warmup budget not spent.
	if len(iterations) < cfg.MinIterations {
		return core.StoppingDecision{
			ShouldStop:        false,
			Reason:            "minimum iterations not reached",
			RecommendedAction: core.ActionContinue,
			Confidence:        1.0,
		}
	}

	// Rule 3: budget exhausted.
	if len(iterations) >= cfg.MaxIterations {
		return core.StoppingDecision{
			ShouldStop:        true,
			Reason:            "maximum iterations reached",
			RecommendedAction: core.ActionStop,
			Confidence:        1.0,
		}
	}

	// Rule 4: target achieved.
	if maxScore(scores) >= cfg.TargetScore {
		return core.StoppingDecision{
			ShouldStop:        true,
			Reason:            "target score achieved",
			RecommendedAction: core.ActionStop,
			Confidence:        1.0,
		}
	}

	// Rule 5: the score trajectory has converged.
	metrics := s.detectConvergenceWithConfig(scores, cfg)
	if s.converged(scores, metrics, cfg) {
		return core.StoppingDecision{
			ShouldStop:        true,
			Reason:            "convergence detected",
			RecommendedAction: core.ActionStop,
			Confidence:        metrics.ConfidenceLevel,
		}
	}

	return core.StoppingDecision{
		ShouldStop:        false,
		Reason:            "optimization should continue",
		RecommendedAction: core.ActionContinue,
		Confidence:        metrics.ConfidenceLevel,
	}
}

// DetectConvergence computes convergence metrics for a score history using
// the default variance and plateau settings.
func (s *Service) DetectConvergence(scores []float64, improvementThreshold float64) core.ConvergenceMetrics {
	cfg := DefaultConfig(len(scores)+1, math.Inf(1))
	cfg.ImprovementThreshold = improvementThreshold
	return s.detectConvergenceWithConfig(scores, cfg)
}

func (s *Service) detectConvergenceWithConfig(scores []float64, cfg Config) core.ConvergenceMetrics {
	// Fewer than two scores carry no trend information.
	if len(scores) < 2 {
		return core.ConvergenceMetrics{
			ScoreVariance:   1.0,
			ImprovementRate: 0,
			PlateauLength:   0,
			TrendDirection:  core.TrendStable,
			ConfidenceLevel: 0,
		}
	}

	rate := s.ImprovementRate(scores, 0)

	trend := core.TrendStable
	switch {
	case rate > cfg.ImprovementThreshold:
		trend = core.TrendImproving
	case rate < -cfg.ImprovementThreshold:
		trend = core.TrendDeclining
	}

	variance := populationVariance(scores)
	plateau := trailingPlateauLength(scores)

	// Confidence grows with history length and shrinks with noise.
	confidence := clamp01(float64(len(scores))/10.0) * clamp01(1.0-math.Min(1.0, variance))

	return core.ConvergenceMetrics{
		ScoreVariance:   variance,
		ImprovementRate: rate,
		PlateauLength:   plateau,
		TrendDirection:  trend,
		ConfidenceLevel: confidence,
	}
}

// converged flags convergence over the trailing window defined by
// PlateauPatience: low variance and a near-zero improvement rate.
func (s *Service) converged(scores []float64, metrics core.ConvergenceMetrics, cfg Config) bool {
	if len(scores) < 2 {
		return false
	}

	window := scores
	if cfg.PlateauPatience > 0 && len(scores) > cfg.PlateauPatience {
		window = scores[len(scores)-cfg.PlateauPatience:]
	}

	windowVariance := populationVariance(window)
	windowRate := s.ImprovementRate(window, 0)

	return windowVariance < cfg.VarianceThreshold &&
		math.Abs(windowRate) < cfg.ImprovementThreshold
}

// ImprovementRate returns the mean of pairwise deltas over the last
// windowSize scores. A windowSize of 0 uses the full history.
func (s *Service) ImprovementRate(scores []float64, windowSize int) float64 {
	if len(scores) < 2 {
		return 0
	}

	window := scores
	if windowSize > 1 && len(scores) > windowSize {
		window = scores[len(scores)-windowSize:]
	}

	var total float64
	for i := 1; i < len(window); i++ {
		total += window[i] - window[i-1]
	}
	return total / float64(len(window)-1)
}

// DetectPlateau reports whether the trailing patience scores all lie within
// a small absolute band of each other.
func (s *Service) DetectPlateau(scores []float64, patience int) bool {
	if patience <= 0 || len(scores) < patience {
		return false
	}

	window := scores[len(scores)-patience:]
	low, high := window[0], window[0]
	for _, v := range window[1:] {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	return high-low <= plateauBand
}

// PredictOptimalStoppingPoint projects how many iterations remain useful
// from the recent improvement rate. Heuristic, not a guarantee.
func (s *Service) PredictOptimalStoppingPoint(iterations []core.OptimizationIteration) int {
	if len(iterations) < 3 {
		return len(iterations) + 10
	}

	scores := scoresOf(iterations)
	rate := s.ImprovementRate(scores, 5)

	switch {
	case rate <= 0.01:
		// Flat or declining trajectory: stop soon.
		return len(iterations) + 2
	case rate > 0.1:
		// Strong positive trend: keep going well past the default horizon.
		return len(iterations) + 20
	default:
		return len(iterations) + 10
	}
}

// LogDecision emits the decision at DEBUG level for run diagnostics.
func (s *Service) LogDecision(ctx context.Context, decision core.StoppingDecision, iterations int) {
	s.logger.Debug(ctx, "stopping check: iterations=%d should_stop=%v reason=%q confidence=%.2f",
		iterations, decision.ShouldStop, decision.Reason, decision.Confidence)
}

func scoresOf(iterations []core.OptimizationIteration) []float64 {
	scores := make([]float64, len(iterations))
	for i, iter := range iterations {
		scores[i] = iter.ActualScore
	}
	return scores
}

func maxScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	max := scores[0]
	for _, v := range scores[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func populationVariance(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
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
	return sq / float64(len(scores))
}

// trailingPlateauLength counts consecutive trailing scores whose step from
// the previous score stays inside the plateau band.
func trailingPlateauLength(scores []float64) int {
	length := 0
	for i := len(scores) - 1; i > 0; i-- {
		if math.Abs(scores[i]-scores[i-1]) <= plateauBand {
			length++
		} else {
			break
		}
	}
	return length
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
