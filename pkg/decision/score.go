package decision

import (
	"math"

	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
)

// Bounds for option and node attributes.
const (
	MinWeight      = 1
	MaxWeight      = 5
	DefaultWeight  = 1
	MaxScore       = 100.0
	MaxProbability = 100.0
	// MaxCost keeps path cost sums finite. Larger costs are clamped.
	MaxCost = 1e12
)

// EffectiveScore is the per-option score accumulated along a path:
// max(0, score - CostPenalty(cost)) * weight.
// Missing values use the permissive defaults (score 0, cost 0, weight 1) and
// out-of-range values are clamped.
func EffectiveScore(opt *models.DecisionOption, weight *int) float64 {
	net := math.Max(0, normalizedScore(opt)-CostPenalty(normalizedCost(opt)))
	return net * float64(normalizedWeight(weight))
}

func normalizedScore(opt *models.DecisionOption) float64 {
	return clamp(opt.ScoreOrDefault(), 0, MaxScore, 0)
}

func normalizedProbability(opt *models.DecisionOption) float64 {
	return clamp(opt.ProbabilityOrDefault(), 0, MaxProbability, MaxProbability)
}

func normalizedCost(opt *models.DecisionOption) float64 {
	c := opt.CostOrDefault()
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	return math.Min(c, MaxCost)
}

func normalizedWeight(w *int) int {
	if w == nil {
		return DefaultWeight
	}
	switch {
	case *w < MinWeight:
		return MinWeight
	case *w > MaxWeight:
		return MaxWeight
	}
	return *w
}

// clamp bounds v to [lo, hi]; NaN becomes fallback.
func clamp(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Min(hi, math.Max(lo, v))
}
