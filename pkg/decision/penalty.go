package decision

import "math"

// MaxCostPenalty is the largest deduction any cost can produce.
const MaxCostPenalty = 40.0

// Cost tiers, in base units.
const (
	lowCostCeiling = 1_000.0
	midCostCeiling = 10_000.0
	highCostSpan   = 90_000.0
	tierPenalty    = 10.0
	lowTierPenalty = tierPenalty
	midTierPenalty = 2 * tierPenalty
)

// CostPenalty maps a monetary cost to a deduction in [0, MaxCostPenalty].
//
//	cost <= 1,000          -> cost/1,000 * 10
//	1,000 < cost <= 10,000 -> 10 + (cost-1,000)/9,000 * 10
//	cost > 10,000          -> 20 + (cost-10,000)/90,000 * 10, capped at 40
//
// The curve is monotonic and saturates so large costs limit an option without
// wiping out its score. Negative and NaN costs carry no penalty.
func CostPenalty(cost float64) float64 {
	switch {
	case math.IsNaN(cost) || cost <= 0:
		return 0
	case cost <= lowCostCeiling:
		return cost / lowCostCeiling * tierPenalty
	case cost <= midCostCeiling:
		return lowTierPenalty + (cost-lowCostCeiling)/(midCostCeiling-lowCostCeiling)*tierPenalty
	default:
		return math.Min(MaxCostPenalty, midTierPenalty+(cost-midCostCeiling)/highCostSpan*tierPenalty)
	}
}
