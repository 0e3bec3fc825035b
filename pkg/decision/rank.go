package decision

import (
	"cmp"
	"slices"

	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
)

// Rank returns a new slice ordered by score descending, then cost ascending.
// Remaining ties keep enumeration order, which follows the root's option order.
func Rank(results []models.PathResult) []models.PathResult {
	ranked := slices.Clone(results)
	if ranked == nil {
		ranked = make([]models.PathResult, 0)
	}
	slices.SortStableFunc(ranked, func(a, b models.PathResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Cost, b.Cost)
	})
	return ranked
}

// Recommend returns the top-ranked path, or nil when there is none.
func Recommend(ranked []models.PathResult) *models.PathResult {
	if len(ranked) == 0 {
		return nil
	}
	top := ranked[0]
	return &top
}
