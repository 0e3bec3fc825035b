package decision

import (
	"context"
	"math"

	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
)

const (
	// ctxCheckInterval is how many emitted paths pass between cancellation checks.
	ctxCheckInterval = 1024
	// maxPrealloc bounds the up-front result allocation when no path limit is set.
	maxPrealloc = 1 << 16
)

// pathState is the accumulator threaded through one branch of the walk.
// It is passed by value; steps is copied on every extension so branches never share it.
type pathState struct {
	steps []string
	score float64
	prob  float64
	cost  float64
}

func (s pathState) extend(step string) pathState {
	steps := make([]string, len(s.steps), len(s.steps)+1)
	copy(steps, s.steps)
	s.steps = append(steps, step)
	return s
}

// choose applies one option's contribution: the running probability is multiplied
// first, and the option's effective score is weighted by the resulting probability.
func (s pathState) choose(n *indexedNode, opt *models.DecisionOption) pathState {
	next := s.extend(n.node.Label + ": " + opt.Text)
	if n.kind == models.NodeKindChance {
		next.prob *= normalizedProbability(opt) / 100
	}
	weight := n.node.Weight
	if !n.kind.IsWeighted() {
		weight = nil
	}
	next.score += EffectiveScore(opt, weight) * next.prob
	next.cost += normalizedCost(opt)
	return next
}

// enumerator walks an indexed tree and emits one PathResult per root-to-leaf route.
type enumerator struct {
	ctx     context.Context
	units   CostUnits
	results []models.PathResult
}

func (e *enumerator) visit(n *indexedNode, state pathState) error {
	if len(n.children) == 0 {
		if len(n.options) == 0 {
			return e.emit(state.extend(n.node.Label))
		}
		for _, opt := range n.options {
			if err := e.emit(state.choose(n, opt)); err != nil {
				return err
			}
		}
		return nil
	}

	if len(n.options) == 0 {
		for _, child := range n.children {
			if err := e.visit(child, state); err != nil {
				return err
			}
		}
		return nil
	}

	for _, opt := range n.options {
		chosen := state.choose(n, opt)
		for _, child := range n.children {
			if err := e.visit(child, chosen); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *enumerator) emit(state pathState) error {
	e.results = append(e.results, models.PathResult{
		PathDescription:    state.steps,
		Score:              state.score,
		ProbabilityPercent: state.prob * 100,
		Cost:               state.cost,
		FormattedCost:      e.units.Format(state.cost),
	})
	if len(e.results)%ctxCheckInterval == 0 {
		return e.ctx.Err()
	}
	return nil
}

// enumeratePaths runs the walk from the root of a validated tree.
func enumeratePaths(ctx context.Context, idx *indexedTree, units CostUnits, expected int) ([]models.PathResult, error) {
	e := &enumerator{
		ctx:     ctx,
		units:   units,
		results: make([]models.PathResult, 0, min(expected, maxPrealloc)),
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.visit(idx.root, pathState{prob: 1}); err != nil {
		return nil, err
	}
	return e.results, nil
}

// ============================================================================
// Size guard
// ============================================================================

// countPaths returns the exact number of paths the walk would emit, saturating at
// math.MaxInt instead of overflowing.
func countPaths(n *indexedNode) int {
	branches := max(1, len(n.options))
	if len(n.children) == 0 {
		return branches
	}
	below := 0
	for _, child := range n.children {
		below = saturatingAdd(below, countPaths(child))
	}
	return saturatingMul(branches, below)
}

// treeDepth returns the number of nodes on the longest root-to-leaf route.
func treeDepth(n *indexedNode) int {
	deepest := 0
	for _, child := range n.children {
		deepest = max(deepest, treeDepth(child))
	}
	return deepest + 1
}

func saturatingAdd(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func saturatingMul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}

// checkSize enforces the configured bounds before any path is produced.
// It returns the exact path count so the result slice can be sized once.
func checkSize(idx *indexedTree, limits Limits) (int, error) {
	if nodes := len(idx.nodes); limits.MaxNodes > 0 && nodes > limits.MaxNodes {
		return 0, &TreeTooLargeError{Limit: SizeLimitNodes, Max: limits.MaxNodes, Actual: nodes}
	}
	if depth := treeDepth(idx.root); limits.MaxDepth > 0 && depth > limits.MaxDepth {
		return 0, &TreeTooLargeError{Limit: SizeLimitDepth, Max: limits.MaxDepth, Actual: depth}
	}
	paths := countPaths(idx.root)
	if limits.MaxPaths > 0 && paths > limits.MaxPaths {
		return 0, &TreeTooLargeError{Limit: SizeLimitPaths, Max: limits.MaxPaths, Actual: paths}
	}
	return paths, nil
}
