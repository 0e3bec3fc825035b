// Package decision evaluates weighted decision trees.
//
// A tree of Decision, Chance and Outcome nodes is validated, every root-to-leaf
// path is enumerated with its cumulative score, probability and cost, and the
// paths are ranked to recommend a course of action. The package is pure: it does
// no I/O and keeps no state between calls, so one Engine can serve concurrent
// evaluations of different trees.
//
// Enumeration is exponential in depth times branching (the product of
// options-per-node along every path). Manual trees of depth <= 6 and branching
// <= 5 are well within range; Limits bounds anything larger and Evaluate fails
// with *TreeTooLargeError before producing any result.
package decision

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
)

// Limits bounds the work a single evaluation may do. Zero disables a bound.
type Limits struct {
	MaxNodes int
	MaxDepth int
	MaxPaths int
	// ProbabilityTolerance is how far a chance node's probabilities may sum from 100
	// before a warning is raised.
	ProbabilityTolerance float64
}

// DefaultLimits returns bounds that comfortably cover hand-built trees.
func DefaultLimits() Limits {
	return Limits{
		MaxNodes:             500,
		MaxDepth:             12,
		MaxPaths:             100_000,
		ProbabilityTolerance: 0.01,
	}
}

// Engine validates and evaluates decision trees. It is safe for concurrent use.
type Engine struct {
	limits Limits
	units  CostUnits
	now    func() time.Time
}

// NewEngine creates an Engine. A negative tolerance falls back to the default.
func NewEngine(limits Limits, units CostUnits) *Engine {
	if limits.ProbabilityTolerance < 0 {
		limits.ProbabilityTolerance = DefaultLimits().ProbabilityTolerance
	}
	return &Engine{
		limits: limits,
		units:  units.withDefaults(),
		now:    time.Now,
	}
}

// Limits returns the configured bounds.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Units returns the cost display units.
func (e *Engine) Units() CostUnits {
	return e.units
}

// Validate checks a tree's structure without evaluating it.
func (e *Engine) Validate(tree *models.DecisionTree, nodes []models.DecisionNode, options []models.DecisionOption) *models.ValidationReport {
	report, _ := validateTree(tree, nodes, options, e.limits.ProbabilityTolerance)
	return report
}

// Evaluate validates the tree, enumerates every path and ranks the results.
//
// Structural problems return *ValidationError and trees over the configured
// limits return *TreeTooLargeError; in both cases no partial result is returned.
// Warnings such as chance probabilities not summing to 100 are carried on the
// result and the probabilities are used as given.
func (e *Engine) Evaluate(ctx context.Context, tree *models.DecisionTree, nodes []models.DecisionNode, options []models.DecisionOption) (*models.TreeEvaluation, error) {
	report, idx := validateTree(tree, nodes, options, e.limits.ProbabilityTolerance)
	if report.HasErrors() {
		return nil, &ValidationError{Findings: report.Errors()}
	}

	expected, err := checkSize(idx, e.limits)
	if err != nil {
		return nil, err
	}

	results, err := enumeratePaths(ctx, idx, e.units, expected)
	if err != nil {
		return nil, err
	}

	ranked := Rank(results)
	return &models.TreeEvaluation{
		TreeID:      report.TreeID,
		Ranked:      ranked,
		Recommended: Recommend(ranked),
		PathCount:   len(ranked),
		Warnings:    report.Warnings(),
		EvaluatedAt: e.now().UTC(),
	}, nil
}

// EvaluateSnapshot is Evaluate over a snapshot bundle.
// A nil snapshot is treated as an empty tree and fails with no_root.
func (e *Engine) EvaluateSnapshot(ctx context.Context, snap *models.DecisionTreeSnapshot) (*models.TreeEvaluation, error) {
	if snap == nil {
		snap = &models.DecisionTreeSnapshot{}
	}
	return e.Evaluate(ctx, snap.Tree, snap.Nodes, snap.Options)
}

// ValidateSnapshot is Validate over a snapshot bundle.
func (e *Engine) ValidateSnapshot(snap *models.DecisionTreeSnapshot) *models.ValidationReport {
	if snap == nil {
		snap = &models.DecisionTreeSnapshot{}
	}
	return e.Validate(snap.Tree, snap.Nodes, snap.Options)
}
