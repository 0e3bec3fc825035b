package decision

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
)

// indexedNode is a validated node with its children and options resolved.
type indexedNode struct {
	node     *models.DecisionNode
	kind     models.NodeKind
	children []*indexedNode
	options  []*models.DecisionOption
}

// indexedTree is the arena built during validation and consumed by enumeration.
// Parent ids stay back-references; ownership runs through children.
type indexedTree struct {
	root  *indexedNode
	nodes map[uuid.UUID]*indexedNode
	order []*indexedNode
}

// validator accumulates findings while indexing a tree.
type validator struct {
	tolerance float64
	report    *models.ValidationReport
}

func (v *validator) add(sev models.FindingSeverity, code string, nodeID, optionID *uuid.UUID, format string, args ...any) {
	v.report.Findings = append(v.report.Findings, models.ValidationFinding{
		Severity: sev,
		Code:     code,
		NodeID:   nodeID,
		OptionID: optionID,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (v *validator) fail(code string, nodeID, optionID *uuid.UUID, format string, args ...any) {
	v.add(models.FindingSeverityError, code, nodeID, optionID, format, args...)
}

func (v *validator) warn(code string, nodeID, optionID *uuid.UUID, format string, args ...any) {
	v.add(models.FindingSeverityWarning, code, nodeID, optionID, format, args...)
}

// validateTree checks structural invariants and builds the child adjacency once.
// The returned index is only usable when the report has no errors.
func validateTree(tree *models.DecisionTree, nodes []models.DecisionNode, options []models.DecisionOption, tolerance float64) (*models.ValidationReport, *indexedTree) {
	report := &models.ValidationReport{Findings: make([]models.ValidationFinding, 0)}
	if tree != nil {
		report.TreeID = tree.ID
	}
	v := &validator{tolerance: tolerance, report: report}
	idx := &indexedTree{nodes: make(map[uuid.UUID]*indexedNode, len(nodes))}

	v.indexNodes(tree, nodes, idx)
	roots := v.checkRoots(idx)
	v.linkChildren(idx)
	v.checkReachability(idx, roots)
	if len(roots) == 1 {
		idx.root = roots[0]
	}
	v.attachOptions(options, idx)
	v.checkNodes(idx)

	return report, idx
}

// indexNodes builds the arena. A repeated id replaces the earlier record in place.
func (v *validator) indexNodes(tree *models.DecisionTree, nodes []models.DecisionNode, idx *indexedTree) {
	for i := range nodes {
		n := &nodes[i]
		id := n.ID

		if tree != nil && n.TreeID != uuid.Nil && n.TreeID != tree.ID {
			v.fail(models.FindingForeignNode, &id, nil,
				"node %q belongs to tree %s, not %s", n.Label, n.TreeID, tree.ID)
			continue
		}

		kind, ok := models.ParseNodeKind(string(n.Kind))
		if !ok {
			v.fail(models.FindingUnknownKind, &id, nil,
				"node %q has unknown kind %q", n.Label, n.Kind)
		}

		if existing, dup := idx.nodes[id]; dup {
			existing.node = n
			existing.kind = kind
			continue
		}
		in := &indexedNode{node: n, kind: kind}
		idx.nodes[id] = in
		idx.order = append(idx.order, in)
	}
}

func (v *validator) checkRoots(idx *indexedTree) []*indexedNode {
	var roots []*indexedNode
	for _, n := range idx.order {
		if n.node.ParentID == nil {
			roots = append(roots, n)
		}
	}

	switch {
	case len(roots) == 0:
		v.fail(models.FindingNoRoot, nil, nil, "tree has no root node (a node without a parent)")
	case len(roots) > 1:
		for _, r := range roots {
			id := r.node.ID
			v.fail(models.FindingMultipleRoots, &id, nil,
				"node %q is one of %d root nodes; a tree must have exactly one", r.node.Label, len(roots))
		}
	}
	return roots
}

func (v *validator) linkChildren(idx *indexedTree) {
	for _, n := range idx.order {
		if n.node.ParentID == nil {
			continue
		}
		id := n.node.ID
		parentID := *n.node.ParentID
		parent, ok := idx.nodes[parentID]
		if !ok {
			v.fail(models.FindingDanglingParent, &id, nil,
				"node %q references missing parent %s", n.node.Label, parentID)
			continue
		}
		if parent == n {
			v.fail(models.FindingCycleDetected, &id, nil,
				"node %q is its own parent", n.node.Label)
			continue
		}
		parent.children = append(parent.children, n)
	}
}

// checkReachability walks from the roots and classifies every node none of them reach.
func (v *validator) checkReachability(idx *indexedTree, roots []*indexedNode) {
	visited := make(map[uuid.UUID]bool, len(idx.order))
	stack := append([]*indexedNode(nil), roots...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current.node.ID] {
			continue
		}
		visited[current.node.ID] = true
		for _, child := range current.children {
			if !visited[child.node.ID] {
				stack = append(stack, child)
			}
		}
	}

	states := make(map[uuid.UUID]reachState)
	for _, n := range idx.order {
		if visited[n.node.ID] || states[n.node.ID] != stateUnknown {
			continue
		}
		v.classifyUnreachable(n, idx, states)
	}
}

type reachState int

const (
	stateUnknown reachState = iota
	// stateDetached chains end at a missing parent or a second root, both reported elsewhere.
	stateDetached
	// stateCyclic nodes sit on a parent cycle or below one.
	stateCyclic
)

// classifyUnreachable follows parent links from start. A chain that returns to itself is
// a cycle; nodes hanging below a cycle are unreachable.
func (v *validator) classifyUnreachable(start *indexedNode, idx *indexedTree, states map[uuid.UUID]reachState) {
	var path []*indexedNode
	position := make(map[uuid.UUID]int)
	outcome := stateDetached
	below := 0

	current := start
	for {
		id := current.node.ID
		if st := states[id]; st != stateUnknown {
			outcome = st
			below = len(path)
			break
		}
		if at, seen := position[id]; seen {
			cycle := path[at:]
			first := cycle[0].node.ID
			v.fail(models.FindingCycleDetected, &first, nil,
				"node %q is part of a parent cycle of %d nodes", cycle[0].node.Label, len(cycle))
			outcome = stateCyclic
			below = at
			break
		}
		position[id] = len(path)
		path = append(path, current)

		if current.node.ParentID == nil {
			break
		}
		parent, ok := idx.nodes[*current.node.ParentID]
		if !ok || parent == current {
			break
		}
		current = parent
	}

	if outcome == stateCyclic {
		for _, n := range path[:below] {
			nid := n.node.ID
			v.fail(models.FindingUnreachableNode, &nid, nil,
				"node %q is only reachable through a cycle", n.node.Label)
		}
	}
	for _, n := range path {
		states[n.node.ID] = outcome
	}
}

// attachOptions groups options under their nodes in input order.
// A repeated option id replaces the earlier record in place.
func (v *validator) attachOptions(options []models.DecisionOption, idx *indexedTree) {
	position := make(map[uuid.UUID]int, len(options))
	unique := make([]*models.DecisionOption, 0, len(options))
	for i := range options {
		opt := &options[i]
		if at, dup := position[opt.ID]; dup {
			unique[at] = opt
			continue
		}
		position[opt.ID] = len(unique)
		unique = append(unique, opt)
	}

	for _, opt := range unique {
		owner, ok := idx.nodes[opt.NodeID]
		if !ok {
			optID := opt.ID
			v.fail(models.FindingDanglingOption, nil, &optID,
				"option %q references missing node %s", opt.Text, opt.NodeID)
			continue
		}
		owner.options = append(owner.options, opt)
	}
}

func (v *validator) checkNodes(idx *indexedTree) {
	for _, n := range idx.order {
		id := n.node.ID

		if n.kind.IsWeighted() && n.node.Weight != nil {
			if w := *n.node.Weight; w < MinWeight || w > MaxWeight {
				v.warn(models.FindingWeightOutOfRange, &id, nil,
					"node %q has weight %d outside [%d, %d]; using %d",
					n.node.Label, w, MinWeight, MaxWeight, normalizedWeight(n.node.Weight))
			}
		}

		if n.kind == models.NodeKindOutcome && len(n.options) > 0 {
			v.warn(models.FindingOutcomeHasOptions, &id, nil,
				"outcome node %q has %d options; outcome nodes are normally leaves without options",
				n.node.Label, len(n.options))
		}

		if n.kind.IsWeighted() && len(n.children) == 0 && len(n.options) == 0 {
			v.warn(models.FindingEmptyLeaf, &id, nil,
				"%s node %q has neither options nor children", n.kind, n.node.Label)
		}

		for _, opt := range n.options {
			v.checkOption(n, opt)
		}

		if n.kind == models.NodeKindChance && len(n.options) > 0 {
			sum := 0.0
			for _, opt := range n.options {
				sum += normalizedProbability(opt)
			}
			if math.Abs(sum-MaxProbability) > v.tolerance {
				v.warn(models.FindingProbabilitySum, &id, nil,
					"probabilities of chance node %q sum to %.2f, expected 100", n.node.Label, sum)
			}
		}
	}
}

func (v *validator) checkOption(owner *indexedNode, opt *models.DecisionOption) {
	nodeID := owner.node.ID
	optID := opt.ID

	if opt.Score != nil {
		if s := *opt.Score; math.IsNaN(s) || s < 0 || s > MaxScore {
			v.warn(models.FindingScoreOutOfRange, &nodeID, &optID,
				"option %q has score %v outside [0, 100]", opt.Text, s)
		}
	}
	if opt.Probability != nil {
		if p := *opt.Probability; math.IsNaN(p) || p < 0 || p > MaxProbability {
			v.warn(models.FindingProbabilityOutOfRange, &nodeID, &optID,
				"option %q has probability %v outside [0, 100]", opt.Text, p)
		}
	}
	if opt.Cost != nil {
		if c := *opt.Cost; math.IsNaN(c) || c < 0 {
			v.warn(models.FindingNegativeCost, &nodeID, &optID,
				"option %q has invalid cost %v; treating it as 0", opt.Text, c)
		} else if c > MaxCost {
			v.warn(models.FindingCostTooLarge, &nodeID, &optID,
				"option %q has cost %v above %g; clamping it", opt.Text, c, MaxCost)
		}
	}
}
