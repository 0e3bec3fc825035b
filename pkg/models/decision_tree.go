package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Node Kind
// ============================================================================

// NodeKind is the closed set of node variants in a decision tree.
type NodeKind string

const (
	NodeKindDecision NodeKind = "Decision"
	NodeKindChance   NodeKind = "Chance"
	NodeKindOutcome  NodeKind = "Outcome"
)

// ValidNodeKinds contains all valid node kinds.
var ValidNodeKinds = []NodeKind{
	NodeKindDecision,
	NodeKindChance,
	NodeKindOutcome,
}

// ParseNodeKind normalizes a stored kind value. Canonical names match
// case-insensitively; legacy editor labels are also accepted.
func ParseNodeKind(s string) (NodeKind, bool) {
	s = strings.TrimSpace(s)
	for _, k := range ValidNodeKinds {
		if strings.EqualFold(s, string(k)) {
			return k, true
		}
	}
	// Labels stored by the earlier form-based editor.
	switch s {
	case "의사결정":
		return NodeKindDecision, true
	case "확률":
		return NodeKindChance, true
	case "결과":
		return NodeKindOutcome, true
	}
	return "", false
}

// IsValid reports whether k is one of the canonical kinds.
func (k NodeKind) IsValid() bool {
	switch k {
	case NodeKindDecision, NodeKindChance, NodeKindOutcome:
		return true
	}
	return false
}

// IsWeighted returns true for kinds whose importance weight takes part in scoring.
func (k NodeKind) IsWeighted() bool {
	return k == NodeKindDecision || k == NodeKindChance
}

// ============================================================================
// Records
// ============================================================================

// DecisionTree identifies one decision problem.
type DecisionTree struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DecisionNode is a point in a decision tree. ParentID is nil only for the root.
type DecisionNode struct {
	ID        uuid.UUID  `json:"id"`
	TreeID    uuid.UUID  `json:"tree_id"`
	ParentID  *uuid.UUID `json:"parent_id"`
	Kind      NodeKind   `json:"kind"`
	Label     string     `json:"label"`
	Weight    *int       `json:"weight,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsRoot returns true if the node has no parent.
func (n *DecisionNode) IsRoot() bool {
	return n.ParentID == nil
}

// DecisionOption is a choice attached to a node.
// Nil Score, Probability and Cost fall back to 0, 100 and 0.
type DecisionOption struct {
	ID          uuid.UUID `json:"id"`
	NodeID      uuid.UUID `json:"node_id"`
	Text        string    `json:"text"`
	Score       *float64  `json:"score,omitempty"`
	Probability *float64  `json:"probability,omitempty"`
	Cost        *float64  `json:"cost,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScoreOrDefault returns the raw score, 0 when unset.
func (o *DecisionOption) ScoreOrDefault() float64 {
	if o.Score == nil {
		return 0
	}
	return *o.Score
}

// ProbabilityOrDefault returns the probability in percent, 100 when unset.
func (o *DecisionOption) ProbabilityOrDefault() float64 {
	if o.Probability == nil {
		return 100
	}
	return *o.Probability
}

// CostOrDefault returns the cost in base units, 0 when unset.
func (o *DecisionOption) CostOrDefault() float64 {
	if o.Cost == nil {
		return 0
	}
	return *o.Cost
}

// DecisionTreeSnapshot is the full record set of one tree, read at a single point in time.
type DecisionTreeSnapshot struct {
	Tree    *DecisionTree    `json:"tree"`
	Nodes   []DecisionNode   `json:"nodes"`
	Options []DecisionOption `json:"options"`
}

// ============================================================================
// Validation
// ============================================================================

// FindingSeverity separates findings that block evaluation from advisory ones.
type FindingSeverity string

const (
	FindingSeverityError   FindingSeverity = "error"
	FindingSeverityWarning FindingSeverity = "warning"
)

// Finding codes.
const (
	FindingNoRoot                = "no_root"
	FindingMultipleRoots         = "multiple_roots"
	FindingForeignNode           = "foreign_node"
	FindingDanglingParent        = "dangling_parent"
	FindingCycleDetected         = "cycle_detected"
	FindingUnreachableNode       = "unreachable_node"
	FindingUnknownKind           = "unknown_kind"
	FindingDanglingOption        = "dangling_option"
	FindingWeightOutOfRange      = "weight_out_of_range"
	FindingProbabilitySum        = "probability_sum"
	FindingScoreOutOfRange       = "score_out_of_range"
	FindingProbabilityOutOfRange = "probability_out_of_range"
	FindingNegativeCost          = "negative_cost"
	FindingCostTooLarge          = "cost_too_large"
	FindingOutcomeHasOptions     = "outcome_has_options"
	FindingEmptyLeaf             = "empty_leaf"
)

// ValidationFinding is a single problem found in a tree.
type ValidationFinding struct {
	Severity FindingSeverity `json:"severity"`
	Code     string          `json:"code"`
	NodeID   *uuid.UUID      `json:"node_id,omitempty"`
	OptionID *uuid.UUID      `json:"option_id,omitempty"`
	Message  string          `json:"message"`
}

// IsError returns true if the finding blocks evaluation.
func (f ValidationFinding) IsError() bool {
	return f.Severity == FindingSeverityError
}

// ValidationReport collects every finding for one tree.
type ValidationReport struct {
	TreeID   uuid.UUID           `json:"tree_id"`
	Findings []ValidationFinding `json:"findings"`
}

// Errors returns the findings that block evaluation.
func (r *ValidationReport) Errors() []ValidationFinding {
	return r.filter(FindingSeverityError)
}

// Warnings returns the advisory findings.
func (r *ValidationReport) Warnings() []ValidationFinding {
	return r.filter(FindingSeverityWarning)
}

// HasErrors returns true if evaluation must not proceed.
func (r *ValidationReport) HasErrors() bool {
	for _, f := range r.Findings {
		if f.IsError() {
			return true
		}
	}
	return false
}

func (r *ValidationReport) filter(sev FindingSeverity) []ValidationFinding {
	out := make([]ValidationFinding, 0)
	for _, f := range r.Findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// ============================================================================
// Evaluation Results
// ============================================================================

// PathResult is the aggregate of one complete root-to-leaf route.
type PathResult struct {
	PathDescription    []string `json:"path_description"`
	Score              float64  `json:"score"`
	ProbabilityPercent float64  `json:"probability_percent"`
	Cost               float64  `json:"cost"`
	FormattedCost      string   `json:"formatted_cost"`
}

// TreeEvaluation is the ranked output of one evaluation run.
type TreeEvaluation struct {
	TreeID      uuid.UUID           `json:"tree_id"`
	Ranked      []PathResult        `json:"ranked"`
	Recommended *PathResult         `json:"recommended"`
	PathCount   int                 `json:"path_count"`
	Warnings    []ValidationFinding `json:"warnings"`
	EvaluatedAt time.Time           `json:"evaluated_at"`
}

// Top returns the evaluation with only the first n ranked paths; n <= 0 keeps all.
// PathCount still reports every path that was evaluated.
func (e *TreeEvaluation) Top(n int) *TreeEvaluation {
	if n <= 0 || len(e.Ranked) <= n {
		return e
	}
	trimmed := *e
	trimmed.Ranked = e.Ranked[:n]
	return &trimmed
}

// RecommendationExplanation is an LLM-written rationale for an evaluation.
type RecommendationExplanation struct {
	TreeID      uuid.UUID   `json:"tree_id"`
	Recommended *PathResult `json:"recommended"`
	Explanation string      `json:"explanation"`
	Model       string      `json:"model"`
}
