package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-decisions/pkg/decision"
	"github.com/ekaya-inc/ekaya-decisions/pkg/metrics"
	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
)

type decisionTreeServiceFixture struct {
	repo      *mockDecisionTreeRepo
	metrics   *metrics.Collector
	svc       DecisionTreeService
	projectID uuid.UUID
}

func newDecisionTreeServiceFixture(t *testing.T, limits decision.Limits) *decisionTreeServiceFixture {
	t.Helper()
	repo := newMockDecisionTreeRepo()
	collector := metrics.NewCollector("test")
	engine := decision.NewEngine(limits, decision.DefaultCostUnits())
	return &decisionTreeServiceFixture{
		repo:      repo,
		metrics:   collector,
		svc:       NewDecisionTreeService(repo, engine, time.Second, collector, zap.NewNop()),
		projectID: uuid.New(),
	}
}

func ptr[T any](v T) *T {
	return &v
}

func (f *decisionTreeServiceFixture) tree(t *testing.T) *models.DecisionTree {
	t.Helper()
	tree, err := f.svc.CreateTree(context.Background(), f.projectID, &models.DecisionTree{Title: "  Expand to Busan  "})
	require.NoError(t, err)
	return tree
}

func (f *decisionTreeServiceFixture) node(t *testing.T, treeID uuid.UUID, parent *uuid.UUID, kind models.NodeKind, label string) uuid.UUID {
	t.Helper()
	node, err := f.svc.PutNode(context.Background(), f.projectID, treeID, &models.DecisionNode{
		ID: uuid.New(), ParentID: parent, Kind: kind, Label: label,
	})
	require.NoError(t, err)
	return node.ID
}

func (f *decisionTreeServiceFixture) option(t *testing.T, treeID, nodeID uuid.UUID, text string, score, probability, cost *float64) {
	t.Helper()
	_, err := f.svc.PutOption(context.Background(), f.projectID, treeID, &models.DecisionOption{
		ID: uuid.New(), NodeID: nodeID, Text: text, Score: score, Probability: probability, Cost: cost,
	})
	require.NoError(t, err)
}

func (f *decisionTreeServiceFixture) evaluations(outcome string) float64 {
	return testutil.ToFloat64(f.metrics.Evaluations.WithLabelValues(outcome))
}

// ============================================================================
// Trees
// ============================================================================

func TestDecisionTreeService_CreateTree(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())

	tree := f.tree(t)

	assert.NotEqual(t, uuid.Nil, tree.ID)
	assert.Equal(t, f.projectID, tree.ProjectID)
	assert.Equal(t, "Expand to Busan", tree.Title)

	trees, err := f.svc.ListTrees(context.Background(), f.projectID)
	require.NoError(t, err)
	require.Len(t, trees, 1)
}

func TestDecisionTreeService_CreateTree_RequiresTitle(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())

	_, err := f.svc.CreateTree(context.Background(), f.projectID, &models.DecisionTree{Title: "   "})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDecisionTreeService_GetTree_NotFound(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())

	_, err := f.svc.GetTree(context.Background(), f.projectID, uuid.New())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDecisionTreeService_DeleteTree_NotFound(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())

	err := f.svc.DeleteTree(context.Background(), f.projectID, uuid.New())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ============================================================================
// Nodes and options
// ============================================================================

func TestDecisionTreeService_PutNode_NormalizesKind(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	tree := f.tree(t)

	node, err := f.svc.PutNode(context.Background(), f.projectID, tree.ID, &models.DecisionNode{
		ID: uuid.New(), Kind: models.NodeKind("확률"), Label: " Demand ",
	})

	require.NoError(t, err)
	assert.Equal(t, models.NodeKindChance, node.Kind)
	assert.Equal(t, "Demand", node.Label)
	assert.Equal(t, tree.ID, node.TreeID)
}

func TestDecisionTreeService_PutNode_InvalidInput(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	tree := f.tree(t)
	self := uuid.New()

	tests := []struct {
		name string
		node models.DecisionNode
	}{
		{"missing id", models.DecisionNode{Kind: models.NodeKindDecision, Label: "x"}},
		{"empty label", models.DecisionNode{ID: uuid.New(), Kind: models.NodeKindDecision, Label: " "}},
		{"unknown kind", models.DecisionNode{ID: uuid.New(), Kind: "Maybe", Label: "x"}},
		{"self parent", models.DecisionNode{ID: self, ParentID: &self, Kind: models.NodeKindDecision, Label: "x"}},
		{"missing parent", models.DecisionNode{ID: uuid.New(), ParentID: ptr(uuid.New()), Kind: models.NodeKindDecision, Label: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := tt.node
			_, err := f.svc.PutNode(context.Background(), f.projectID, tree.ID, &node)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestDecisionTreeService_PutNode_ParentInOtherTree(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	treeA := f.tree(t)
	treeB := f.tree(t)
	rootA := f.node(t, treeA.ID, nil, models.NodeKindDecision, "Root A")

	_, err := f.svc.PutNode(context.Background(), f.projectID, treeB.ID, &models.DecisionNode{
		ID: uuid.New(), ParentID: &rootA, Kind: models.NodeKindOutcome, Label: "Stray",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "is not part of tree")
}

func TestDecisionTreeService_PutNode_MissingTree(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())

	_, err := f.svc.PutNode(context.Background(), f.projectID, uuid.New(), &models.DecisionNode{
		ID: uuid.New(), Kind: models.NodeKindDecision, Label: "Root",
	})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDecisionTreeService_PutOption_NodeMustBelongToTree(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	treeA := f.tree(t)
	treeB := f.tree(t)
	rootA := f.node(t, treeA.ID, nil, models.NodeKindDecision, "Root A")

	_, err := f.svc.PutOption(context.Background(), f.projectID, treeB.ID, &models.DecisionOption{
		ID: uuid.New(), NodeID: rootA, Text: "Go",
	})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDecisionTreeService_PutOption_CannotMoveAcrossTrees(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	treeA := f.tree(t)
	treeB := f.tree(t)
	rootA := f.node(t, treeA.ID, nil, models.NodeKindDecision, "Root A")
	rootB := f.node(t, treeB.ID, nil, models.NodeKindDecision, "Root B")

	option := &models.DecisionOption{ID: uuid.New(), NodeID: rootA, Text: "Go"}
	_, err := f.svc.PutOption(context.Background(), f.projectID, treeA.ID, option)
	require.NoError(t, err)

	moved := &models.DecisionOption{ID: option.ID, NodeID: rootB, Text: "Go"}
	_, err = f.svc.PutOption(context.Background(), f.projectID, treeB.ID, moved)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDecisionTreeService_PutOption_RequiresText(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	tree := f.tree(t)
	root := f.node(t, tree.ID, nil, models.NodeKindDecision, "Root")

	_, err := f.svc.PutOption(context.Background(), f.projectID, tree.ID, &models.DecisionOption{
		ID: uuid.New(), NodeID: root, Text: "",
	})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// ============================================================================
// Validation and evaluation
// ============================================================================

func TestDecisionTreeService_Evaluate(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	tree := f.tree(t)
	root := f.node(t, tree.ID, nil, models.NodeKindDecision, "Office")
	f.option(t, tree.ID, root, "Busan", ptr(80.0), nil, ptr(5000.0))
	f.option(t, tree.ID, root, "Stay", ptr(40.0), nil, nil)

	result, err := f.svc.Evaluate(context.Background(), f.projectID, tree.ID)

	require.NoError(t, err)
	assert.Equal(t, tree.ID, result.TreeID)
	assert.Equal(t, 2, result.PathCount)
	require.NotNil(t, result.Recommended)
	assert.Equal(t, []string{"Office: Busan"}, result.Recommended.PathDescription)
	assert.Equal(t, "5,000만원", result.Recommended.FormattedCost)
	assert.Equal(t, 1.0, f.evaluations(metrics.OutcomeOK))
}

func TestDecisionTreeService_Evaluate_Invalid(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	tree := f.tree(t)
	f.node(t, tree.ID, nil, models.NodeKindDecision, "Root one")
	f.node(t, tree.ID, nil, models.NodeKindDecision, "Root two")

	_, err := f.svc.Evaluate(context.Background(), f.projectID, tree.ID)

	var validationErr *decision.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, models.FindingMultipleRoots, validationErr.Findings[0].Code)
	assert.Equal(t, 1.0, f.evaluations(metrics.OutcomeInvalid))
}

func TestDecisionTreeService_Evaluate_TooLarge(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.Limits{MaxPaths: 2})
	tree := f.tree(t)
	root := f.node(t, tree.ID, nil, models.NodeKindDecision, "Root")
	for _, text := range []string{"a", "b", "c"} {
		f.option(t, tree.ID, root, text, ptr(1.0), nil, nil)
	}

	_, err := f.svc.Evaluate(context.Background(), f.projectID, tree.ID)

	var tooLarge *decision.TreeTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, 3, tooLarge.Actual)
	assert.Equal(t, 1.0, f.evaluations(metrics.OutcomeTooLarge))
}

func TestDecisionTreeService_Evaluate_Timeout(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	tree := f.tree(t)
	f.node(t, tree.ID, nil, models.NodeKindOutcome, "Only")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.svc.Evaluate(ctx, f.projectID, tree.ID)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1.0, f.evaluations(metrics.OutcomeTimeout))
}

func TestDecisionTreeService_Evaluate_NotFound(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())

	_, err := f.svc.Evaluate(context.Background(), f.projectID, uuid.New())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDecisionTreeService_Evaluate_RepositoryError(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	f.repo.snapshotErr = errors.New("connection reset")

	_, err := f.svc.Evaluate(context.Background(), f.projectID, uuid.New())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDecisionTreeService_Validate(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	tree := f.tree(t)
	root := f.node(t, tree.ID, nil, models.NodeKindChance, "Demand")
	f.option(t, tree.ID, root, "High", ptr(50.0), ptr(60.0), nil)

	report, err := f.svc.Validate(context.Background(), f.projectID, tree.ID)

	require.NoError(t, err)
	assert.False(t, report.HasErrors())
	require.Len(t, report.Warnings(), 1)
	assert.Equal(t, models.FindingProbabilitySum, report.Warnings()[0].Code)
}

func TestDecisionTreeService_EvaluateSnapshot_RequiresTree(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())

	_, err := f.svc.EvaluateSnapshot(context.Background(), &models.DecisionTreeSnapshot{})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDecisionTreeService_DeleteNode_CascadesToSubtree(t *testing.T) {
	f := newDecisionTreeServiceFixture(t, decision.DefaultLimits())
	tree := f.tree(t)
	root := f.node(t, tree.ID, nil, models.NodeKindDecision, "Root")
	child := f.node(t, tree.ID, &root, models.NodeKindChance, "Child")
	f.node(t, tree.ID, &child, models.NodeKindOutcome, "Leaf")
	f.option(t, tree.ID, child, "Up", ptr(10.0), ptr(100.0), nil)

	require.NoError(t, f.svc.DeleteNode(context.Background(), f.projectID, tree.ID, child))

	snap, err := f.svc.GetTree(context.Background(), f.projectID, tree.ID)
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.Empty(t, snap.Options)
}
