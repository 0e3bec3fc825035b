package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-decisions/pkg/decision"
	"github.com/ekaya-inc/ekaya-decisions/pkg/logging"
	"github.com/ekaya-inc/ekaya-decisions/pkg/metrics"
	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
	"github.com/ekaya-inc/ekaya-decisions/pkg/repositories"
)

// DecisionTreeService manages decision trees and evaluates them.
type DecisionTreeService interface {
	// CreateTree stores a new, empty tree.
	CreateTree(ctx context.Context, projectID uuid.UUID, tree *models.DecisionTree) (*models.DecisionTree, error)

	// GetTree returns the tree with all of its nodes and options.
	GetTree(ctx context.Context, projectID, treeID uuid.UUID) (*models.DecisionTreeSnapshot, error)

	// ListTrees returns the project's trees, oldest first.
	ListTrees(ctx context.Context, projectID uuid.UUID) ([]*models.DecisionTree, error)

	// DeleteTree removes a tree with its nodes and options.
	DeleteTree(ctx context.Context, projectID, treeID uuid.UUID) error

	// PutNode creates or replaces a node of treeID.
	PutNode(ctx context.Context, projectID, treeID uuid.UUID, node *models.DecisionNode) (*models.DecisionNode, error)

	// DeleteNode removes a node with its descendants and their options.
	DeleteNode(ctx context.Context, projectID, treeID, nodeID uuid.UUID) error

	// PutOption creates or replaces an option on a node of treeID.
	PutOption(ctx context.Context, projectID, treeID uuid.UUID, option *models.DecisionOption) (*models.DecisionOption, error)

	// DeleteOption removes one option.
	DeleteOption(ctx context.Context, projectID, treeID, optionID uuid.UUID) error

	// Validate reports structural problems without evaluating.
	Validate(ctx context.Context, projectID, treeID uuid.UUID) (*models.ValidationReport, error)

	// Evaluate ranks every path through a stored tree.
	Evaluate(ctx context.Context, projectID, treeID uuid.UUID) (*models.TreeEvaluation, error)

	// EvaluateSnapshot ranks every path through a tree supplied by the caller.
	EvaluateSnapshot(ctx context.Context, snap *models.DecisionTreeSnapshot) (*models.TreeEvaluation, error)
}

type decisionTreeService struct {
	repo    repositories.DecisionTreeRepository
	engine  *decision.Engine
	timeout time.Duration
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewDecisionTreeService creates a new DecisionTreeService.
// A zero timeout lets evaluations run until the caller's context ends.
func NewDecisionTreeService(
	repo repositories.DecisionTreeRepository,
	engine *decision.Engine,
	timeout time.Duration,
	collector *metrics.Collector,
	logger *zap.Logger,
) DecisionTreeService {
	return &decisionTreeService{
		repo:    repo,
		engine:  engine,
		timeout: timeout,
		metrics: collector,
		logger:  logger.Named("decision-trees"),
	}
}

var _ DecisionTreeService = (*decisionTreeService)(nil)

// ============================================================================
// Trees
// ============================================================================

func (s *decisionTreeService) CreateTree(ctx context.Context, projectID uuid.UUID, tree *models.DecisionTree) (*models.DecisionTree, error) {
	tree.Title = strings.TrimSpace(tree.Title)
	if tree.Title == "" {
		return nil, fmt.Errorf("title is required: %w", apperrors.ErrInvalidInput)
	}
	tree.ProjectID = projectID

	if err := s.repo.CreateTree(ctx, tree); err != nil {
		return nil, fmt.Errorf("create tree: %w", err)
	}

	s.logger.Info("Created decision tree",
		zap.String("project_id", projectID.String()),
		zap.String("tree_id", tree.ID.String()),
		zap.String("title", logging.TruncateForLog(tree.Title)))

	return tree, nil
}

func (s *decisionTreeService) GetTree(ctx context.Context, projectID, treeID uuid.UUID) (*models.DecisionTreeSnapshot, error) {
	return s.snapshot(ctx, projectID, treeID)
}

func (s *decisionTreeService) ListTrees(ctx context.Context, projectID uuid.UUID) ([]*models.DecisionTree, error) {
	trees, err := s.repo.ListTrees(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	return trees, nil
}

func (s *decisionTreeService) DeleteTree(ctx context.Context, projectID, treeID uuid.UUID) error {
	if err := s.repo.DeleteTree(ctx, projectID, treeID); err != nil {
		return fmt.Errorf("delete tree %s: %w", treeID, err)
	}

	s.logger.Info("Deleted decision tree",
		zap.String("project_id", projectID.String()),
		zap.String("tree_id", treeID.String()))
	return nil
}

// ============================================================================
// Nodes and options
// ============================================================================

func (s *decisionTreeService) PutNode(ctx context.Context, projectID, treeID uuid.UUID, node *models.DecisionNode) (*models.DecisionNode, error) {
	node.TreeID = treeID
	node.Label = strings.TrimSpace(node.Label)
	if node.ID == uuid.Nil {
		return nil, fmt.Errorf("node id is required: %w", apperrors.ErrInvalidInput)
	}
	if node.Label == "" {
		return nil, fmt.Errorf("node label is required: %w", apperrors.ErrInvalidInput)
	}
	kind, ok := models.ParseNodeKind(string(node.Kind))
	if !ok {
		return nil, fmt.Errorf("unknown node kind %q: %w", node.Kind, apperrors.ErrInvalidInput)
	}
	node.Kind = kind

	if err := s.requireTree(ctx, projectID, treeID); err != nil {
		return nil, err
	}

	if node.ParentID != nil {
		if *node.ParentID == node.ID {
			return nil, fmt.Errorf("node %s cannot be its own parent: %w", node.ID, apperrors.ErrInvalidInput)
		}
		parent, err := s.repo.GetNode(ctx, projectID, *node.ParentID)
		if err != nil {
			return nil, fmt.Errorf("get parent node: %w", err)
		}
		if parent == nil || parent.TreeID != treeID {
			return nil, fmt.Errorf("parent %s is not part of tree %s: %w", *node.ParentID, treeID, apperrors.ErrInvalidInput)
		}
	}

	if err := s.repo.UpsertNode(ctx, projectID, node); err != nil {
		return nil, fmt.Errorf("put node: %w", err)
	}

	s.logger.Debug("Stored decision node",
		zap.String("tree_id", treeID.String()),
		zap.String("node_id", node.ID.String()),
		zap.String("kind", string(node.Kind)))

	return node, nil
}

func (s *decisionTreeService) DeleteNode(ctx context.Context, projectID, treeID, nodeID uuid.UUID) error {
	if err := s.repo.DeleteNode(ctx, projectID, treeID, nodeID); err != nil {
		return fmt.Errorf("delete node %s: %w", nodeID, err)
	}
	return nil
}

func (s *decisionTreeService) PutOption(ctx context.Context, projectID, treeID uuid.UUID, option *models.DecisionOption) (*models.DecisionOption, error) {
	option.Text = strings.TrimSpace(option.Text)
	if option.ID == uuid.Nil {
		return nil, fmt.Errorf("option id is required: %w", apperrors.ErrInvalidInput)
	}
	if option.Text == "" {
		return nil, fmt.Errorf("option text is required: %w", apperrors.ErrInvalidInput)
	}

	if err := s.requireTree(ctx, projectID, treeID); err != nil {
		return nil, err
	}

	node, err := s.repo.GetNode(ctx, projectID, option.NodeID)
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	if node == nil || node.TreeID != treeID {
		return nil, fmt.Errorf("node %s is not part of tree %s: %w", option.NodeID, treeID, apperrors.ErrInvalidInput)
	}

	existing, err := s.repo.GetOption(ctx, projectID, option.ID)
	if err != nil {
		return nil, fmt.Errorf("get option: %w", err)
	}
	if existing != nil && existing.NodeID != option.NodeID {
		owner, err := s.repo.GetNode(ctx, projectID, existing.NodeID)
		if err != nil {
			return nil, fmt.Errorf("get option owner: %w", err)
		}
		if owner == nil || owner.TreeID != treeID {
			return nil, fmt.Errorf("option %s belongs to another tree: %w", option.ID, apperrors.ErrConflict)
		}
	}

	if err := s.repo.UpsertOption(ctx, projectID, option); err != nil {
		return nil, fmt.Errorf("put option: %w", err)
	}
	return option, nil
}

func (s *decisionTreeService) DeleteOption(ctx context.Context, projectID, treeID, optionID uuid.UUID) error {
	if err := s.repo.DeleteOption(ctx, projectID, treeID, optionID); err != nil {
		return fmt.Errorf("delete option %s: %w", optionID, err)
	}
	return nil
}

// ============================================================================
// Validation and evaluation
// ============================================================================

func (s *decisionTreeService) Validate(ctx context.Context, projectID, treeID uuid.UUID) (*models.ValidationReport, error) {
	snap, err := s.snapshot(ctx, projectID, treeID)
	if err != nil {
		return nil, err
	}
	return s.engine.ValidateSnapshot(snap), nil
}

func (s *decisionTreeService) Evaluate(ctx context.Context, projectID, treeID uuid.UUID) (*models.TreeEvaluation, error) {
	snap, err := s.snapshot(ctx, projectID, treeID)
	if err != nil {
		return nil, err
	}
	return s.EvaluateSnapshot(ctx, snap)
}

func (s *decisionTreeService) EvaluateSnapshot(ctx context.Context, snap *models.DecisionTreeSnapshot) (*models.TreeEvaluation, error) {
	if snap == nil || snap.Tree == nil {
		return nil, fmt.Errorf("tree is required: %w", apperrors.ErrInvalidInput)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.engine.EvaluateSnapshot(ctx, snap)
	elapsed := time.Since(start)

	outcome := evaluationOutcome(err)
	paths := 0
	if result != nil {
		paths = result.PathCount
	}
	s.metrics.ObserveEvaluation(outcome, elapsed, paths)

	fields := []zap.Field{
		zap.String("tree_id", snap.Tree.ID.String()),
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("options", len(snap.Options)),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		if outcome == metrics.OutcomeError {
			s.logger.Error("Decision tree evaluation failed", append(fields, zap.Error(err))...)
		} else {
			s.logger.Info("Decision tree evaluation rejected", append(fields, zap.Error(err))...)
		}
		return nil, err
	}

	s.logger.Info("Evaluated decision tree",
		append(fields,
			zap.Int("paths", result.PathCount),
			zap.Int("warnings", len(result.Warnings)))...)

	return result, nil
}

func evaluationOutcome(err error) string {
	var validationErr *decision.ValidationError
	var tooLargeErr *decision.TreeTooLargeError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &validationErr):
		return metrics.OutcomeInvalid
	case errors.As(err, &tooLargeErr):
		return metrics.OutcomeTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}

// ============================================================================
// Helpers
// ============================================================================

func (s *decisionTreeService) snapshot(ctx context.Context, projectID, treeID uuid.UUID) (*models.DecisionTreeSnapshot, error) {
	snap, err := s.repo.GetSnapshot(ctx, projectID, treeID)
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", treeID, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("tree %s: %w", treeID, apperrors.ErrNotFound)
	}
	return snap, nil
}

func (s *decisionTreeService) requireTree(ctx context.Context, projectID, treeID uuid.UUID) error {
	tree, err := s.repo.GetTree(ctx, projectID, treeID)
	if err != nil {
		return fmt.Errorf("get tree: %w", err)
	}
	if tree == nil {
		return fmt.Errorf("tree %s: %w", treeID, apperrors.ErrNotFound)
	}
	return nil
}
