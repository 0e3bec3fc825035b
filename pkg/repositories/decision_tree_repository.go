package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-decisions/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-decisions/pkg/database"
	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
)

// DecisionTreeRepository provides data access for decision trees, their nodes and options.
// Getters return (nil, nil) when the row does not exist; deletes return apperrors.ErrNotFound.
type DecisionTreeRepository interface {
	CreateTree(ctx context.Context, tree *models.DecisionTree) error
	GetTree(ctx context.Context, projectID, treeID uuid.UUID) (*models.DecisionTree, error)
	ListTrees(ctx context.Context, projectID uuid.UUID) ([]*models.DecisionTree, error)
	DeleteTree(ctx context.Context, projectID, treeID uuid.UUID) error

	UpsertNode(ctx context.Context, projectID uuid.UUID, node *models.DecisionNode) error
	GetNode(ctx context.Context, projectID, nodeID uuid.UUID) (*models.DecisionNode, error)
	DeleteNode(ctx context.Context, projectID, treeID, nodeID uuid.UUID) error

	UpsertOption(ctx context.Context, projectID uuid.UUID, option *models.DecisionOption) error
	GetOption(ctx context.Context, projectID, optionID uuid.UUID) (*models.DecisionOption, error)
	DeleteOption(ctx context.Context, projectID, treeID, optionID uuid.UUID) error

	// GetSnapshot reads a tree with all its nodes and options in one read-only,
	// repeatable-read transaction. Siblings are ordered by creation time.
	GetSnapshot(ctx context.Context, projectID, treeID uuid.UUID) (*models.DecisionTreeSnapshot, error)
}

type decisionTreeRepository struct{}

// NewDecisionTreeRepository creates a new DecisionTreeRepository.
func NewDecisionTreeRepository() DecisionTreeRepository {
	return &decisionTreeRepository{}
}

var _ DecisionTreeRepository = (*decisionTreeRepository)(nil)

const (
	treeColumns   = `id, project_id, title, description, created_by, created_at, updated_at`
	nodeColumns   = `id, tree_id, parent_id, kind, label, weight, created_at, updated_at`
	optionColumns = `id, node_id, text, score, probability, cost, created_at, updated_at`
)

// ============================================================================
// Trees
// ============================================================================

func (r *decisionTreeRepository) CreateTree(ctx context.Context, tree *models.DecisionTree) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if tree.ID == uuid.Nil {
		tree.ID = uuid.New()
	}

	query := `
		INSERT INTO engine_decision_trees (id, project_id, title, description, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		tree.ID,
		tree.ProjectID,
		tree.Title,
		tree.Description,
		tree.CreatedBy,
	).Scan(&tree.CreatedAt, &tree.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create decision tree: %w", err)
	}

	return nil
}

func (r *decisionTreeRepository) GetTree(ctx context.Context, projectID, treeID uuid.UUID) (*models.DecisionTree, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	return getTree(ctx, scope.Conn, projectID, treeID)
}

func (r *decisionTreeRepository) ListTrees(ctx context.Context, projectID uuid.UUID) ([]*models.DecisionTree, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + treeColumns + `
		FROM engine_decision_trees
		WHERE project_id = $1
		ORDER BY created_at, id`

	rows, err := scope.Conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision trees: %w", err)
	}
	defer rows.Close()

	trees := make([]*models.DecisionTree, 0)
	for rows.Next() {
		tree, err := scanTree(rows)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision trees: %w", err)
	}

	return trees, nil
}

func (r *decisionTreeRepository) DeleteTree(ctx context.Context, projectID, treeID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`DELETE FROM engine_decision_trees WHERE project_id = $1 AND id = $2`,
		projectID, treeID)
	if err != nil {
		return fmt.Errorf("failed to delete decision tree: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// ============================================================================
// Nodes
// ============================================================================

// UpsertNode inserts a node or replaces the node with the same id.
// A node cannot move between trees: that returns apperrors.ErrConflict.
func (r *decisionTreeRepository) UpsertNode(ctx context.Context, projectID uuid.UUID, node *models.DecisionNode) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO engine_decision_nodes (id, project_id, tree_id, parent_id, kind, label, weight)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET parent_id = EXCLUDED.parent_id,
		    kind = EXCLUDED.kind,
		    label = EXCLUDED.label,
		    weight = EXCLUDED.weight,
		    updated_at = now()
		WHERE engine_decision_nodes.tree_id = EXCLUDED.tree_id
		  AND engine_decision_nodes.project_id = EXCLUDED.project_id
		RETURNING created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		node.ID,
		projectID,
		node.TreeID,
		node.ParentID,
		string(node.Kind),
		node.Label,
		node.Weight,
	).Scan(&node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("node %s belongs to another tree: %w", node.ID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to upsert decision node: %w", err)
	}

	return nil
}

func (r *decisionTreeRepository) GetNode(ctx context.Context, projectID, nodeID uuid.UUID) (*models.DecisionNode, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + nodeColumns + `
		FROM engine_decision_nodes
		WHERE project_id = $1 AND id = $2`

	node, err := scanNode(scope.Conn.QueryRow(ctx, query, projectID, nodeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return node, nil
}

// DeleteNode removes a node; its subtree and options cascade.
func (r *decisionTreeRepository) DeleteNode(ctx context.Context, projectID, treeID, nodeID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`DELETE FROM engine_decision_nodes WHERE project_id = $1 AND tree_id = $2 AND id = $3`,
		projectID, treeID, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete decision node: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// ============================================================================
// Options
// ============================================================================

// UpsertOption inserts an option or replaces the option with the same id.
func (r *decisionTreeRepository) UpsertOption(ctx context.Context, projectID uuid.UUID, option *models.DecisionOption) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO engine_decision_options (id, project_id, node_id, text, score, probability, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET node_id = EXCLUDED.node_id,
		    text = EXCLUDED.text,
		    score = EXCLUDED.score,
		    probability = EXCLUDED.probability,
		    cost = EXCLUDED.cost,
		    updated_at = now()
		WHERE engine_decision_options.project_id = EXCLUDED.project_id
		RETURNING created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		option.ID,
		projectID,
		option.NodeID,
		option.Text,
		option.Score,
		option.Probability,
		option.Cost,
	).Scan(&option.CreatedAt, &option.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("option %s belongs to another project: %w", option.ID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to upsert decision option: %w", err)
	}

	return nil
}

func (r *decisionTreeRepository) GetOption(ctx context.Context, projectID, optionID uuid.UUID) (*models.DecisionOption, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + optionColumns + `
		FROM engine_decision_options
		WHERE project_id = $1 AND id = $2`

	option, err := scanOption(scope.Conn.QueryRow(ctx, query, projectID, optionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return option, nil
}

func (r *decisionTreeRepository) DeleteOption(ctx context.Context, projectID, treeID, optionID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		DELETE FROM engine_decision_options o
		USING engine_decision_nodes n
		WHERE o.node_id = n.id
		  AND o.project_id = $1
		  AND n.tree_id = $2
		  AND o.id = $3`

	result, err := scope.Conn.Exec(ctx, query, projectID, treeID, optionID)
	if err != nil {
		return fmt.Errorf("failed to delete decision option: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// ============================================================================
// Snapshot
// ============================================================================

func (r *decisionTreeRepository) GetSnapshot(ctx context.Context, projectID, treeID uuid.UUID) (*models.DecisionTreeSnapshot, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var snap *models.DecisionTreeSnapshot
	err := scope.ReadSnapshot(ctx, func(tx pgx.Tx) error {
		tree, err := getTree(ctx, tx, projectID, treeID)
		if err != nil || tree == nil {
			return err
		}

		nodes, err := listNodes(ctx, tx, projectID, treeID)
		if err != nil {
			return err
		}

		options, err := listOptions(ctx, tx, projectID, treeID)
		if err != nil {
			return err
		}

		snap = &models.DecisionTreeSnapshot{Tree: tree, Nodes: nodes, Options: options}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

// querier is satisfied by both a pooled connection and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getTree(ctx context.Context, q querier, projectID, treeID uuid.UUID) (*models.DecisionTree, error) {
	query := `
		SELECT ` + treeColumns + `
		FROM engine_decision_trees
		WHERE project_id = $1 AND id = $2`

	tree, err := scanTree(q.QueryRow(ctx, query, projectID, treeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return tree, nil
}

func listNodes(ctx context.Context, q querier, projectID, treeID uuid.UUID) ([]models.DecisionNode, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM engine_decision_nodes
		WHERE project_id = $1 AND tree_id = $2
		ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, projectID, treeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]models.DecisionNode, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision nodes: %w", err)
	}

	return nodes, nil
}

func listOptions(ctx context.Context, q querier, projectID, treeID uuid.UUID) ([]models.DecisionOption, error) {
	query := `
		SELECT o.id, o.node_id, o.text, o.score, o.probability, o.cost, o.created_at, o.updated_at
		FROM engine_decision_options o
		JOIN engine_decision_nodes n ON n.id = o.node_id
		WHERE o.project_id = $1 AND n.tree_id = $2
		ORDER BY o.created_at, o.id`

	rows, err := q.Query(ctx, query, projectID, treeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision options: %w", err)
	}
	defer rows.Close()

	options := make([]models.DecisionOption, 0)
	for rows.Next() {
		option, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		options = append(options, *option)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision options: %w", err)
	}

	return options, nil
}

func scanTree(row pgx.Row) (*models.DecisionTree, error) {
	var t models.DecisionTree
	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Description,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan decision tree: %w", err)
	}
	return &t, nil
}

func scanNode(row pgx.Row) (*models.DecisionNode, error) {
	var n models.DecisionNode
	var kind string
	err := row.Scan(
		&n.ID,
		&n.TreeID,
		&n.ParentID,
		&kind,
		&n.Label,
		&n.Weight,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan decision node: %w", err)
	}
	// Unknown kinds are kept verbatim so validation can report them.
	n.Kind = models.NodeKind(kind)
	return &n, nil
}

func scanOption(row pgx.Row) (*models.DecisionOption, error) {
	var o models.DecisionOption
	err := row.Scan(
		&o.ID,
		&o.NodeID,
		&o.Text,
		&o.Score,
		&o.Probability,
		&o.Cost,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan decision option: %w", err)
	}
	return &o, nil
}
