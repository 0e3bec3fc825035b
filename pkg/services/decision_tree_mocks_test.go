package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-decisions/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
	"github.com/ekaya-inc/ekaya-decisions/pkg/repositories"
)

// ============================================================================
// Mock Implementations for Decision Tree Service Tests
// ============================================================================

type mockDecisionTreeRepo struct {
	mu      sync.Mutex
	trees   map[uuid.UUID]*models.DecisionTree
	nodes   map[uuid.UUID]*models.DecisionNode
	options map[uuid.UUID]*models.DecisionOption
	order   map[uuid.UUID]int
	seq     int

	snapshotErr error
}

func newMockDecisionTreeRepo() *mockDecisionTreeRepo {
	return &mockDecisionTreeRepo{
		trees:   make(map[uuid.UUID]*models.DecisionTree),
		nodes:   make(map[uuid.UUID]*models.DecisionNode),
		options: make(map[uuid.UUID]*models.DecisionOption),
		order:   make(map[uuid.UUID]int),
	}
}

var _ repositories.DecisionTreeRepository = (*mockDecisionTreeRepo)(nil)

func (m *mockDecisionTreeRepo) touch(id uuid.UUID) {
	if _, ok := m.order[id]; !ok {
		m.seq++
		m.order[id] = m.seq
	}
}

func (m *mockDecisionTreeRepo) CreateTree(ctx context.Context, tree *models.DecisionTree) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tree.ID == uuid.Nil {
		tree.ID = uuid.New()
	}
	m.touch(tree.ID)
	copied := *tree
	m.trees[tree.ID] = &copied
	return nil
}

func (m *mockDecisionTreeRepo) GetTree(ctx context.Context, projectID, treeID uuid.UUID) (*models.DecisionTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trees[treeID]
	if !ok || t.ProjectID != projectID {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (m *mockDecisionTreeRepo) ListTrees(ctx context.Context, projectID uuid.UUID) ([]*models.DecisionTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DecisionTree, 0)
	for _, t := range m.trees {
		if t.ProjectID == projectID {
			copied := *t
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out, nil
}

func (m *mockDecisionTreeRepo) DeleteTree(ctx context.Context, projectID, treeID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trees[treeID]
	if !ok || t.ProjectID != projectID {
		return apperrors.ErrNotFound
	}
	delete(m.trees, treeID)
	for id, n := range m.nodes {
		if n.TreeID == treeID {
			m.deleteNodeLocked(id)
		}
	}
	return nil
}

func (m *mockDecisionTreeRepo) UpsertNode(ctx context.Context, projectID uuid.UUID, node *models.DecisionNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.nodes[node.ID]; ok && existing.TreeID != node.TreeID {
		return apperrors.ErrConflict
	}
	m.touch(node.ID)
	copied := *node
	m.nodes[node.ID] = &copied
	return nil
}

func (m *mockDecisionTreeRepo) GetNode(ctx context.Context, projectID, nodeID uuid.UUID) (*models.DecisionNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return nil, nil
	}
	copied := *n
	return &copied, nil
}

func (m *mockDecisionTreeRepo) DeleteNode(ctx context.Context, projectID, treeID, nodeID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[nodeID]
	if !ok || n.TreeID != treeID {
		return apperrors.ErrNotFound
	}
	m.deleteNodeLocked(nodeID)
	return nil
}

func (m *mockDecisionTreeRepo) deleteNodeLocked(nodeID uuid.UUID) {
	delete(m.nodes, nodeID)
	for id, o := range m.options {
		if o.NodeID == nodeID {
			delete(m.options, id)
		}
	}
	for id, n := range m.nodes {
		if n.ParentID != nil && *n.ParentID == nodeID {
			m.deleteNodeLocked(id)
		}
	}
}

func (m *mockDecisionTreeRepo) UpsertOption(ctx context.Context, projectID uuid.UUID, option *models.DecisionOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch(option.ID)
	copied := *option
	m.options[option.ID] = &copied
	return nil
}

func (m *mockDecisionTreeRepo) GetOption(ctx context.Context, projectID, optionID uuid.UUID) (*models.DecisionOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.options[optionID]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (m *mockDecisionTreeRepo) DeleteOption(ctx context.Context, projectID, treeID, optionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.options[optionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if n, ok := m.nodes[o.NodeID]; !ok || n.TreeID != treeID {
		return apperrors.ErrNotFound
	}
	delete(m.options, optionID)
	return nil
}

func (m *mockDecisionTreeRepo) GetSnapshot(ctx context.Context, projectID, treeID uuid.UUID) (*models.DecisionTreeSnapshot, error) {
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	tree, _ := m.GetTree(ctx, projectID, treeID)
	if tree == nil {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &models.DecisionTreeSnapshot{Tree: tree, Nodes: []models.DecisionNode{}, Options: []models.DecisionOption{}}
	inTree := make(map[uuid.UUID]bool)
	for _, n := range m.nodes {
		if n.TreeID == treeID {
			snap.Nodes = append(snap.Nodes, *n)
			inTree[n.ID] = true
		}
	}
	for _, o := range m.options {
		if inTree[o.NodeID] {
			snap.Options = append(snap.Options, *o)
		}
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return m.order[snap.Nodes[i].ID] < m.order[snap.Nodes[j].ID] })
	sort.Slice(snap.Options, func(i, j int) bool { return m.order[snap.Options[i].ID] < m.order[snap.Options[j].ID] })
	return snap, nil
}
