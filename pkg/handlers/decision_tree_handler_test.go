package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-decisions/pkg/decision"
	"github.com/ekaya-inc/ekaya-decisions/pkg/llm"
	"github.com/ekaya-inc/ekaya-decisions/pkg/metrics"
	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
	"github.com/ekaya-inc/ekaya-decisions/pkg/services"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockDecisionTreeService embeds a real service so stateless evaluation runs the
// engine, while stored-tree calls are answered by the function fields.
type mockDecisionTreeService struct {
	services.DecisionTreeService

	createTree func(ctx context.Context, projectID uuid.UUID, tree *models.DecisionTree) (*models.DecisionTree, error)
	putNode    func(ctx context.Context, projectID, treeID uuid.UUID, node *models.DecisionNode) (*models.DecisionNode, error)
	evaluate   func(ctx context.Context, projectID, treeID uuid.UUID) (*models.TreeEvaluation, error)
	deleteTree func(ctx context.Context, projectID, treeID uuid.UUID) error
}

func (m *mockDecisionTreeService) CreateTree(ctx context.Context, projectID uuid.UUID, tree *models.DecisionTree) (*models.DecisionTree, error) {
	return m.createTree(ctx, projectID, tree)
}

func (m *mockDecisionTreeService) PutNode(ctx context.Context, projectID, treeID uuid.UUID, node *models.DecisionNode) (*models.DecisionNode, error) {
	return m.putNode(ctx, projectID, treeID, node)
}

func (m *mockDecisionTreeService) Evaluate(ctx context.Context, projectID, treeID uuid.UUID) (*models.TreeEvaluation, error) {
	return m.evaluate(ctx, projectID, treeID)
}

func (m *mockDecisionTreeService) DeleteTree(ctx context.Context, projectID, treeID uuid.UUID) error {
	return m.deleteTree(ctx, projectID, treeID)
}

type mockExplainer struct {
	err error
}

func (m *mockExplainer) Explain(ctx context.Context, projectID, treeID uuid.UUID) (*models.RecommendationExplanation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.RecommendationExplanation{TreeID: treeID, Explanation: "because", Model: "mock-model"}, nil
}

func passthroughTenant(next http.HandlerFunc) http.HandlerFunc {
	return next
}

func newDecisionTreeTestMux(svc *mockDecisionTreeService, explainer services.RecommendationExplainer) *http.ServeMux {
	engine := decision.NewEngine(decision.DefaultLimits(), decision.DefaultCostUnits())
	svc.DecisionTreeService = services.NewDecisionTreeService(nil, engine, 0, metrics.NewCollector("test"), zap.NewNop())
	if explainer == nil {
		explainer = &mockExplainer{}
	}

	mux := http.NewServeMux()
	NewDecisionTreeHandler(svc, explainer, zap.NewNop()).RegisterRoutes(mux, passthroughTenant)
	return mux
}

func serve(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) (ApiResponse, T) {
	t.Helper()
	var response ApiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	var data T
	dataBytes, err := json.Marshal(response.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(dataBytes, &data))
	return response, data
}

func treesPath(projectID uuid.UUID, rest string) string {
	return fmt.Sprintf("/api/projects/%s/decision-trees%s", projectID, rest)
}

// ============================================================================
// Tests
// ============================================================================

func TestDecisionTreeHandler_Create(t *testing.T) {
	projectID := uuid.New()
	svc := &mockDecisionTreeService{
		createTree: func(ctx context.Context, pid uuid.UUID, tree *models.DecisionTree) (*models.DecisionTree, error) {
			assert.Equal(t, projectID, pid)
			tree.ID = uuid.New()
			tree.ProjectID = pid
			return tree, nil
		},
	}
	mux := newDecisionTreeTestMux(svc, nil)

	rec := serve(t, mux, http.MethodPost, treesPath(projectID, ""), CreateDecisionTreeRequest{Title: "Hire"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	response, tree := decodeData[models.DecisionTree](t, rec)
	assert.True(t, response.Success)
	assert.Equal(t, "Hire", tree.Title)
}

func TestDecisionTreeHandler_Create_ValidationFails(t *testing.T) {
	mux := newDecisionTreeTestMux(&mockDecisionTreeService{}, nil)

	rec := serve(t, mux, http.MethodPost, treesPath(uuid.New(), ""), CreateDecisionTreeRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "invalid_request", body["error"])
	assert.Equal(t, "title is required", body["message"])
}

func TestDecisionTreeHandler_PutNode_RejectsUnknownKind(t *testing.T) {
	mux := newDecisionTreeTestMux(&mockDecisionTreeService{}, nil)

	rec := serve(t, mux, http.MethodPut,
		treesPath(uuid.New(), fmt.Sprintf("/%s/nodes/%s", uuid.New(), uuid.New())),
		PutNodeRequest{Kind: "Maybe", Label: "Root"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "kind must be one of Decision, Chance, Outcome")
}

func TestDecisionTreeHandler_PutNode_PassesPathIDs(t *testing.T) {
	treeID, nodeID := uuid.New(), uuid.New()
	svc := &mockDecisionTreeService{
		putNode: func(ctx context.Context, pid, tid uuid.UUID, node *models.DecisionNode) (*models.DecisionNode, error) {
			assert.Equal(t, treeID, tid)
			assert.Equal(t, nodeID, node.ID)
			node.TreeID = tid
			return node, nil
		},
	}
	mux := newDecisionTreeTestMux(svc, nil)

	rec := serve(t, mux, http.MethodPut,
		treesPath(uuid.New(), fmt.Sprintf("/%s/nodes/%s", treeID, nodeID)),
		PutNodeRequest{Kind: "의사결정", Label: "Root"})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDecisionTreeHandler_InvalidTreeID(t *testing.T) {
	mux := newDecisionTreeTestMux(&mockDecisionTreeService{}, nil)

	rec := serve(t, mux, http.MethodGet, treesPath(uuid.New(), "/not-a-uuid/evaluate"), nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_tree_id")
}

func TestDecisionTreeHandler_Evaluate_StatusMapping(t *testing.T) {
	nodeID := uuid.New()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("tree: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"invalid tree", &decision.ValidationError{Findings: []models.ValidationFinding{{
			Severity: models.FindingSeverityError, Code: models.FindingCycleDetected, NodeID: &nodeID, Message: "cycle",
		}}}, http.StatusUnprocessableEntity, "invalid_tree"},
		{"too large", &decision.TreeTooLargeError{Limit: decision.SizeLimitPaths, Max: 10, Actual: 11}, http.StatusRequestEntityTooLarge, "tree_too_large"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "evaluation_timeout"},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockDecisionTreeService{
				evaluate: func(ctx context.Context, pid, tid uuid.UUID) (*models.TreeEvaluation, error) {
					return nil, tt.err
				},
			}
			mux := newDecisionTreeTestMux(svc, nil)

			rec := serve(t, mux, http.MethodGet, treesPath(uuid.New(), "/"+uuid.New().String()+"/evaluate"), nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error":"`+tt.wantCode+`"`)
		})
	}
}

func TestDecisionTreeHandler_Evaluate_InvalidTreeCarriesFindings(t *testing.T) {
	svc := &mockDecisionTreeService{
		evaluate: func(ctx context.Context, pid, tid uuid.UUID) (*models.TreeEvaluation, error) {
			return nil, &decision.ValidationError{Findings: []models.ValidationFinding{
				{Severity: models.FindingSeverityError, Code: models.FindingNoRoot, Message: "no root"},
			}}
		},
	}
	mux := newDecisionTreeTestMux(svc, nil)

	rec := serve(t, mux, http.MethodGet, treesPath(uuid.New(), "/"+uuid.New().String()+"/evaluate"), nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	response, data := decodeData[InvalidTreeResponse](t, rec)
	assert.False(t, response.Success)
	require.Len(t, data.Findings, 1)
	assert.Equal(t, models.FindingNoRoot, data.Findings[0].Code)
}

func TestDecisionTreeHandler_Evaluate_Top(t *testing.T) {
	svc := &mockDecisionTreeService{
		evaluate: func(ctx context.Context, pid, tid uuid.UUID) (*models.TreeEvaluation, error) {
			return &models.TreeEvaluation{
				Ranked:    []models.PathResult{{Score: 3}, {Score: 2}, {Score: 1}},
				PathCount: 3,
			}, nil
		},
	}
	mux := newDecisionTreeTestMux(svc, nil)
	path := treesPath(uuid.New(), "/"+uuid.New().String()+"/evaluate")

	rec := serve(t, mux, http.MethodGet, path+"?top=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, result := decodeData[models.TreeEvaluation](t, rec)
	assert.Len(t, result.Ranked, 2)
	assert.Equal(t, 3, result.PathCount)

	rec = serve(t, mux, http.MethodGet, path+"?top=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecisionTreeHandler_EvaluateSnapshot(t *testing.T) {
	mux := newDecisionTreeTestMux(&mockDecisionTreeService{}, nil)
	root, chance := uuid.New(), uuid.New()
	score := func(v float64) *float64 { return &v }

	req := EvaluateSnapshotRequest{
		Title: "Launch",
		Nodes: []SnapshotNode{
			{ID: root, Kind: "Decision", Label: "Launch"},
			{ID: chance, ParentID: &root, Kind: "Chance", Label: "Market"},
		},
		Options: []SnapshotOption{
			{ID: uuid.New(), NodeID: root, Text: "Now", Score: score(60)},
			{ID: uuid.New(), NodeID: root, Text: "Later", Score: score(30)},
			{ID: uuid.New(), NodeID: chance, Text: "Up", Score: score(40), Probability: score(50)},
			{ID: uuid.New(), NodeID: chance, Text: "Down", Score: score(0), Probability: score(50)},
		},
	}

	rec := serve(t, mux, http.MethodPost, treesPath(uuid.New(), "/evaluate"), req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, result := decodeData[models.TreeEvaluation](t, rec)
	assert.Equal(t, 4, result.PathCount)
	require.NotNil(t, result.Recommended)
	assert.Equal(t, []string{"Launch: Now", "Market: Up"}, result.Recommended.PathDescription)
}

func TestDecisionTreeHandler_EvaluateSnapshot_HugeCosts(t *testing.T) {
	mux := newDecisionTreeTestMux(&mockDecisionTreeService{}, nil)
	root, child := uuid.New(), uuid.New()
	cost := 1e308

	req := EvaluateSnapshotRequest{
		Title: "Estate",
		Nodes: []SnapshotNode{
			{ID: root, Kind: "Decision", Label: "Buy"},
			{ID: child, ParentID: &root, Kind: "Decision", Label: "Upkeep"},
		},
		Options: []SnapshotOption{
			{ID: uuid.New(), NodeID: root, Text: "Island", Cost: &cost},
			{ID: uuid.New(), NodeID: child, Text: "Full staff", Cost: &cost},
		},
	}

	rec := serve(t, mux, http.MethodPost, treesPath(uuid.New(), "/evaluate"), req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
	_, result := decodeData[models.TreeEvaluation](t, rec)
	require.Len(t, result.Ranked, 1)
	assert.InDelta(t, 2*decision.MaxCost, result.Ranked[0].Cost, 1)
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, models.FindingCostTooLarge, result.Warnings[0].Code)
}

func TestDecisionTreeHandler_Evaluate_UnencodableResult(t *testing.T) {
	svc := &mockDecisionTreeService{
		evaluate: func(ctx context.Context, pid, tid uuid.UUID) (*models.TreeEvaluation, error) {
			return &models.TreeEvaluation{
				Ranked:    []models.PathResult{{Score: math.Inf(1)}},
				PathCount: 1,
			}, nil
		},
	}
	mux := newDecisionTreeTestMux(svc, nil)

	rec := serve(t, mux, http.MethodGet, treesPath(uuid.New(), "/"+uuid.New().String()+"/evaluate"), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"internal_error"`)
}

func TestDecisionTreeHandler_EvaluateSnapshot_Invalid(t *testing.T) {
	mux := newDecisionTreeTestMux(&mockDecisionTreeService{}, nil)
	a, b := uuid.New(), uuid.New()

	req := EvaluateSnapshotRequest{Nodes: []SnapshotNode{
		{ID: a, ParentID: &b, Kind: "Decision", Label: "A"},
		{ID: b, ParentID: &a, Kind: "Decision", Label: "B"},
	}}

	rec := serve(t, mux, http.MethodPost, treesPath(uuid.New(), "/evaluate"), req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), models.FindingNoRoot)
}

func TestDecisionTreeHandler_EvaluateSnapshot_RequiresNodeIDs(t *testing.T) {
	mux := newDecisionTreeTestMux(&mockDecisionTreeService{}, nil)

	rec := serve(t, mux, http.MethodPost, treesPath(uuid.New(), "/evaluate"),
		EvaluateSnapshotRequest{Nodes: []SnapshotNode{{Kind: "Decision", Label: "A"}}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "nodes[0].id is required")
}

func TestDecisionTreeHandler_Delete_NotFound(t *testing.T) {
	svc := &mockDecisionTreeService{
		deleteTree: func(ctx context.Context, pid, tid uuid.UUID) error {
			return apperrors.ErrNotFound
		},
	}
	mux := newDecisionTreeTestMux(svc, nil)

	rec := serve(t, mux, http.MethodDelete, treesPath(uuid.New(), "/"+uuid.New().String()), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecisionTreeHandler_Explain(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ok", nil, http.StatusOK},
		{"disabled", services.ErrExplainerDisabled, http.StatusServiceUnavailable},
		{"provider failure", llm.NewError(llm.ErrorTypeEndpoint, "server error", true, nil), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newDecisionTreeTestMux(&mockDecisionTreeService{}, &mockExplainer{err: tt.err})

			rec := serve(t, mux, http.MethodPost, treesPath(uuid.New(), "/"+uuid.New().String()+"/explain"), nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
