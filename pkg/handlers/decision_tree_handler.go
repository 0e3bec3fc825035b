package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-decisions/pkg/decision"
	"github.com/ekaya-inc/ekaya-decisions/pkg/llm"
	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
	"github.com/ekaya-inc/ekaya-decisions/pkg/services"
)

// maxRequestBodyBytes bounds every JSON request body.
const maxRequestBodyBytes = 1 << 20

// TenantMiddleware wraps a handler with a tenant-scoped database connection.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ============================================================================
// Request/Response Types
// ============================================================================

// CreateDecisionTreeRequest for POST /decision-trees
type CreateDecisionTreeRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	CreatedBy   string `json:"created_by" validate:"max=200"`
}

// PutNodeRequest for PUT /decision-trees/{tid}/nodes/{nid}
type PutNodeRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
	Kind     string     `json:"kind" validate:"required,nodekind"`
	Label    string     `json:"label" validate:"required,max=200"`
	Weight   *int       `json:"weight"`
}

// PutOptionRequest for PUT /decision-trees/{tid}/options/{oid}
type PutOptionRequest struct {
	NodeID      uuid.UUID `json:"node_id" validate:"required"`
	Text        string    `json:"text" validate:"required,max=500"`
	Score       *float64  `json:"score"`
	Probability *float64  `json:"probability"`
	Cost        *float64  `json:"cost"`
}

// SnapshotNode is one node of a posted tree.
type SnapshotNode struct {
	ID       uuid.UUID  `json:"id" validate:"required"`
	ParentID *uuid.UUID `json:"parent_id"`
	Kind     string     `json:"kind" validate:"required"`
	Label    string     `json:"label" validate:"required,max=200"`
	Weight   *int       `json:"weight"`
}

// SnapshotOption is one option of a posted tree.
type SnapshotOption struct {
	ID          uuid.UUID `json:"id" validate:"required"`
	NodeID      uuid.UUID `json:"node_id" validate:"required"`
	Text        string    `json:"text" validate:"required,max=500"`
	Score       *float64  `json:"score"`
	Probability *float64  `json:"probability"`
	Cost        *float64  `json:"cost"`
}

// EvaluateSnapshotRequest for POST /decision-trees/evaluate. Nothing is stored.
type EvaluateSnapshotRequest struct {
	Title   string           `json:"title"`
	Nodes   []SnapshotNode   `json:"nodes" validate:"required,max=5000,dive"`
	Options []SnapshotOption `json:"options" validate:"max=50000,dive"`
}

// DecisionTreeListResponse for GET /decision-trees
type DecisionTreeListResponse struct {
	Trees []*models.DecisionTree `json:"trees"`
	Total int                    `json:"total"`
}

// InvalidTreeResponse is the data of a 422 reply.
type InvalidTreeResponse struct {
	Findings []models.ValidationFinding `json:"findings"`
}

// ============================================================================
// Handler
// ============================================================================

// DecisionTreeHandler handles decision tree HTTP requests.
type DecisionTreeHandler struct {
	treeService services.DecisionTreeService
	explainer   services.RecommendationExplainer
	logger      *zap.Logger
}

// NewDecisionTreeHandler creates a new decision tree handler.
func NewDecisionTreeHandler(
	treeService services.DecisionTreeService,
	explainer services.RecommendationExplainer,
	logger *zap.Logger,
) *DecisionTreeHandler {
	return &DecisionTreeHandler{
		treeService: treeService,
		explainer:   explainer,
		logger:      logger,
	}
}

// RegisterRoutes registers the decision tree handler's routes on the given mux.
func (h *DecisionTreeHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/projects/{pid}/decision-trees"

	mux.HandleFunc("POST "+base, tenantMiddleware(h.Create))
	mux.HandleFunc("GET "+base, tenantMiddleware(h.List))
	mux.HandleFunc("POST "+base+"/evaluate", h.EvaluateSnapshot)
	mux.HandleFunc("GET "+base+"/{tid}", tenantMiddleware(h.Get))
	mux.HandleFunc("DELETE "+base+"/{tid}", tenantMiddleware(h.Delete))
	mux.HandleFunc("PUT "+base+"/{tid}/nodes/{nid}", tenantMiddleware(h.PutNode))
	mux.HandleFunc("DELETE "+base+"/{tid}/nodes/{nid}", tenantMiddleware(h.DeleteNode))
	mux.HandleFunc("PUT "+base+"/{tid}/options/{oid}", tenantMiddleware(h.PutOption))
	mux.HandleFunc("DELETE "+base+"/{tid}/options/{oid}", tenantMiddleware(h.DeleteOption))
	mux.HandleFunc("GET "+base+"/{tid}/validate", tenantMiddleware(h.Validate))
	mux.HandleFunc("GET "+base+"/{tid}/evaluate", tenantMiddleware(h.Evaluate))
	mux.HandleFunc("POST "+base+"/{tid}/explain", tenantMiddleware(h.Explain))
}

// Create handles POST /api/projects/{pid}/decision-trees
func (h *DecisionTreeHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateDecisionTreeRequest
	if !h.decode(w, r, &req) {
		return
	}

	tree, err := h.treeService.CreateTree(r.Context(), projectID, &models.DecisionTree{
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to create decision tree", zap.String("project_id", projectID.String()))
		return
	}

	h.respond(w, http.StatusCreated, tree)
}

// List handles GET /api/projects/{pid}/decision-trees
func (h *DecisionTreeHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	trees, err := h.treeService.ListTrees(r.Context(), projectID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list decision trees", zap.String("project_id", projectID.String()))
		return
	}

	h.respond(w, http.StatusOK, DecisionTreeListResponse{Trees: trees, Total: len(trees)})
}

// Get handles GET /api/projects/{pid}/decision-trees/{tid}
func (h *DecisionTreeHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, treeID, ok := ParseProjectAndTreeIDs(w, r, h.logger)
	if !ok {
		return
	}

	snap, err := h.treeService.GetTree(r.Context(), projectID, treeID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get decision tree", zap.String("tree_id", treeID.String()))
		return
	}

	h.respond(w, http.StatusOK, snap)
}

// Delete handles DELETE /api/projects/{pid}/decision-trees/{tid}
func (h *DecisionTreeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, treeID, ok := ParseProjectAndTreeIDs(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.treeService.DeleteTree(r.Context(), projectID, treeID); err != nil {
		h.writeServiceError(w, err, "Failed to delete decision tree", zap.String("tree_id", treeID.String()))
		return
	}

	h.respond(w, http.StatusOK, map[string]string{"id": treeID.String()})
}

// PutNode handles PUT /api/projects/{pid}/decision-trees/{tid}/nodes/{nid}
func (h *DecisionTreeHandler) PutNode(w http.ResponseWriter, r *http.Request) {
	projectID, treeID, ok := ParseProjectAndTreeIDs(w, r, h.logger)
	if !ok {
		return
	}
	nodeID, ok := ParseNodeID(w, r, h.logger)
	if !ok {
		return
	}

	var req PutNodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	node, err := h.treeService.PutNode(r.Context(), projectID, treeID, &models.DecisionNode{
		ID:       nodeID,
		ParentID: req.ParentID,
		Kind:     models.NodeKind(req.Kind),
		Label:    req.Label,
		Weight:   req.Weight,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to store decision node",
			zap.String("tree_id", treeID.String()),
			zap.String("node_id", nodeID.String()))
		return
	}

	h.respond(w, http.StatusOK, node)
}

// DeleteNode handles DELETE /api/projects/{pid}/decision-trees/{tid}/nodes/{nid}
func (h *DecisionTreeHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	projectID, treeID, ok := ParseProjectAndTreeIDs(w, r, h.logger)
	if !ok {
		return
	}
	nodeID, ok := ParseNodeID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.treeService.DeleteNode(r.Context(), projectID, treeID, nodeID); err != nil {
		h.writeServiceError(w, err, "Failed to delete decision node", zap.String("node_id", nodeID.String()))
		return
	}

	h.respond(w, http.StatusOK, map[string]string{"id": nodeID.String()})
}

// PutOption handles PUT /api/projects/{pid}/decision-trees/{tid}/options/{oid}
func (h *DecisionTreeHandler) PutOption(w http.ResponseWriter, r *http.Request) {
	projectID, treeID, ok := ParseProjectAndTreeIDs(w, r, h.logger)
	if !ok {
		return
	}
	optionID, ok := ParseOptionID(w, r, h.logger)
	if !ok {
		return
	}

	var req PutOptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	option, err := h.treeService.PutOption(r.Context(), projectID, treeID, &models.DecisionOption{
		ID:          optionID,
		NodeID:      req.NodeID,
		Text:        req.Text,
		Score:       req.Score,
		Probability: req.Probability,
		Cost:        req.Cost,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to store decision option",
			zap.String("tree_id", treeID.String()),
			zap.String("option_id", optionID.String()))
		return
	}

	h.respond(w, http.StatusOK, option)
}

// DeleteOption handles DELETE /api/projects/{pid}/decision-trees/{tid}/options/{oid}
func (h *DecisionTreeHandler) DeleteOption(w http.ResponseWriter, r *http.Request) {
	projectID, treeID, ok := ParseProjectAndTreeIDs(w, r, h.logger)
	if !ok {
		return
	}
	optionID, ok := ParseOptionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.treeService.DeleteOption(r.Context(), projectID, treeID, optionID); err != nil {
		h.writeServiceError(w, err, "Failed to delete decision option", zap.String("option_id", optionID.String()))
		return
	}

	h.respond(w, http.StatusOK, map[string]string{"id": optionID.String()})
}

// Validate handles GET /api/projects/{pid}/decision-trees/{tid}/validate
func (h *DecisionTreeHandler) Validate(w http.ResponseWriter, r *http.Request) {
	projectID, treeID, ok := ParseProjectAndTreeIDs(w, r, h.logger)
	if !ok {
		return
	}

	report, err := h.treeService.Validate(r.Context(), projectID, treeID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to validate decision tree", zap.String("tree_id", treeID.String()))
		return
	}

	h.respond(w, http.StatusOK, report)
}

// Evaluate handles GET /api/projects/{pid}/decision-trees/{tid}/evaluate?top=N
func (h *DecisionTreeHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	projectID, treeID, ok := ParseProjectAndTreeIDs(w, r, h.logger)
	if !ok {
		return
	}
	top, ok := h.parseTop(w, r)
	if !ok {
		return
	}

	result, err := h.treeService.Evaluate(r.Context(), projectID, treeID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to evaluate decision tree", zap.String("tree_id", treeID.String()))
		return
	}

	h.respond(w, http.StatusOK, result.Top(top))
}

// EvaluateSnapshot handles POST /api/projects/{pid}/decision-trees/evaluate
func (h *DecisionTreeHandler) EvaluateSnapshot(w http.ResponseWriter, r *http.Request) {
	if _, ok := ParseProjectID(w, r, h.logger); !ok {
		return
	}
	top, ok := h.parseTop(w, r)
	if !ok {
		return
	}

	var req EvaluateSnapshotRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.treeService.EvaluateSnapshot(r.Context(), req.toSnapshot())
	if err != nil {
		h.writeServiceError(w, err, "Failed to evaluate posted decision tree")
		return
	}

	h.respond(w, http.StatusOK, result.Top(top))
}

// Explain handles POST /api/projects/{pid}/decision-trees/{tid}/explain
func (h *DecisionTreeHandler) Explain(w http.ResponseWriter, r *http.Request) {
	projectID, treeID, ok := ParseProjectAndTreeIDs(w, r, h.logger)
	if !ok {
		return
	}

	explanation, err := h.explainer.Explain(r.Context(), projectID, treeID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to explain recommendation", zap.String("tree_id", treeID.String()))
		return
	}

	h.respond(w, http.StatusOK, explanation)
}

// ============================================================================
// Helpers
// ============================================================================

func (req *EvaluateSnapshotRequest) toSnapshot() *models.DecisionTreeSnapshot {
	tree := &models.DecisionTree{Title: req.Title}

	nodes := make([]models.DecisionNode, 0, len(req.Nodes))
	for _, n := range req.Nodes {
		nodes = append(nodes, models.DecisionNode{
			ID:       n.ID,
			ParentID: n.ParentID,
			Kind:     models.NodeKind(n.Kind),
			Label:    n.Label,
			Weight:   n.Weight,
		})
	}

	options := make([]models.DecisionOption, 0, len(req.Options))
	for _, o := range req.Options {
		options = append(options, models.DecisionOption{
			ID:          o.ID,
			NodeID:      o.NodeID,
			Text:        o.Text,
			Score:       o.Score,
			Probability: o.Probability,
			Cost:        o.Cost,
		})
	}

	return &models.DecisionTreeSnapshot{Tree: tree, Nodes: nodes, Options: options}
}

func (h *DecisionTreeHandler) parseTop(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("top")
	if raw == "" {
		return 0, true
	}
	top, err := strconv.Atoi(raw)
	if err != nil || top < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_top", "top must be a non-negative integer")
		return 0, false
	}
	return top, true
}

func (h *DecisionTreeHandler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	if err := validateRequest(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func (h *DecisionTreeHandler) respond(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
		if errors.Is(err, ErrEncodeResponse) {
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to encode response")
		}
	}
}

func (h *DecisionTreeHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *DecisionTreeHandler) writeErrorWithData(w http.ResponseWriter, status int, code, message string, data any) {
	if err := ErrorResponseWithData(w, status, code, message, data); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps service and engine errors onto HTTP statuses.
func (h *DecisionTreeHandler) writeServiceError(w http.ResponseWriter, err error, logMsg string, fields ...zap.Field) {
	var validationErr *decision.ValidationError
	var tooLargeErr *decision.TreeTooLargeError
	var llmErr *llm.Error

	switch {
	case errors.As(err, &validationErr):
		h.writeErrorWithData(w, http.StatusUnprocessableEntity, "invalid_tree",
			"Decision tree has structural errors", InvalidTreeResponse{Findings: validationErr.Findings})
	case errors.As(err, &tooLargeErr):
		h.writeErrorWithData(w, http.StatusRequestEntityTooLarge, "tree_too_large", tooLargeErr.Error(), tooLargeErr)
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn(logMsg, append(fields, zap.Error(err))...)
		h.writeError(w, http.StatusGatewayTimeout, "evaluation_timeout", "Evaluation did not finish in time")
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		h.writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, services.ErrExplainerDisabled):
		h.writeError(w, http.StatusServiceUnavailable, "explainer_disabled", err.Error())
	case errors.As(err, &llmErr):
		h.logger.Error(logMsg, append(fields, zap.Error(err))...)
		h.writeError(w, http.StatusBadGateway, "llm_error", "Language model request failed")
	default:
		h.logger.Error(logMsg, append(fields, zap.Error(err))...)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
