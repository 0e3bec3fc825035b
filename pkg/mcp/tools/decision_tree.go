// Package tools provides MCP tool implementations for ekaya-decisions.
package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/services"
)

// TenantScoper opens a tenant-scoped context for one project.
// *database.TenantScopeProvider satisfies it.
type TenantScoper interface {
	WithTenantScope(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error)
}

// DecisionTreeToolDeps contains dependencies for decision tree tools.
type DecisionTreeToolDeps struct {
	Tenants     TenantScoper
	TreeService services.DecisionTreeService
	Logger      *zap.Logger
}

// RegisterDecisionTreeTools registers the read-only decision tree MCP tools.
func RegisterDecisionTreeTools(s *server.MCPServer, deps *DecisionTreeToolDeps) {
	registerListDecisionTreesTool(s, deps)
	registerValidateDecisionTreeTool(s, deps)
	registerEvaluateDecisionTreeTool(s, deps)
}

// readOnlyTool builds a tool annotated as a pure read of project data.
func readOnlyTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append([]mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("UUID of the project that owns the decision trees"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}, opts...)
	return mcp.NewTool(name, opts...)
}

func registerListDecisionTreesTool(s *server.MCPServer, deps *DecisionTreeToolDeps) {
	tool := readOnlyTool(
		"list_decision_trees",
		"List the decision trees stored for a project. "+
			"Returns each tree's id, title and description. "+
			"Use validate_decision_tree or evaluate_decision_tree with a tree id for details.",
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, errResult := requireUUID(req, "project_id")
		if errResult != nil {
			return errResult, nil
		}

		tenantCtx, cleanup, err := deps.Tenants.WithTenantScope(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire database connection: %w", err)
		}
		defer cleanup()

		trees, err := deps.TreeService.ListTrees(tenantCtx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to list decision trees: %w", err)
		}

		result := listDecisionTreesResponse{
			Trees: make([]decisionTreeSummary, 0, len(trees)),
			Count: len(trees),
		}
		for _, t := range trees {
			result.Trees = append(result.Trees, decisionTreeSummary{
				ID:          t.ID.String(),
				Title:       t.Title,
				Description: t.Description,
			})
		}
		return jsonResult(result)
	})
}

func registerValidateDecisionTreeTool(s *server.MCPServer, deps *DecisionTreeToolDeps) {
	tool := readOnlyTool(
		"validate_decision_tree",
		"Check a decision tree's structure without evaluating it. "+
			"Returns every finding with its severity (error blocks evaluation, warning does not), "+
			"a code such as cycle_detected or probability_sum, and the node or option it concerns.",
		mcp.WithString("tree_id",
			mcp.Required(),
			mcp.Description("UUID of the decision tree"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, treeID, errResult := requireProjectAndTree(req)
		if errResult != nil {
			return errResult, nil
		}

		tenantCtx, cleanup, err := deps.Tenants.WithTenantScope(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire database connection: %w", err)
		}
		defer cleanup()

		report, err := deps.TreeService.Validate(tenantCtx, projectID, treeID)
		if err != nil {
			return treeErrorResult(deps, treeID, err)
		}
		return jsonResult(validateDecisionTreeResponse{
			TreeID:    treeID.String(),
			Evaluable: !report.HasErrors(),
			Findings:  report.Findings,
		})
	})
}

func registerEvaluateDecisionTreeTool(s *server.MCPServer, deps *DecisionTreeToolDeps) {
	tool := readOnlyTool(
		"evaluate_decision_tree",
		"Evaluate every root-to-leaf path of a decision tree and rank them by weighted score. "+
			"Returns the recommended path, the ranked paths with score, probability and formatted cost, "+
			"and any warnings. Use top to limit how many ranked paths are returned.",
		mcp.WithString("tree_id",
			mcp.Required(),
			mcp.Description("UUID of the decision tree"),
		),
		mcp.WithNumber("top",
			mcp.Description("Return only the best N ranked paths (default: all)"),
			mcp.Min(0),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, treeID, errResult := requireProjectAndTree(req)
		if errResult != nil {
			return errResult, nil
		}
		top := req.GetInt("top", 0)
		if top < 0 {
			return NewErrorResult(CodeInvalidParameters, "top must be a non-negative integer"), nil
		}

		tenantCtx, cleanup, err := deps.Tenants.WithTenantScope(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire database connection: %w", err)
		}
		defer cleanup()

		result, err := deps.TreeService.Evaluate(tenantCtx, projectID, treeID)
		if err != nil {
			return treeErrorResult(deps, treeID, err)
		}
		return jsonResult(result.Top(top))
	})
}

// ============================================================================
// Responses
// ============================================================================

type decisionTreeSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type listDecisionTreesResponse struct {
	Trees []decisionTreeSummary `json:"trees"`
	Count int                   `json:"count"`
}

type validateDecisionTreeResponse struct {
	TreeID    string `json:"tree_id"`
	Evaluable bool   `json:"evaluable"`
	Findings  any    `json:"findings"`
}
