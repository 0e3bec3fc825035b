package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-decisions/pkg/decision"
)

// Error codes returned in tool error results.
const (
	CodeInvalidParameters = "invalid_parameters"
	CodeTreeNotFound      = "tree_not_found"
	CodeInvalidTree       = "invalid_tree"
	CodeTreeTooLarge      = "tree_too_large"
	CodeEvaluationTimeout = "evaluation_timeout"
)

// ErrorResponse is the body of a tool error result. The calling model reads
// it as ordinary tool output, so it can correct its arguments and retry.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates an error result for a problem the caller can fix.
// Infrastructure failures are returned as Go errors instead.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails is NewErrorResult with structured details attached.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	body, err := json.Marshal(ErrorResponse{Error: true, Code: code, Message: message, Details: details})
	if err != nil {
		body, _ = json.Marshal(ErrorResponse{Error: true, Code: code, Message: message})
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(body))},
		IsError: true,
	}
}

// treeErrorResult maps service errors onto tool error results. Anything it
// does not recognise is logged and returned as a Go error.
func treeErrorResult(deps *DecisionTreeToolDeps, treeID uuid.UUID, err error) (*mcp.CallToolResult, error) {
	var validationErr *decision.ValidationError
	var tooLargeErr *decision.TreeTooLargeError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult(CodeTreeNotFound, fmt.Sprintf("decision tree %s not found", treeID)), nil
	case errors.As(err, &validationErr):
		return NewErrorResultWithDetails(CodeInvalidTree, validationErr.Error(), validationErr.Findings), nil
	case errors.As(err, &tooLargeErr):
		return NewErrorResultWithDetails(CodeTreeTooLarge, tooLargeErr.Error(), tooLargeErr), nil
	case errors.Is(err, context.DeadlineExceeded):
		return NewErrorResult(CodeEvaluationTimeout, "evaluation did not finish in time"), nil
	}

	deps.Logger.Error("Decision tree tool failed",
		zap.String("tree_id", treeID.String()),
		zap.Error(err))
	return nil, fmt.Errorf("decision tree %s: %w", treeID, err)
}
