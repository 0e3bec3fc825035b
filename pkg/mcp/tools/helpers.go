package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a tool argument.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// jsonResult marshals v as the text content of a successful tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// requireUUID reads a required UUID argument. A missing or malformed value
// yields an invalid_parameters tool result.
func requireUUID(req mcp.CallToolRequest, name string) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString(name)
	if err != nil {
		return uuid.Nil, NewErrorResult(CodeInvalidParameters, fmt.Sprintf("%s is required", name))
	}
	id, err := uuid.Parse(trimString(raw))
	if err != nil {
		return uuid.Nil, NewErrorResult(CodeInvalidParameters, fmt.Sprintf("%s must be a UUID, got %q", name, raw))
	}
	return id, nil
}

func requireProjectAndTree(req mcp.CallToolRequest) (uuid.UUID, uuid.UUID, *mcp.CallToolResult) {
	projectID, errResult := requireUUID(req, "project_id")
	if errResult != nil {
		return uuid.Nil, uuid.Nil, errResult
	}
	treeID, errResult := requireUUID(req, "tree_id")
	if errResult != nil {
		return uuid.Nil, uuid.Nil, errResult
	}
	return projectID, treeID, nil
}
