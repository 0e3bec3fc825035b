package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-decisions/pkg/decision"
)

type healthResult struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Limits  healthLimits `json:"limits"`
}

type healthLimits struct {
	MaxNodes int `json:"max_nodes"`
	MaxDepth int `json:"max_depth"`
	MaxPaths int `json:"max_paths"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server version and the evaluation limits trees must fit in.
func RegisterHealthTool(s *server.MCPServer, version string, limits decision.Limits) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and decision tree size limits"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(healthResult{
			Status:  "ok",
			Version: version,
			Limits: healthLimits{
				MaxNodes: limits.MaxNodes,
				MaxDepth: limits.MaxDepth,
				MaxPaths: limits.MaxPaths,
			},
		})
	})
}
