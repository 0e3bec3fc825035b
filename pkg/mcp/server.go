// Package mcp serves the decision tree tools over the Model Context Protocol.
package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/decision"
	"github.com/ekaya-inc/ekaya-decisions/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-decisions/pkg/middleware"
)

// Server wraps the mcp-go MCPServer with the service's tools and logging.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance with the health tool registered.
func NewServer(name, version string, limits decision.Limits, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	tools.RegisterHealthTool(mcpServer, version, limits)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterDecisionTreeTools adds the decision tree tools.
func (s *Server) RegisterDecisionTreeTools(deps *tools.DecisionTreeToolDeps) {
	if deps.Logger == nil {
		deps.Logger = s.logger
	}
	tools.RegisterDecisionTreeTools(s.mcp, deps)
}

// Handler returns the stateless streamable HTTP transport wrapped with request logging.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) Handler() http.Handler {
	transport := server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
	return middleware.MCPRequestLogger(s.logger)(transport)
}
