package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/subreview/internal/build"
	"github.com/roasbeef/subreview/internal/ledger"
	"github.com/roasbeef/subreview/internal/session"
)

// UsageSource reports aggregated review usage.
type UsageSource interface {
	Totals(ctx context.Context) ([]ledger.Total, error)
}

// Server exposes stored sessions and reviews as read-only MCP tools.
type Server struct {
	server *mcp.Server
	store  *session.Store
	usage  UsageSource
}

// Config holds configuration for the MCP server.
type Config struct {
	// Store is the session store the tools read from.
	Store *session.Store

	// Usage is optional. Without it usage_summary returns an error.
	Usage UsageSource
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(cfg Config) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "subreview",
		Version: build.Version(),
	}, nil)

	s := &Server{
		server: mcpServer,
		store:  cfg.Store,
		usage:  cfg.Usage,
	}
	s.registerTools()

	return s
}

// Run starts the MCP server on the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List recorded sessions, most recent first",
	}, s.handleListSessions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_session",
		Description: "Get the tracked agents and reviews of a session",
	}, s.handleGetSession)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_review",
		Description: "Get the report and details of one agent review",
	}, s.handleGetReview)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "usage_summary",
		Description: "Summarize review outcomes and token usage by agent type",
	}, s.handleUsageSummary)
}
