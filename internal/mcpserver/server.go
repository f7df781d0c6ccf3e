// Package mcpserver exposes the admin core dispute console as MCP tools,
// so an LLM can triage, discuss, and settle disputes over the same API
// the web console uses.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all dispute tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("admincore", "1.0.0")

	client := NewAdminClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolListDisputes, h.HandleListDisputes)
	s.AddTool(ToolGetDispute, h.HandleGetDispute)
	s.AddTool(ToolGetTimeline, h.HandleGetTimeline)
	s.AddTool(ToolGetAuditLog, h.HandleGetAuditLog)
	s.AddTool(ToolGetStats, h.HandleGetStats)
	s.AddTool(ToolUpdateStatus, h.HandleUpdateStatus)
	s.AddTool(ToolAddMessage, h.HandleAddMessage)
	s.AddTool(ToolResolveDispute, h.HandleResolveDispute)

	return s
}
