package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all cordon analyst tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("cordon", "1.0.0")
	client := NewCordonClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolListThreats, h.HandleListThreats)
	s.AddTool(ToolInspectThreat, h.HandleInspectThreat)
	s.AddTool(ToolListFrozen, h.HandleListFrozen)
	s.AddTool(ToolPendingAnalyses, h.HandlePendingAnalyses)
	s.AddTool(ToolSubmitVerdict, h.HandleSubmitVerdict)
	s.AddTool(ToolResolveThreat, h.HandleResolveThreat)
	s.AddTool(ToolGatewayStats, h.HandleGatewayStats)

	return s
}
