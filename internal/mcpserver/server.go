package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// NewMCPServer creates a configured MCP server with all explorer tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("orca-explorer", Version)
	h := NewHandlers(NewExplorerClient(cfg))

	s.AddTool(ToolListAgents, h.HandleListAgents)
	s.AddTool(ToolGetAgent, h.HandleGetAgent)
	s.AddTool(ToolListTransactions, h.HandleListTransactions)
	s.AddTool(ToolListNetworks, h.HandleListNetworks)

	return s
}
