package mcptools

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients
var Version = "dev"

// NewServer creates an MCP server with every preview tool registered.
func NewServer(projects Projects, previews Previews) *server.MCPServer {
	s := server.NewMCPServer(
		"octo-preview",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(
			"Octo runs Next.js dev-server previews for projects. Use preview_start to get a URL, "+
				"preview_status and preview_logs to inspect it, and preview_stop when done.",
		),
	)

	start := NewStartTool(previews)
	s.AddTool(start.Definition(), start.Handle)

	stop := NewStopTool(previews)
	s.AddTool(stop.Definition(), stop.Handle)

	status := NewStatusTool(previews)
	s.AddTool(status.Definition(), status.Handle)

	logs := NewLogsTool(previews)
	s.AddTool(logs.Definition(), logs.Handle)

	install := NewInstallTool(previews)
	s.AddTool(install.Definition(), install.Handle)

	list := NewProjectsTool(projects, previews)
	s.AddTool(list.Definition(), list.Handle)

	return s
}
