package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ProjectsTool handles the project_list MCP tool.
type ProjectsTool struct {
	projects Projects
	previews Previews
}

// NewProjectsTool creates a ProjectsTool.
func NewProjectsTool(projects Projects, previews Previews) *ProjectsTool {
	return &ProjectsTool{projects: projects, previews: previews}
}

// Definition returns the MCP tool definition for project_list.
func (t *ProjectsTool) Definition() mcp.Tool {
	return mcp.NewTool("project_list",
		mcp.WithDescription("List known projects with their preview status."),
	)
}

// Handle processes the project_list tool call.
func (t *ProjectsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := t.projects.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}
	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects registered."), nil
	}

	var sb strings.Builder
	sb.WriteString("## Projects\n\n")
	for _, p := range projects {
		info := t.previews.GetStatus(p.ID)
		fmt.Fprintf(&sb, "- **%s** (`%s`): %s", p.Name, p.ID, info.Status)
		if info.URL != nil {
			fmt.Fprintf(&sb, " at %s", *info.URL)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}
