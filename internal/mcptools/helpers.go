// Package mcptools exposes preview orchestration as MCP tools so coding
// agents can start, stop and inspect project previews over stdio.
//
// Each tool follows the same shape:
//   - a struct holding its dependencies, built by a constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() processes the call and returns a result
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harshul/octo-preview/internal/orchestrator"
	"github.com/harshul/octo-preview/internal/store"
)

// Previews is the part of the supervisor the tools drive
type Previews interface {
	Start(ctx context.Context, projectID string) (orchestrator.Info, error)
	Stop(ctx context.Context, projectID string) (orchestrator.Info, error)
	GetStatus(projectID string) orchestrator.Info
	GetLogs(projectID string) []string
	InstallDependencies(ctx context.Context, projectID string) ([]string, error)
}

// Projects lists known projects
type Projects interface {
	ListProjects(ctx context.Context) ([]store.Project, error)
}

// defaultTail is how many log lines a tool returns unless asked otherwise
const defaultTail = 50

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func projectArg(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	id := strings.TrimSpace(req.GetString("project_id", ""))
	if id == "" {
		return "", mcp.NewToolResultError("'project_id' is required")
	}
	return id, nil
}

func tail(lines []string, n int) []string {
	if n <= 0 || n >= len(lines) {
		return lines
	}
	return lines[len(lines)-n:]
}

// formatInfo renders a preview snapshot as markdown
func formatInfo(projectID string, info orchestrator.Info, logLines int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Preview: %s\n\n", projectID)
	fmt.Fprintf(&sb, "- **Status**: %s\n", info.Status)
	if info.URL != nil {
		fmt.Fprintf(&sb, "- **URL**: %s\n", *info.URL)
	}
	if info.Port != nil {
		fmt.Fprintf(&sb, "- **Port**: %d\n", *info.Port)
	}
	if info.PID > 0 {
		fmt.Fprintf(&sb, "- **PID**: %d\n", info.PID)
	}
	if lines := tail(info.Logs, logLines); len(lines) > 0 {
		sb.WriteString("\n### Recent logs\n\n```\n")
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

// errorResult reports a failed operation along with whatever output it
// produced before failing.
func errorResult(action string, err error) *mcp.CallToolResult {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s failed: %v", action, err)

	var startErr *orchestrator.StartError
	if errors.As(err, &startErr) && len(startErr.Logs) > 0 {
		sb.WriteString("\n\nLogs:\n")
		sb.WriteString(strings.Join(tail(startErr.Logs, defaultTail), "\n"))
	}
	return mcp.NewToolResultError(sb.String())
}
