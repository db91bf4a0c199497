package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartTool handles the preview_start MCP tool.
type StartTool struct {
	previews Previews
}

// NewStartTool creates a StartTool.
func NewStartTool(previews Previews) *StartTool {
	return &StartTool{previews: previews}
}

// Definition returns the MCP tool definition for preview_start.
func (t *StartTool) Definition() mcp.Tool {
	return mcp.NewTool("preview_start",
		mcp.WithDescription(
			"Start the Next.js dev server for a project and return its URL. "+
				"Calling it again while the preview is live returns the existing preview.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project identifier"),
		),
	)
}

// Handle processes the preview_start tool call.
func (t *StartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := projectArg(req)
	if errResult != nil {
		return errResult, nil
	}

	info, err := t.previews.Start(ctx, id)
	if err != nil {
		return errorResult("preview_start", err), nil
	}
	return mcp.NewToolResultText(formatInfo(id, info, defaultTail)), nil
}

// StopTool handles the preview_stop MCP tool.
type StopTool struct {
	previews Previews
}

// NewStopTool creates a StopTool.
func NewStopTool(previews Previews) *StopTool {
	return &StopTool{previews: previews}
}

// Definition returns the MCP tool definition for preview_stop.
func (t *StopTool) Definition() mcp.Tool {
	return mcp.NewTool("preview_stop",
		mcp.WithDescription("Stop a project's preview server and everything it spawned."),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project identifier"),
		),
	)
}

// Handle processes the preview_stop tool call.
func (t *StopTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := projectArg(req)
	if errResult != nil {
		return errResult, nil
	}

	info, err := t.previews.Stop(ctx, id)
	if err != nil {
		return errorResult("preview_stop", err), nil
	}
	return mcp.NewToolResultText(formatInfo(id, info, 0)), nil
}

// StatusTool handles the preview_status MCP tool.
type StatusTool struct {
	previews Previews
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(previews Previews) *StatusTool {
	return &StatusTool{previews: previews}
}

// Definition returns the MCP tool definition for preview_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("preview_status",
		mcp.WithDescription("Report whether a project's preview is starting, running, stopped or failed."),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project identifier"),
		),
		mcp.WithNumber("log_lines",
			mcp.Description("Number of recent log lines to include (default: 20)"),
		),
	)
}

// Handle processes the preview_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := projectArg(req)
	if errResult != nil {
		return errResult, nil
	}
	info := t.previews.GetStatus(id)
	return mcp.NewToolResultText(formatInfo(id, info, intArg(req, "log_lines", 20))), nil
}

// LogsTool handles the preview_logs MCP tool.
type LogsTool struct {
	previews Previews
}

// NewLogsTool creates a LogsTool.
func NewLogsTool(previews Previews) *LogsTool {
	return &LogsTool{previews: previews}
}

// Definition returns the MCP tool definition for preview_logs.
func (t *LogsTool) Definition() mcp.Tool {
	return mcp.NewTool("preview_logs",
		mcp.WithDescription("Return the preview's buffered output, oldest first."),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project identifier"),
		),
		mcp.WithNumber("tail",
			mcp.Description("Only return the last N lines (default: 50, 0 for everything buffered)"),
		),
	)
}

// Handle processes the preview_logs tool call.
func (t *LogsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := projectArg(req)
	if errResult != nil {
		return errResult, nil
	}

	lines := tail(t.previews.GetLogs(id), intArg(req, "tail", defaultTail))
	if len(lines) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No preview logs buffered for project %s.", id)), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// InstallTool handles the preview_install MCP tool.
type InstallTool struct {
	previews Previews
}

// NewInstallTool creates an InstallTool.
func NewInstallTool(previews Previews) *InstallTool {
	return &InstallTool{previews: previews}
}

// Definition returns the MCP tool definition for preview_install.
func (t *InstallTool) Definition() mcp.Tool {
	return mcp.NewTool("preview_install",
		mcp.WithDescription(
			"Install a project's dependencies with the package manager its lockfile names, "+
				"without starting a preview.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project identifier"),
		),
	)
}

// Handle processes the preview_install tool call.
func (t *InstallTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := projectArg(req)
	if errResult != nil {
		return errResult, nil
	}

	logs, err := t.previews.InstallDependencies(ctx, id)
	if err != nil {
		return errorResult("preview_install", err), nil
	}
	return mcp.NewToolResultText(strings.Join(logs, "\n")), nil
}
