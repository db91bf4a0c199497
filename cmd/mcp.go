package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/harshul/octo-preview/internal/mcptools"
)

// mcpCmd serves the preview tools over stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve preview tools to coding agents over stdio",
	Long: `The mcp command runs an in-process preview supervisor and exposes it as
Model Context Protocol tools on stdin/stdout. Point an agent's MCP client
configuration at "octo mcp".

Logs go to stderr; stdout carries only protocol messages.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, zlog)
	if err != nil {
		return err
	}
	defer a.close()

	s := mcptools.NewServer(a.store, a.supervisor)
	return server.ServeStdio(s)
}
