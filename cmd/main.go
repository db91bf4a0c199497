package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harshul/octo-preview/internal/client"
	"github.com/harshul/octo-preview/internal/config"
	"github.com/harshul/octo-preview/internal/logger"
	"github.com/harshul/octo-preview/internal/mcptools"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

// Set by the root command before any subcommand runs
var (
	cfg  config.Config
	zlog *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "octo",
	Short: "Run and supervise Next.js previews for your projects",
	Long: `Octo runs a Next.js dev server per project: it prepares the project
directory, installs dependencies, assigns a free port, waits for the server to
answer and keeps its logs.

Usage:
  octo serve            Run the preview daemon and its HTTP API
  octo start <id>       Start a project's preview through the daemon
  octo run <id>...      Run previews in this terminal with a dashboard
  octo mcp              Serve preview tools to coding agents over stdio`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is fine
		_ = godotenv.Load()

		configPath, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Log.Level = level
		}
		zlog, err = logger.New(cfg.Log.Level, cfg.Log.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zlog != nil {
			_ = zlog.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultFile, "Path to the configuration file")
	rootCmd.PersistentFlags().String("addr", "", "Daemon address (defaults to the configured listen address)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")

	mcptools.Version = version
}

// apiClient returns a client for the daemon named by --addr or the config
func apiClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Listen
	}
	return client.New(addr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
