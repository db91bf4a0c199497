package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-preview/internal/client"
	"github.com/harshul/octo-preview/internal/ui"
)

// logLinesOnFailure is how many buffered lines are shown when a start fails
const logLinesOnFailure = 20

var startCmd = &cobra.Command{
	Use:   "start <project-id>",
	Short: "Start a project's preview",
	Long: `Start asks the daemon to bring up the project's dev server and waits until
it answers or fails. Starting a preview that is already running returns it
unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ui.Info(fmt.Sprintf("Starting preview for %s...", args[0]))
		info, err := apiClient(cmd).Start(cmd.Context(), args[0])
		if err != nil {
			return explain(err)
		}
		ui.Success("Preview is up")
		ui.PreviewInfo(args[0], info, 0)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <project-id>",
	Short: "Stop a project's preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiClient(cmd).Stop(cmd.Context(), args[0]); err != nil {
			return explain(err)
		}
		ui.Success(fmt.Sprintf("Preview for %s stopped", args[0]))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <project-id>",
	Short: "Show a project's preview status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, _ := cmd.Flags().GetInt("log-lines")
		info, err := apiClient(cmd).Status(cmd.Context(), args[0])
		if err != nil {
			return explain(err)
		}
		ui.PreviewInfo(args[0], info, lines)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <project-id>",
	Short: "Print a project's buffered preview logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		logs, err := apiClient(cmd).Logs(cmd.Context(), args[0], tail)
		if err != nil {
			return explain(err)
		}
		for _, line := range logs {
			fmt.Fprintln(ui.Out, line)
		}
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install <project-id>",
	Short: "Install a project's dependencies without starting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ui.Info(fmt.Sprintf("Installing dependencies for %s...", args[0]))
		lines, err := apiClient(cmd).Install(cmd.Context(), args[0])
		if err != nil {
			return explain(err)
		}
		ui.Lines(lines)
		ui.Success("Dependencies are installed")
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("log-lines", 10, "Number of trailing log lines to show")
	logsCmd.Flags().IntP("tail", "n", 0, "Only print the last n lines (0 prints all)")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, logsCmd, installCmd)
}

// explain prints whatever the daemon captured for a failed request and
// returns the error for cobra to report.
func explain(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w (is 'octo serve' running?)", err)
	}

	logs := apiErr.Logs
	if len(logs) > logLinesOnFailure {
		logs = logs[len(logs)-logLinesOnFailure:]
	}
	if len(logs) > 0 {
		ui.Error("Preview logs:")
		ui.Lines(logs)
	}
	if len(apiErr.StderrTail) > 0 {
		ui.Error("Last stderr output:")
		ui.Lines(apiErr.StderrTail)
	}
	return err
}
