package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-preview/internal/store"
	"github.com/harshul/octo-preview/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage the projects the daemon knows about",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a project",
	Long: `Create registers a project with the daemon. With --repo the preview runs
from that directory; without it the project lives under the projects
directory and a starter Next.js app is scaffolded on first start.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		repo, _ := cmd.Flags().GetString("repo")
		if repo != "" {
			abs, err := filepath.Abs(repo)
			if err != nil {
				return fmt.Errorf("resolve repo path: %w", err)
			}
			repo = abs
		}

		p, err := apiClient(cmd).CreateProject(cmd.Context(), store.CreateParams{ID: id, Name: args[0], RepoPath: repo})
		if err != nil {
			return explain(err)
		}
		ui.Success(fmt.Sprintf("Created project %s", p.Name))
		ui.Highlight("ID", p.ID)
		if p.RepoPath != "" {
			ui.Highlight("Repo", p.RepoPath)
		}
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects and their preview status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := apiClient(cmd).ListProjects(cmd.Context())
		if err != nil {
			return explain(err)
		}
		if len(projects) == 0 {
			ui.Info("No projects registered. Create one with 'octo project create <name>'.")
			return nil
		}
		for _, p := range projects {
			line := fmt.Sprintf("%s (%s): %s", p.Name, p.ID, p.Status)
			if p.PreviewURL != nil {
				line += " at " + *p.PreviewURL
			}
			fmt.Fprintln(ui.Out, line)
		}
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Stop a project's preview and forget the project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := ui.Confirm(fmt.Sprintf("Delete project %s?", args[0]), false)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("aborted")
			}
		}

		if err := apiClient(cmd).DeleteProject(cmd.Context(), args[0]); err != nil {
			return explain(err)
		}
		ui.Success(fmt.Sprintf("Deleted project %s", args[0]))
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().String("id", "", "Project id (a UUID is generated when empty)")
	projectCreateCmd.Flags().String("repo", "", "Existing directory to run the preview from")
	projectDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}
