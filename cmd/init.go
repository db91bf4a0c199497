package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-preview/internal/config"
	"github.com/harshul/octo-preview/internal/thermal"
	"github.com/harshul/octo-preview/internal/ui"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an octo.yaml with the default settings",
	Long: `The init command writes the effective configuration (defaults plus any
environment overrides) to octo.yaml so it can be edited. It sets
preview.install_slots from this machine's hardware.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringP("output", "o", config.DefaultFile, "Output file path for the configuration")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")

	if !filepath.IsAbs(outputPath) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		outputPath = filepath.Join(cwd, outputPath)
	}

	if _, err := os.Stat(outputPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s. Use --force to overwrite", outputPath)
	}

	out := cfg
	hw := thermal.DetectHardware()
	if out.Preview.InstallSlots == 0 {
		out.Preview.InstallSlots = thermal.InstallSlots(hw, 0)
	}

	if err := config.Write(outputPath, out); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	ui.Success(fmt.Sprintf("Configuration written to %s", outputPath))
	ui.Highlight("Host", thermal.FormatHardwareInfo(hw))
	ui.Highlight("Install slots", fmt.Sprint(out.Preview.InstallSlots))
	ui.Highlight("Ports", out.PortRange().String())
	ui.Info("Run 'octo serve' to start the preview daemon")
	return nil
}
