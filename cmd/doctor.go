package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-preview/internal/doctor"
	"github.com/harshul/octo-preview/internal/thermal"
	"github.com/harshul/octo-preview/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [project-dir]",
	Short: "Check that this machine can run previews",
	Long: `Doctor checks for Node.js and the package managers, a writable projects
directory, the database and free preview ports. Given a directory it also
checks that project: its manifest, dev script and installed dependencies.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ui.Header("Host")
	healthy := printDiagnosis(doctor.New(cfg).Diagnose())

	status := thermal.CurrentStatus(thermal.DetectHardware())
	if status.Level != "cool" {
		ui.Warn(fmt.Sprintf("%s; installs will be slower", status.Message))
	}

	if len(args) == 1 {
		fmt.Fprintln(ui.Out)
		ui.Header("Project " + args[0])
		healthy = printDiagnosis(doctor.DiagnoseProject(args[0])) && healthy
	}

	if !healthy {
		return errors.New("some checks failed")
	}
	fmt.Fprintln(ui.Out)
	ui.Success("Ready to run previews")
	return nil
}

func printDiagnosis(d doctor.Diagnosis) bool {
	for _, c := range d.Checks {
		line := fmt.Sprintf("%s: %s", c.Name, c.Detail)
		switch c.Level {
		case doctor.OK:
			ui.Success(line)
		case doctor.Warn:
			ui.Warn(line)
		default:
			ui.Error(line)
		}
		if c.Hint != "" && c.Level != doctor.OK {
			ui.Lines([]string{c.Hint})
		}
	}
	return d.Healthy
}
