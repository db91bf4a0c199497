package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/harshul/octo-preview/internal/eventbus"
	"github.com/harshul/octo-preview/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [project-id...]",
	Short: "Follow previews running in the daemon",
	Long: `Watch streams log and status events from the daemon for the given
projects, or for every registered project when none are named. A dashboard is
shown on interactive terminals; use --no-tui for plain prefixed output.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("no-tui", false, "Disable TUI dashboard (use plain scrolling output)")
	rootCmd.AddCommand(watchCmd)
}

// eventView is where streamed events are shown
type eventView interface {
	Send(ev eventbus.Event)
}

// useDashboard reports whether the terminal can host the dashboard
func useDashboard(cmd *cobra.Command) bool {
	noTUI, _ := cmd.Flags().GetBool("no-tui")
	return !noTUI && term.IsTerminal(int(os.Stdout.Fd()))
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := apiClient(cmd)
	projects, err := c.ListProjects(ctx)
	if err != nil {
		return explain(err)
	}

	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	ids := args
	if len(ids) == 0 {
		for _, p := range projects {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		ui.Info("No projects registered.")
		return nil
	}

	rows := make([]*ui.Row, 0, len(ids))
	for _, id := range ids {
		info, err := c.Status(ctx, id)
		if err != nil {
			return explain(err)
		}
		row := ui.NewRow(id, names[id])
		row.SetInfo(info)
		rows = append(rows, row)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		view      eventView
		dashboard *ui.DashboardModel
	)
	if useDashboard(cmd) {
		ui.SortRows(rows)
		dashboard = ui.NewDashboard(rows, c)
		view = dashboard
	} else {
		view = ui.NewPlainPrinter(ui.Out, names)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Watch(ctx, id, view.Send)
			if err != nil && !errors.Is(err, context.Canceled) {
				zlog.Warn("event stream ended", zap.String("project", id), zap.Error(err))
			}
		}()
	}

	if dashboard != nil {
		err = ui.RunDashboard(ctx, dashboard)
		cancel()
	} else {
		<-ctx.Done()
	}
	wg.Wait()
	return err
}
