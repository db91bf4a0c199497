package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harshul/octo-preview/internal/store"
	"github.com/harshul/octo-preview/internal/thermal"
	"github.com/harshul/octo-preview/internal/ui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [project-id...]",
	Short: "Run previews in this terminal",
	Long: `The run command supervises previews in-process, without a daemon. It
starts the named projects, or every registered project when none are named,
and shows their logs until you quit. Every preview is stopped on exit.

Large sets of projects are started in batches sized to the machine so a
laptop is not flooded with dev servers compiling at once.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("no-tui", false, "Disable TUI dashboard (use plain scrolling output)")
	runCmd.Flags().Int("batch-size", 0, "Previews to start together (0 sizes it from the host)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, zlog)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			zlog.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	projects, err := selectProjects(ctx, a.store, args)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		ui.Info("No projects registered. Create one with 'octo project create <name>'.")
		return nil
	}

	names := make(map[string]string, len(projects))
	rows := make([]*ui.Row, 0, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
		rows = append(rows, ui.NewRow(p.ID, p.Name))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		view      eventView
		dashboard *ui.DashboardModel
	)
	if useDashboard(cmd) {
		ui.SortRows(rows)
		dashboard = ui.NewDashboard(rows, a.supervisor)
		view = dashboard
	} else {
		view = ui.NewPlainPrinter(ui.Out, names)
	}

	for _, p := range projects {
		sub := a.bus.Subscribe(p.ID, view.Send)
		defer a.bus.Unsubscribe(sub)
	}

	configured, _ := cmd.Flags().GetInt("batch-size")
	batch := thermal.BatchSize(a.hardware, len(projects), configured)

	starts := make(chan error, 1)
	go func() {
		starts <- startInBatches(ctx, a, projects, batch)
	}()

	if dashboard != nil {
		err = ui.RunDashboard(ctx, dashboard)
		cancel()
		<-starts
		return err
	}

	if err := <-starts; err != nil && ctx.Err() == nil {
		ui.Warn(err.Error())
	}
	<-ctx.Done()
	return nil
}

// selectProjects loads the named projects, or all of them when ids is empty
func selectProjects(ctx context.Context, st *store.Store, ids []string) ([]store.Project, error) {
	if len(ids) == 0 {
		return st.ListProjects(ctx)
	}
	projects := make([]store.Project, 0, len(ids))
	for _, id := range ids {
		p, err := st.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, nil
}

// startInBatches starts previews batch by batch, pausing between batches.
// Failures are already published as status events; the combined error only
// reports how many previews did not come up.
func startInBatches(ctx context.Context, a *app, projects []store.Project, batch int) error {
	failed := 0
	for i := 0; i < len(projects); i += batch {
		end := min(i+batch, len(projects))

		g, gctx := errgroup.WithContext(ctx)
		results := make([]error, end-i)
		for j, p := range projects[i:end] {
			g.Go(func() error {
				_, results[j] = a.supervisor.Start(gctx, p.ID)
				return nil
			})
		}
		_ = g.Wait()

		for _, err := range results {
			if err != nil {
				failed++
			}
		}

		if end < len(projects) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(thermal.DefaultCoolDownMs * time.Millisecond):
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d previews failed to start", failed, len(projects))
	}
	return ctx.Err()
}
