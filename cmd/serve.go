package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harshul/octo-preview/internal/server"
)

// serveCmd runs the preview daemon
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the preview daemon and its HTTP API",
	Long: `The serve command runs the preview supervisor in the foreground and
exposes it over HTTP and a WebSocket event stream. Other octo commands talk to
it through --addr.

Every running preview is stopped when the daemon exits.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on (defaults to the configured listen address)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = cfg.Listen
	}

	a, err := newApp(cfg, zlog)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Projects: a.store,
		Previews: a.supervisor,
		Bus:      a.bus,
		Logger:   zlog.Named("http"),
	})

	zlog.Info("preview daemon starting",
		zap.String("listen", listen),
		zap.String("projects_dir", cfg.ProjectsDir),
		zap.Stringer("ports", cfg.PortRange()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, listen)
	})
	runErr := g.Wait()

	zlog.Info("stopping previews", zap.Int("live", len(a.supervisor.Live())))
	if err := a.close(); err != nil {
		zlog.Warn("shutdown incomplete", zap.Error(err))
	}
	return runErr
}
