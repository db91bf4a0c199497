package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harshul/octo-preview/internal/config"
	"github.com/harshul/octo-preview/internal/eventbus"
	"github.com/harshul/octo-preview/internal/orchestrator"
	"github.com/harshul/octo-preview/internal/provisioner"
	"github.com/harshul/octo-preview/internal/scaffold"
	"github.com/harshul/octo-preview/internal/store"
	"github.com/harshul/octo-preview/internal/thermal"
)

// shutdownTimeout bounds how long stopping every preview may take on exit
const shutdownTimeout = 30 * time.Second

// app is the in-process preview stack shared by serve, run and mcp
type app struct {
	store      *store.Store
	bus        *eventbus.Bus
	supervisor *orchestrator.Supervisor
	hardware   thermal.HardwareInfo
}

func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	hw := thermal.DetectHardware()
	slots := thermal.InstallSlots(hw, cfg.Preview.InstallSlots)
	logger.Debug("host detected",
		zap.String("hardware", thermal.FormatHardwareInfo(hw)),
		zap.Int("install_slots", slots))

	bus := eventbus.NewBus()
	supervisor, err := orchestrator.New(orchestrator.Options{
		Store:      st,
		Scaffolder: scaffold.New(logger),
		Events:     bus,
		Installer: provisioner.NewInstaller(provisioner.InstallerOptions{
			Logger: logger.Named("installer"),
			Slots:  slots,
		}),
		Logger:        logger.Named("orchestrator"),
		ProjectsDir:   cfg.ProjectsDir,
		PortRange:     cfg.PortRange(),
		LogLimit:      cfg.Preview.LogLimit,
		ReadyTimeout:  cfg.Preview.ReadyTimeout,
		ReadyInterval: cfg.Preview.ReadyInterval,
		KillGrace:     cfg.Preview.KillGrace,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{store: st, bus: bus, supervisor: supervisor, hardware: hw}, nil
}

// close stops every live preview and closes the store
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := a.supervisor.Shutdown(ctx)
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return shutdownErr
}
