package provisioner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// InstallFailedError is returned when the dependency install exits nonzero
// or cannot be started at all.
type InstallFailedError struct {
	ProjectPath string
	Manager     PackageManager
	Command     string
	ExitCode    int
	StderrTail  []string
	Err         error
}

func (e *InstallFailedError) Error() string {
	msg := fmt.Sprintf("dependency install failed in %s: %s", e.ProjectPath, e.Command)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" exited with code %d", e.ExitCode)
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.StderrTail) > 0 {
		msg += "\n" + strings.Join(e.StderrTail, "\n")
	}
	return msg
}

func (e *InstallFailedError) Unwrap() error { return e.Err }

func newInstallFailed(projectPath string, m PackageManager, command string, err error) *InstallFailedError {
	out := &InstallFailedError{
		ProjectPath: projectPath,
		Manager:     m,
		Command:     command,
		ExitCode:    -1,
		Err:         err,
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		out.ExitCode = cmdErr.ExitCode
		out.StderrTail = cmdErr.StderrTail
	}
	return out
}

// InstallerOptions configures an Installer
type InstallerOptions struct {
	Logger *zap.Logger
	// Runner overrides how commands are executed. Defaults to RunCommand.
	Runner Runner
	// Slots caps concurrent installs across all projects; 0 means no cap
	Slots int
}

// Installer runs dependency installs, at most one at a time per project.
type Installer struct {
	mu       sync.Mutex
	inflight map[string]*installCall
	run      Runner
	logger   *zap.Logger
	slots    chan struct{}
}

type installCall struct {
	done chan struct{}
	err  error
}

// NewInstaller creates an installer
func NewInstaller(opts InstallerOptions) *Installer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Runner == nil {
		opts.Runner = RunCommand
	}
	inst := &Installer{
		inflight: make(map[string]*installCall),
		run:      opts.Runner,
		logger:   opts.Logger,
	}
	if opts.Slots > 0 {
		inst.slots = make(chan struct{}, opts.Slots)
	}
	return inst
}

// InProgress reports whether an install is currently running for projectID
func (i *Installer) InProgress(projectID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.inflight[projectID]
	return ok
}

// EnsureDependencies installs dependencies for the project unless node_modules
// already exists. If another caller is installing for the same project, this
// call waits for that install and returns its result instead of starting a
// second one.
func (i *Installer) EnsureDependencies(ctx context.Context, projectID, projectPath string, env []string, sink LineSink) error {
	_, err := i.Ensure(ctx, projectID, projectPath, env, sink)
	return err
}

// Ensure is EnsureDependencies that also reports whether node_modules was
// already complete, meaning no install ran or was waited on.
//
// An install in flight takes precedence over node_modules on disk: package
// managers create the directory early, so its presence alone does not mean
// the tree is usable.
func (i *Installer) Ensure(ctx context.Context, projectID, projectPath string, env []string, sink LineSink) (bool, error) {
	if sink == nil {
		sink = func(string) {}
	}

	i.mu.Lock()
	if call, ok := i.inflight[projectID]; ok {
		i.mu.Unlock()
		sink(LogPrefix + "Dependency installation already in progress; waiting...")
		select {
		case <-call.done:
			return false, call.err
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if HasDependencies(projectPath) {
		i.mu.Unlock()
		return true, nil
	}
	call := &installCall{done: make(chan struct{})}
	i.inflight[projectID] = call
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		delete(i.inflight, projectID)
		i.mu.Unlock()
		close(call.done)
	}()

	call.err = i.withSlot(ctx, sink, func() error {
		return i.install(ctx, projectPath, env, sink)
	})
	if call.err != nil {
		i.logger.Warn("dependency install failed",
			zap.String("project_id", projectID),
			zap.String("path", projectPath),
			zap.Error(call.err))
	}
	return false, call.err
}

// withSlot runs fn once a host-wide install slot is free
func (i *Installer) withSlot(ctx context.Context, sink LineSink, fn func() error) error {
	if i.slots == nil {
		return fn()
	}
	select {
	case i.slots <- struct{}{}:
	default:
		sink(LogPrefix + "Waiting for another project's install to finish...")
		select {
		case i.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer func() { <-i.slots }()
	return fn()
}

func (i *Installer) install(ctx context.Context, projectPath string, env []string, sink LineSink) error {
	// Another install may have finished while we were acquiring the slot
	if HasDependencies(projectPath) {
		return nil
	}

	det := DetectPackageManager(projectPath)
	args := InstallCommand(det.Manager)

	sink(LogPrefix + "========================================")
	sink(LogPrefix + "Working Directory: " + projectPath)
	sink(LogPrefix + fmt.Sprintf("Installing dependencies using %s.", det.Manager))
	sink(LogPrefix + "Command: " + strings.Join(args, " "))
	sink(LogPrefix + "========================================")

	i.logger.Info("installing dependencies",
		zap.String("path", projectPath),
		zap.String("manager", string(det.Manager)),
		zap.String("source", det.Source))

	err := i.run(ctx, projectPath, env, sink, args[0], args[1:]...)
	if err == nil {
		return nil
	}

	if det.Manager != NPM && errors.Is(err, exec.ErrNotFound) {
		sink(LogPrefix + fmt.Sprintf("%s unavailable. Falling back to npm install.", args[0]))
		npmArgs := InstallCommand(NPM)
		if err := i.run(ctx, projectPath, env, sink, npmArgs[0], npmArgs[1:]...); err != nil {
			return newInstallFailed(projectPath, NPM, strings.Join(npmArgs, " "), err)
		}
		return nil
	}

	return newInstallFailed(projectPath, det.Manager, strings.Join(args, " "), err)
}
