// Package orchestrator supervises one Next.js dev server per project: it
// prepares the project directory, installs dependencies, spawns the server
// on a free port and tears the whole process tree down again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/harshul/octo-preview/internal/analyzer"
	"github.com/harshul/octo-preview/internal/eventbus"
	"github.com/harshul/octo-preview/internal/ports"
	"github.com/harshul/octo-preview/internal/proctree"
	"github.com/harshul/octo-preview/internal/provisioner"
	"github.com/harshul/octo-preview/internal/readiness"
	"github.com/harshul/octo-preview/internal/scaffold"
	"github.com/harshul/octo-preview/internal/store"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultLogLimit  = 400
	DefaultKillGrace = 5 * time.Second
)

// Status is the lifecycle state of a preview process.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Info is the snapshot of a preview handed to callers.
type Info struct {
	Port   *int     `json:"port"`
	URL    *string  `json:"url"`
	Status Status   `json:"status"`
	Logs   []string `json:"logs"`
	PID    int      `json:"pid,omitempty"`
}

func stoppedInfo(logs []string) Info {
	if logs == nil {
		logs = []string{}
	}
	return Info{Status: StatusStopped, Logs: logs}
}

// ProjectStore is the subset of the project store the supervisor needs.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
	UpdatePreview(ctx context.Context, id string, u store.PreviewUpdate) error
	UpdateStatus(ctx context.Context, id string, status store.Status) error
}

// Scaffolder creates a starter app in a directory without package.json.
type Scaffolder interface {
	Scaffold(ctx context.Context, root, projectID string) error
}

// EventSink receives log and status events for a project.
type EventSink interface {
	Publish(projectID string, ev eventbus.Event)
}

type nopSink struct{}

func (nopSink) Publish(string, eventbus.Event) {}

// Options configures a Supervisor. Store is required.
type Options struct {
	Store      ProjectStore
	Scaffolder Scaffolder
	Events     EventSink
	Installer  *provisioner.Installer
	Killer     proctree.TreeKiller
	Logger     *zap.Logger

	// ProjectsDir holds projects without an explicit repo path
	ProjectsDir string
	PortRange   ports.Range
	LogLimit    int

	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	KillGrace     time.Duration

	// Command is the package manager binary used for predev and dev.
	// Defaults to npm.
	Command string
	// Runner executes the predev script. Defaults to provisioner.RunCommand.
	Runner provisioner.Runner
}

// StartError is returned when a preview could not be brought up. Logs holds
// whatever the attempt wrote before it failed.
type StartError struct {
	ProjectID string
	Stage     string
	Logs      []string
	Err       error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start preview for project %s: %s: %v", e.ProjectID, e.Stage, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ErrStopped is wrapped by the StartError of a start that a Stop overtook
var ErrStopped = errors.New("preview stopped while starting")

// Supervisor owns every live preview process on the host.
type Supervisor struct {
	store      ProjectStore
	scaffolder Scaffolder
	events     EventSink
	installer  *provisioner.Installer
	killer     proctree.TreeKiller
	logger     *zap.Logger
	ports      *ports.Allocator
	run        provisioner.Runner

	projectsDir   string
	logLimit      int
	readyTimeout  time.Duration
	readyInterval time.Duration
	killGrace     time.Duration
	command       string

	starts singleflight.Group

	mu   sync.Mutex
	live map[string]*process
	gens map[string]uint64
}

// New creates a Supervisor
func New(opts Options) (*Supervisor, error) {
	if opts.Store == nil {
		return nil, errors.New("orchestrator: a project store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = nopSink{}
	}
	if opts.Scaffolder == nil {
		opts.Scaffolder = scaffold.New(opts.Logger)
	}
	if opts.Installer == nil {
		opts.Installer = provisioner.NewInstaller(provisioner.InstallerOptions{Logger: opts.Logger})
	}
	if opts.Killer == nil {
		opts.Killer = proctree.New()
	}
	if opts.Runner == nil {
		opts.Runner = provisioner.RunCommand
	}
	if opts.Command == "" {
		opts.Command = provisioner.CommandName(provisioner.NPM)
	}
	if opts.ProjectsDir == "" {
		opts.ProjectsDir = filepath.Join("data", "projects")
	}
	if opts.PortRange == (ports.Range{}) {
		opts.PortRange = ports.ResolveRange(0, 0)
	}
	if opts.LogLimit <= 0 {
		opts.LogLimit = DefaultLogLimit
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = readiness.DefaultTimeout
	}
	if opts.ReadyInterval <= 0 {
		opts.ReadyInterval = readiness.DefaultInterval
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}

	projectsDir, err := filepath.Abs(opts.ProjectsDir)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve projects dir: %w", err)
	}

	return &Supervisor{
		store:         opts.Store,
		scaffolder:    opts.Scaffolder,
		events:        opts.Events,
		installer:     opts.Installer,
		killer:        opts.Killer,
		logger:        opts.Logger,
		ports:         ports.NewAllocator(opts.PortRange),
		run:           opts.Runner,
		projectsDir:   projectsDir,
		logLimit:      opts.LogLimit,
		readyTimeout:  opts.ReadyTimeout,
		readyInterval: opts.ReadyInterval,
		killGrace:     opts.KillGrace,
		command:       opts.Command,
		live:          make(map[string]*process),
		gens:          make(map[string]uint64),
	}, nil
}

// PortRange returns the range previews are allocated from
func (s *Supervisor) PortRange() ports.Range {
	return s.ports.Range()
}

// ProjectRoot returns the directory a project's sources live in.
func (s *Supervisor) ProjectRoot(p *store.Project) (string, error) {
	if p.RepoPath != "" {
		return filepath.Abs(p.RepoPath)
	}
	return filepath.Join(s.projectsDir, p.ID), nil
}

// Start brings up the preview for a project, or returns the running one.
// Concurrent calls for the same project share a single spawn.
func (s *Supervisor) Start(ctx context.Context, projectID string) (Info, error) {
	if info, ok := s.liveInfo(projectID); ok {
		return info, nil
	}

	v, err, _ := s.starts.Do(projectID, func() (any, error) {
		if info, ok := s.liveInfo(projectID); ok {
			return info, nil
		}
		return s.start(ctx, projectID)
	})
	if err != nil {
		return Info{}, err
	}
	return v.(Info), nil
}

// liveInfo returns the snapshot of a live entry that has not failed
func (s *Supervisor) liveInfo(projectID string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.live[projectID]
	if !ok || p.status == StatusError {
		return Info{}, false
	}
	return p.infoLocked(), true
}

// Stop tears down a project's preview. Stopping a project with no preview
// only resets its persisted preview fields.
func (s *Supervisor) Stop(ctx context.Context, projectID string) (Info, error) {
	s.mu.Lock()
	// Any start still in flight is now stale and will not register
	s.gens[projectID]++
	p, ok := s.live[projectID]
	if ok {
		delete(s.live, projectID)
		p.stopping = true
	}
	s.mu.Unlock()

	if !ok {
		if err := s.resetPreview(ctx, projectID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return stoppedInfo(nil), err
		}
		return stoppedInfo(nil), nil
	}

	p.cancel()
	if err := proctree.Terminate(s.killer, p.pid, p.done, s.killGrace); err != nil {
		s.logger.Warn("failed to kill preview process tree",
			zap.String("project_id", projectID),
			zap.Int("pid", p.pid),
			zap.Error(err))
	}

	go s.cleanBuildDir(projectID, p.root)

	s.ports.Release(p.port, p.owner)
	if err := s.resetPreview(context.WithoutCancel(ctx), projectID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("failed to reset project preview",
			zap.String("project_id", projectID), zap.Error(err))
	}

	s.logger.Info("preview stopped", zap.String("project_id", projectID), zap.Int("pid", p.pid))
	return stoppedInfo(p.logs.GetAll()), nil
}

// GetStatus returns the current snapshot for a project
func (s *Supervisor) GetStatus(projectID string) Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.live[projectID]
	if !ok {
		return stoppedInfo(nil)
	}
	return p.infoLocked()
}

// GetLogs returns the buffered log lines for a project
func (s *Supervisor) GetLogs(projectID string) []string {
	s.mu.Lock()
	p, ok := s.live[projectID]
	s.mu.Unlock()
	if !ok {
		return []string{}
	}
	return p.logs.GetAll()
}

// Live returns the ids of projects with a preview process, sorted
func (s *Supervisor) Live() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown stops every live preview in parallel
func (s *Supervisor) Shutdown(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range s.Live() {
		g.Go(func() error {
			_, err := s.Stop(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// InstallDependencies prepares a project and installs its dependencies
// without starting a dev server. The returned lines describe what happened.
func (s *Supervisor) InstallDependencies(ctx context.Context, projectID string) ([]string, error) {
	var (
		mu   sync.Mutex
		logs []string
	)
	record := func(line string) {
		if !strings.HasPrefix(line, provisioner.LogPrefix) {
			line = provisioner.LogPrefix + line
		}
		mu.Lock()
		logs = append(logs, line)
		mu.Unlock()
	}
	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string{}, logs...)
	}

	root, err := s.prepare(ctx, projectID, record)
	if err != nil {
		return snapshot(), err
	}

	skipped, err := s.installer.Ensure(ctx, projectID, root, os.Environ(), record)
	if err != nil {
		return snapshot(), err
	}

	if skipped {
		record("Dependencies already installed. Skipped install command.")
	} else {
		record("Dependency installation completed.")
	}
	return snapshot(), nil
}

// prepare resolves the project directory and makes it startable: it creates
// the directory, hoists a nested app to the root and scaffolds an empty one.
func (s *Supervisor) prepare(ctx context.Context, projectID string, logf func(string)) (string, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	root, err := s.ProjectRoot(project)
	if err != nil {
		return "", fmt.Errorf("resolve root for project %s: %w", projectID, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("create project dir %s: %w", root, err)
	}

	if err := analyzer.NormalizeStructure(root, logf); err != nil {
		return "", err
	}

	if !analyzer.HasManifest(root) {
		logf("Bootstrapping minimal Next.js app for project " + projectID)
		if err := s.scaffolder.Scaffold(ctx, root, projectID); err != nil {
			return "", fmt.Errorf("scaffold project %s: %w", projectID, err)
		}
	}
	return root, nil
}

func (s *Supervisor) resetPreview(ctx context.Context, projectID string) error {
	return s.store.UpdatePreview(ctx, projectID, store.PreviewUpdate{Status: store.StatusIdle})
}

func (s *Supervisor) cleanBuildDir(projectID, root string) {
	dir := filepath.Join(root, ".next")
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("failed to clean .next directory",
			zap.String("project_id", projectID), zap.String("path", dir), zap.Error(err))
		return
	}
	s.logger.Debug("cleaned .next directory", zap.String("project_id", projectID))
}

// nextOwner bumps the project's generation and returns the port owner tag
// for the new run.
func (s *Supervisor) nextOwner(projectID string) (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[projectID]++
	gen := s.gens[projectID]
	return gen, fmt.Sprintf("%s#%d", projectID, gen)
}

func (s *Supervisor) staleLocked(projectID string, gen uint64) bool {
	return s.gens[projectID] != gen
}

func (s *Supervisor) stale(projectID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleLocked(projectID, gen)
}
