package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harshul/octo-preview/internal/analyzer"
	"github.com/harshul/octo-preview/internal/envfiles"
	"github.com/harshul/octo-preview/internal/eventbus"
	"github.com/harshul/octo-preview/internal/logmux"
	"github.com/harshul/octo-preview/internal/ports"
	"github.com/harshul/octo-preview/internal/proctree"
	"github.com/harshul/octo-preview/internal/provisioner"
	"github.com/harshul/octo-preview/internal/readiness"
	"github.com/harshul/octo-preview/internal/store"
)

// outputDrain bounds how long exit handling waits for buffered output
const outputDrain = 500 * time.Millisecond

// process is one supervised dev server. Mutable fields are guarded by the
// Supervisor's mutex.
type process struct {
	projectID string
	gen       uint64
	owner     string
	root      string
	logs      *logmux.LogBuffer
	stdout    *logmux.Aggregator
	stderr    *logmux.Aggregator
	startedAt time.Time

	cmd     *exec.Cmd
	pid     int
	cancel  context.CancelFunc
	done    chan struct{}
	drained chan struct{}

	port     int
	url      string
	status   Status
	stopping bool
}

func (p *process) infoLocked() Info {
	port, url := p.port, p.url
	return Info{
		Port:   &port,
		URL:    &url,
		Status: p.status,
		Logs:   p.logs.GetAll(),
		PID:    p.pid,
	}
}

// logf writes a supervisor line into the preview log
func (p *process) logf(format string, args ...any) {
	p.stdout.Push(provisioner.LogPrefix + fmt.Sprintf(format, args...))
}

func (s *Supervisor) newProcess(projectID, root string) *process {
	p := &process{
		projectID: projectID,
		root:      root,
		logs:      logmux.NewLogBuffer(s.logLimit),
		startedAt: time.Now(),
		status:    StatusStarting,
		cancel:    func() {},
		done:      make(chan struct{}),
	}
	emit := func(e logmux.Entry) {
		s.events.Publish(projectID, eventbus.LogEvent(projectID, string(e.Level), e.Content, e.Timestamp))
	}
	p.stdout = logmux.NewAggregator(logmux.Stdout, p.logs, emit)
	p.stderr = logmux.NewAggregator(logmux.Stderr, p.logs, emit)
	return p
}

func (s *Supervisor) start(ctx context.Context, projectID string) (Info, error) {
	s.events.Publish(projectID, eventbus.StatusEvent(eventbus.PreviewStarting, "Starting preview server...", nil))

	// A Stop from here on bumps the generation past gen
	gen, owner := s.nextOwner(projectID)

	// Lines written before the root is known are kept here and replayed
	var pending []string
	queue := func(line string) { pending = append(pending, provisioner.LogPrefix+line) }

	root, err := s.prepare(ctx, projectID, queue)
	if err != nil {
		return Info{}, s.fail(projectID, "prepare", pending, err)
	}
	if _, err := envfiles.Sanitize(root, queue); err != nil {
		s.logger.Warn("failed to sanitize env files", zap.String("project_id", projectID), zap.Error(err))
	}

	p := s.newProcess(projectID, root)
	for _, line := range pending {
		p.stdout.Push(line)
	}

	p.gen, p.owner = gen, owner
	port, err := s.ports.Reserve(p.owner)
	if err != nil {
		return Info{}, s.fail(projectID, "allocate port", p.logs.GetAll(),
			fmt.Errorf("range %s: %w", s.ports.Range(), err))
	}
	p.port = port
	p.url = localURL(port)

	p.logf("Planned Working Directory: %s", root)
	p.logf("Planned Command: %s", s.devCommandLine(port))
	p.logf("Parent NODE_ENV: %s", os.Getenv("NODE_ENV"))

	env := envfiles.Merge(os.Environ(), map[string]string{
		"PORT":                    strconv.Itoa(port),
		"WEB_PORT":                strconv.Itoa(port),
		envfiles.KeyAppURL:        p.url,
		"NODE_ENV":                "development",
		"NEXT_TELEMETRY_DISABLED": "1",
	})
	nodeEnv, _ := envfiles.Lookup(env, "NODE_ENV")
	p.logf("Effective NODE_ENV: %s", nodeEnv)

	// failed releases the reservation before reporting
	failed := func(stage string, err error) (Info, error) {
		s.ports.Release(p.port, p.owner)
		return Info{}, s.fail(projectID, stage, p.logs.GetAll(), err)
	}

	sink := func(line string) { p.stdout.Push(line) }
	if err := s.installer.EnsureDependencies(ctx, projectID, root, env, sink); err != nil {
		return failed("install dependencies", err)
	}

	if pkg, err := analyzer.ReadPackageJSON(root); err == nil && pkg.HasScript("predev") {
		if err := s.run(ctx, root, env, sink, s.command, "run", "predev"); err != nil {
			return failed("predev", err)
		}
	}

	env = s.applyOverrides(p, env)

	if s.stale(projectID, p.gen) {
		s.ports.Release(p.port, p.owner)
		return Info{}, s.overtaken(p)
	}

	p.logf("========================================")
	p.logf("Working Directory: %s", root)
	p.logf("Command: %s", s.devCommandLine(p.port))
	p.logf("========================================")

	if err := s.spawn(p, env); err != nil {
		p.status = StatusError
		p.stdout.Push(fmt.Sprintf("Preview process failed: %v", err))
		return failed("spawn", err)
	}

	readyCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.staleLocked(projectID, p.gen) {
		p.stopping = true
		s.mu.Unlock()
		cancel()
		go s.wait(p)
		if err := proctree.Terminate(s.killer, p.pid, p.done, s.killGrace); err != nil {
			s.logger.Warn("failed to kill preview process tree",
				zap.String("project_id", projectID),
				zap.Int("pid", p.pid),
				zap.Error(err))
		}
		s.ports.Release(p.port, p.owner)
		return Info{}, s.overtaken(p)
	}
	p.cancel = cancel
	s.live[projectID] = p
	info := p.infoLocked()
	s.mu.Unlock()

	go s.wait(p)
	go s.pollReady(readyCtx, p, info)

	if err := s.store.UpdatePreview(context.WithoutCancel(ctx), projectID, store.PreviewUpdate{
		URL:    info.URL,
		Port:   info.Port,
		Status: store.StatusRunning,
	}); err != nil {
		s.logger.Warn("failed to persist preview", zap.String("project_id", projectID), zap.Error(err))
	}
	// The child may already have exited and reset the record
	s.mu.Lock()
	current := s.live[projectID] == p
	s.mu.Unlock()
	if !current {
		if err := s.resetPreview(context.WithoutCancel(ctx), projectID); err != nil {
			s.logger.Warn("failed to reset project preview", zap.String("project_id", projectID), zap.Error(err))
		}
	}

	s.logger.Info("preview started",
		zap.String("project_id", projectID),
		zap.Int("pid", info.PID),
		zap.Int("port", *info.Port),
		zap.String("url", *info.URL))
	return info, nil
}

// applyOverrides validates the project's own port and URL settings against
// the preview range and adopts the ones that fit.
func (s *Supervisor) applyOverrides(p *process, env []string) []string {
	rng := s.ports.Range()
	ov := envfiles.CollectOverrides(p.root)

	if ov.Port != 0 && !rng.Contains(ov.Port) {
		p.logf("Ignoring project-specified port %d because it falls outside the allowed preview range %d-%d.",
			ov.Port, rng.Start, rng.End)
		ov.Port = 0
	}
	if ov.URL != "" {
		if !envfiles.ValidURL(ov.URL) {
			p.logf("Ignoring project-specified NEXT_PUBLIC_APP_URL (%s) because it could not be parsed as a valid URL.", ov.URL)
			ov.URL = ""
		} else if up := envfiles.URLPort(ov.URL); up != 0 && !rng.Contains(up) {
			p.logf("Ignoring project-specified NEXT_PUBLIC_APP_URL (%s) because port %d is outside the allowed preview range %d-%d.",
				ov.URL, up, rng.Start, rng.End)
			ov.URL = ""
		}
	}

	if ov.Port != 0 && ov.Port != p.port {
		if !ports.IsPortAvailable(ov.Port) {
			p.logf("Ignoring project-specified port %d because it is already in use.", ov.Port)
		} else if s.ports.Claim(ov.Port, p.owner) {
			s.ports.Release(p.port, p.owner)
			p.port = ov.Port
			p.logf("Detected project-specified port %d.", ov.Port)
		} else {
			p.logf("Ignoring project-specified port %d because another preview is using it.", ov.Port)
		}
	}

	p.url = localURL(p.port)
	if u := strings.TrimSpace(ov.URL); u != "" {
		p.url = u
	}

	return envfiles.Merge(env, map[string]string{
		"PORT":             strconv.Itoa(p.port),
		"WEB_PORT":         strconv.Itoa(p.port),
		envfiles.KeyAppURL: p.url,
	})
}

// spawn starts the dev server with its output on pipes owned by the
// aggregators, so exit detection never waits on a grandchild holding them.
func (s *Supervisor) spawn(p *process, env []string) error {
	cmd := exec.Command(s.command, "run", "dev", "--", "--port", strconv.Itoa(p.port))
	cmd.Dir = p.root
	cmd.Env = env
	proctree.Prepare(cmd)

	outR, outW, err := os.Pipe()
	if err != nil {
		return err
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return err
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	err = cmd.Start()
	outW.Close()
	errW.Close()
	if err != nil {
		outR.Close()
		errR.Close()
		return err
	}

	p.cmd = cmd
	p.pid = cmd.Process.Pid

	drained := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer outR.Close()
		p.stdout.Capture(outR, func() { s.markRunning(p) })
	}()
	go func() {
		defer wg.Done()
		defer errR.Close()
		p.stderr.Capture(errR, nil)
	}()
	go func() {
		wg.Wait()
		close(drained)
	}()
	p.drained = drained
	return nil
}

func (s *Supervisor) markRunning(p *process) {
	s.mu.Lock()
	if p.status != StatusStarting || p.stopping {
		s.mu.Unlock()
		return
	}
	p.status = StatusRunning
	url, port := p.url, p.port
	s.mu.Unlock()

	s.events.Publish(p.projectID, eventbus.StatusEvent(eventbus.PreviewRunning,
		"Preview server running at "+url,
		map[string]any{"url": url, "port": port}))
}

// wait reaps the dev server and records how it ended.
func (s *Supervisor) wait(p *process) {
	defer close(p.done)
	_ = p.cmd.Wait()

	select {
	case <-p.drained:
	case <-time.After(outputDrain):
	}

	state := p.cmd.ProcessState
	code := state.ExitCode()
	signal := proctree.ExitSignal(state)

	s.mu.Lock()
	explicit := p.stopping
	current := s.live[p.projectID] == p
	if current {
		delete(s.live, p.projectID)
	}
	if code == 0 || explicit {
		p.status = StatusStopped
	} else {
		p.status = StatusError
	}
	status := p.status
	s.mu.Unlock()

	p.cancel()

	codeText, signalText := "null", "null"
	var codeMeta, signalMeta any
	if code >= 0 {
		codeText = strconv.Itoa(code)
		codeMeta = code
	}
	if signal != "" {
		signalText = signal
		signalMeta = signal
	}
	p.stdout.Push(fmt.Sprintf("Preview process exited (code: %s, signal: %s)", codeText, signalText))

	if current {
		s.ports.Release(p.port, p.owner)
		if err := s.resetPreview(context.Background(), p.projectID); err != nil {
			s.logger.Warn("failed to reset project preview",
				zap.String("project_id", p.projectID), zap.Error(err))
		}
	}

	meta := map[string]any{"exitCode": codeMeta, "signal": signalMeta}
	if status == StatusStopped {
		s.events.Publish(p.projectID, eventbus.StatusEvent(eventbus.PreviewStopped, "Preview server stopped", meta))
	} else {
		s.events.Publish(p.projectID, eventbus.StatusEvent(eventbus.PreviewError,
			fmt.Sprintf("Preview server error (exit code: %s)", codeText), meta))
	}

	s.logger.Info("preview process exited",
		zap.String("project_id", p.projectID),
		zap.Int("pid", p.pid),
		zap.Int("exit_code", code),
		zap.String("signal", signal),
		zap.Bool("requested", explicit))
}

func (s *Supervisor) pollReady(ctx context.Context, p *process, info Info) {
	poller := &readiness.Poller{
		Timeout:  s.readyTimeout,
		Interval: s.readyInterval,
		Logf:     func(line string) { p.stdout.Push(provisioner.LogPrefix + line) },
	}
	if poller.Wait(ctx, *info.URL) {
		s.logger.Debug("preview ready", zap.String("project_id", p.projectID), zap.String("url", *info.URL))
	}
}

// fail reports a start failure to subscribers and wraps it with the lines
// logged so far.
func (s *Supervisor) fail(projectID, stage string, logs []string, err error) error {
	s.events.Publish(projectID, eventbus.StatusEvent(eventbus.PreviewError,
		"Failed to start preview server", map[string]any{"error": err.Error()}))
	s.logger.Error("preview start failed",
		zap.String("project_id", projectID),
		zap.String("stage", stage),
		zap.Error(err))
	if logs == nil {
		logs = []string{}
	}
	return &StartError{ProjectID: projectID, Stage: stage, Logs: logs, Err: err}
}

// overtaken reports a start abandoned because the project was stopped
// while it was in progress.
func (s *Supervisor) overtaken(p *process) error {
	p.logf("Preview start cancelled by a stop request.")
	s.logger.Info("preview start cancelled by stop", zap.String("project_id", p.projectID))
	return &StartError{ProjectID: p.projectID, Stage: "start", Logs: p.logs.GetAll(), Err: ErrStopped}
}

func (s *Supervisor) devCommandLine(port int) string {
	return fmt.Sprintf("%s run dev -- --port %d", s.command, port)
}

func localURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}
