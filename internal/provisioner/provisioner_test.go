package provisioner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDetectPackageManager(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]string
		wantMgr    PackageManager
		wantSource string
	}{
		{
			name:       "empty project defaults to npm",
			files:      nil,
			wantMgr:    NPM,
			wantSource: SourceDefault,
		},
		{
			name:       "packageManager field wins",
			files:      map[string]string{"package.json": `{"packageManager": "pnpm@8.0.0"}`},
			wantMgr:    PNPM,
			wantSource: SourceField,
		},
		{
			name: "field wins over lockfile",
			files: map[string]string{
				"package.json": `{"packageManager": "yarn@4.1.0"}`,
				"pnpm-lock.yaml": "",
			},
			wantMgr:    Yarn,
			wantSource: SourceField,
		},
		{
			name: "unknown field falls back to lockfile",
			files: map[string]string{
				"package.json": `{"packageManager": "deno@1.0.0"}`,
				"bun.lockb":    "",
			},
			wantMgr:    Bun,
			wantSource: SourceLockfile,
		},
		{
			name: "pnpm lock beats yarn lock",
			files: map[string]string{
				"yarn.lock":      "",
				"pnpm-lock.yaml": "",
			},
			wantMgr:    PNPM,
			wantSource: SourceLockfile,
		},
		{
			name: "yarn lock beats npm lock",
			files: map[string]string{
				"yarn.lock":         "",
				"package-lock.json": "{}",
			},
			wantMgr:    Yarn,
			wantSource: SourceLockfile,
		},
		{
			name:       "npm lockfile",
			files:      map[string]string{"package-lock.json": "{}"},
			wantMgr:    NPM,
			wantSource: SourceLockfile,
		},
		{
			name:       "broken manifest is ignored",
			files:      map[string]string{"package.json": `{not json`, "yarn.lock": ""},
			wantMgr:    Yarn,
			wantSource: SourceLockfile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, filepath.Join(dir, name), content)
			}

			got := DetectPackageManager(dir)
			if got.Manager != tt.wantMgr {
				t.Errorf("expected manager %s, got %s", tt.wantMgr, got.Manager)
			}
			if got.Source != tt.wantSource {
				t.Errorf("expected source %s, got %s", tt.wantSource, got.Source)
			}
		})
	}
}

func TestParsePackageManagerField(t *testing.T) {
	tests := []struct {
		in     string
		want   PackageManager
		wantOK bool
	}{
		{"pnpm@8.0.0", PNPM, true},
		{"  Yarn@4 ", Yarn, true},
		{"bun", Bun, true},
		{"npm@10.2.3+sha256.abc", NPM, true},
		{"deno@1", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParsePackageManagerField(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParsePackageManagerField(%q) = (%q, %v); want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCommandNameFor(t *testing.T) {
	tests := []struct {
		goos string
		m    PackageManager
		want string
	}{
		{"linux", NPM, "npm"},
		{"darwin", Bun, "bun"},
		{"windows", NPM, "npm.cmd"},
		{"windows", PNPM, "pnpm.cmd"},
		{"windows", Yarn, "yarn.cmd"},
		{"windows", Bun, "bun.exe"},
	}

	for _, tt := range tests {
		if got := commandNameFor(tt.goos, tt.m); got != tt.want {
			t.Errorf("commandNameFor(%s, %s) = %s; want %s", tt.goos, tt.m, got, tt.want)
		}
	}
}

// fakeRunner records invocations and lets each test decide the outcome.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fn    func(name string, args []string) error
}

func (f *fakeRunner) run(ctx context.Context, dir string, env []string, sink LineSink, name string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(name, args)
	}
	return nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestEnsureDependenciesSkipsWhenInstalled(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "node_modules"), 0755); err != nil {
		t.Fatal(err)
	}

	fr := &fakeRunner{}
	inst := NewInstaller(InstallerOptions{Runner: fr.run})

	if err := inst.EnsureDependencies(context.Background(), "p1", dir, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fr.Calls()) != 0 {
		t.Errorf("expected no install commands, got %v", fr.Calls())
	}
}

func TestEnsureDependenciesFallsBackToNPM(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"app","packageManager":"pnpm@8.0.0"}`)

	fr := &fakeRunner{}
	fr.fn = func(name string, args []string) error {
		if name == CommandName(PNPM) {
			return &exec.Error{Name: name, Err: exec.ErrNotFound}
		}
		return os.Mkdir(filepath.Join(dir, "node_modules"), 0755)
	}
	inst := NewInstaller(InstallerOptions{Runner: fr.run})

	var lines []string
	err := inst.EnsureDependencies(context.Background(), "p1", dir, nil, func(l string) { lines = append(lines, l) })
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}

	calls := fr.Calls()
	want := []string{CommandName(PNPM) + " install", CommandName(NPM) + " install"}
	if len(calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], calls[i])
		}
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Installing dependencies using pnpm.") {
		t.Errorf("expected install banner in logs, got:\n%s", joined)
	}
	if !strings.Contains(joined, "Falling back to npm install.") {
		t.Errorf("expected fallback notice in logs, got:\n%s", joined)
	}
}

func TestEnsureDependenciesNoFallbackForNPM(t *testing.T) {
	dir := t.TempDir()

	fr := &fakeRunner{fn: func(name string, args []string) error {
		return &exec.Error{Name: name, Err: exec.ErrNotFound}
	}}
	inst := NewInstaller(InstallerOptions{Runner: fr.run})

	err := inst.EnsureDependencies(context.Background(), "p1", dir, nil, nil)
	var failed *InstallFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected InstallFailedError, got %v", err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("expected error to wrap exec.ErrNotFound")
	}
	if len(fr.Calls()) != 1 {
		t.Errorf("expected exactly one attempt, got %v", fr.Calls())
	}
}

func TestEnsureDependenciesNonzeroExit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "yarn.lock"), "")

	fr := &fakeRunner{fn: func(name string, args []string) error {
		return &CommandError{Command: name + " install", ExitCode: 1, StderrTail: []string{"ERR! boom"}}
	}}
	inst := NewInstaller(InstallerOptions{Runner: fr.run})

	err := inst.EnsureDependencies(context.Background(), "p1", dir, nil, nil)
	var failed *InstallFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected InstallFailedError, got %v", err)
	}
	if failed.Manager != Yarn {
		t.Errorf("expected yarn, got %s", failed.Manager)
	}
	if failed.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", failed.ExitCode)
	}
	if len(failed.StderrTail) != 1 || failed.StderrTail[0] != "ERR! boom" {
		t.Errorf("expected stderr tail to be carried, got %v", failed.StderrTail)
	}
	// A missing binary is a different failure class; no fallback on plain exit codes
	if len(fr.Calls()) != 1 {
		t.Errorf("expected a single attempt, got %v", fr.Calls())
	}
}

func TestEnsureDependenciesDeduplicatesConcurrentCalls(t *testing.T) {
	dir := t.TempDir()

	release := make(chan struct{})
	var started atomic.Int32
	fr := &fakeRunner{}
	fr.fn = func(name string, args []string) error {
		started.Add(1)
		<-release
		return os.Mkdir(filepath.Join(dir, "node_modules"), 0755)
	}
	inst := NewInstaller(InstallerOptions{Runner: fr.run})

	errs := make(chan error, 2)
	go func() {
		errs <- inst.EnsureDependencies(context.Background(), "p1", dir, nil, nil)
	}()

	// Wait for the first install to be in flight before the second caller arrives
	deadline := time.Now().Add(2 * time.Second)
	for started.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !inst.InProgress("p1") {
		t.Fatal("expected install to be in progress")
	}

	waiting := make(chan string, 4)
	go func() {
		errs <- inst.EnsureDependencies(context.Background(), "p1", dir, nil, func(l string) { waiting <- l })
	}()

	select {
	case line := <-waiting:
		if !strings.Contains(line, "already in progress") {
			t.Errorf("unexpected line from waiting caller: %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never reported waiting")
	}

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("caller %d: unexpected error %v", i, err)
		}
	}

	if n := len(fr.Calls()); n != 1 {
		t.Errorf("expected exactly one install command, got %d", n)
	}
	if inst.InProgress("p1") {
		t.Error("lock should be released after install completes")
	}
}

func TestRunCommandStreamsAndCapturesTail(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}

	var mu sync.Mutex
	var lines []string
	sink := func(l string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, l)
	}

	err := RunCommand(context.Background(), t.TempDir(), os.Environ(), sink,
		"sh", "-c", "echo out-line; echo err-line >&2; exit 3")

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", cmdErr.ExitCode)
	}
	if len(cmdErr.StderrTail) != 1 || cmdErr.StderrTail[0] != "err-line" {
		t.Errorf("expected stderr tail [err-line], got %v", cmdErr.StderrTail)
	}

	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "out-line") || !strings.Contains(joined, "err-line") {
		t.Errorf("expected both streams in sink, got %q", joined)
	}
}

func TestRunCommandMissingBinary(t *testing.T) {
	err := RunCommand(context.Background(), t.TempDir(), nil, nil, "octo-definitely-not-a-binary")
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected exec.ErrNotFound, got %v", err)
	}
}

func TestEnsureDependenciesWaitsWhenNodeModulesAppearsEarly(t *testing.T) {
	dir := t.TempDir()

	release := make(chan struct{})
	created := make(chan struct{})
	var finished atomic.Bool
	fr := &fakeRunner{}
	fr.fn = func(name string, args []string) error {
		// Package managers create node_modules long before they are done
		if err := os.Mkdir(filepath.Join(dir, "node_modules"), 0755); err != nil {
			return err
		}
		close(created)
		<-release
		finished.Store(true)
		return nil
	}
	inst := NewInstaller(InstallerOptions{Runner: fr.run})

	first := make(chan error, 1)
	go func() {
		first <- inst.EnsureDependencies(context.Background(), "p1", dir, nil, nil)
	}()
	select {
	case <-created:
	case <-time.After(2 * time.Second):
		t.Fatal("install never started")
	}

	second := make(chan error, 1)
	var skipped atomic.Bool
	go func() {
		s, err := inst.Ensure(context.Background(), "p1", dir, nil, nil)
		skipped.Store(s)
		second <- err
	}()

	select {
	case err := <-second:
		t.Fatalf("second caller returned (%v) while the install was still running", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	for _, ch := range []chan error{first, second} {
		select {
		case err := <-ch:
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("caller never returned")
		}
	}
	if !finished.Load() {
		t.Error("callers returned before the install finished")
	}
	if skipped.Load() {
		t.Error("a caller that waited on an install should not report a skip")
	}
	if n := len(fr.Calls()); n != 1 {
		t.Errorf("expected exactly one install command, got %d", n)
	}
}

func TestEnsureReportsSkip(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "node_modules"), 0755); err != nil {
		t.Fatal(err)
	}
	inst := NewInstaller(InstallerOptions{Runner: (&fakeRunner{}).run})

	skipped, err := inst.Ensure(context.Background(), "p1", dir, nil, nil)
	if err != nil || !skipped {
		t.Errorf("Ensure = (%v, %v); want (true, nil)", skipped, err)
	}
}

func TestRunCommandSurvivesOversizedLine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}

	var lines []string
	err := RunCommand(context.Background(), t.TempDir(), os.Environ(), func(l string) { lines = append(lines, l) },
		"sh", "-c", "echo before; head -c 2097152 /dev/zero | tr '\\0' x; echo; echo after")
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if len(lines) != 3 || lines[0] != "before" || lines[2] != "after" {
		t.Errorf("expected before, the long line and after; got %d lines", len(lines))
	}
}
