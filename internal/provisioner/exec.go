package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/harshul/octo-preview/internal/logmux"
)

// LogPrefix marks lines written by octo itself, as opposed to child output.
const LogPrefix = "[octo] "

// stderrTailLines is how much stderr an error keeps for the caller.
const stderrTailLines = 20

// LineSink receives output one line at a time. Calls are serialized.
type LineSink func(line string)

// Runner executes a command to completion, streaming its output.
type Runner func(ctx context.Context, dir string, env []string, sink LineSink, name string, args ...string) error

// CommandError describes a command that started but did not exit cleanly.
type CommandError struct {
	Command    string
	ExitCode   int
	StderrTail []string
	Err        error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if len(e.StderrTail) > 0 {
		msg += ": " + strings.Join(e.StderrTail, "\n")
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// RunCommand runs name with args in dir and forwards every stdout and stderr
// line to sink. A binary that cannot be found surfaces as an error wrapping
// exec.ErrNotFound; a nonzero exit surfaces as *CommandError.
func RunCommand(ctx context.Context, dir string, env []string, sink LineSink, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe for %s: %w", name, err)
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	var mu sync.Mutex
	emit := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		if sink != nil {
			sink(line)
		}
	}

	tail := &tailBuffer{max: stderrTailLines}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, emit)
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, func(line string) {
			tail.add(line)
			emit(line)
		})
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &CommandError{
			Command:    strings.Join(append([]string{name}, args...), " "),
			ExitCode:   code,
			StderrTail: tail.lines(),
			Err:        err,
		}
	}
	return nil
}

// scanLines reads r line by line, skipping blank lines
func scanLines(r io.Reader, fn func(string)) {
	logmux.ReadLines(r, func(line string) {
		if strings.TrimSpace(line) == "" {
			return
		}
		fn(line)
	})
}

type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []string
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buf) >= t.max {
		t.buf = t.buf[1:]
	}
	t.buf = append(t.buf, line)
}

func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.buf))
	copy(out, t.buf)
	return out
}
