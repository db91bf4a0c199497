//go:build !windows

package proctree

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

type groupKiller struct{}

// New returns the killer for this platform. On POSIX systems it signals the
// child's process group and then any descendant that left the group.
func New() TreeKiller {
	return groupKiller{}
}

// Prepare places cmd in its own process group so the whole tree can be
// signalled at once. Call it before cmd.Start.
func Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func (groupKiller) TerminateTree(pid int, sig Signal) error {
	s := unix.SIGTERM
	if sig == Force {
		s = unix.SIGKILL
	}

	// Collect before signalling; once parents die their children are
	// reparented and can no longer be found by walking from pid.
	descendants := Descendants(pid)

	// A reaped leader fails Getpgid, but its group can outlive it and the
	// kernel will not reuse pid while the group exists.
	target := -pid
	if pgid, err := unix.Getpgid(pid); err == nil && pgid != pid {
		target = pid
	}

	var errs []error
	if err := unix.Kill(target, s); err != nil && !errors.Is(err, unix.ESRCH) {
		errs = append(errs, err)
	}
	for _, d := range descendants {
		if err := unix.Kill(d, s); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExitSignal names the signal that ended the process, or "" if it exited
// normally.
func ExitSignal(state *os.ProcessState) string {
	if state == nil {
		return ""
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	if name := unix.SignalName(ws.Signal()); name != "" {
		return name
	}
	return ws.Signal().String()
}
