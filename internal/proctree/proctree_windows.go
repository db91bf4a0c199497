//go:build windows

package proctree

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

type taskKiller struct{}

// New returns the killer for this platform. On Windows it shells out to
// taskkill /T and walks the tree itself when taskkill is unavailable.
func New() TreeKiller {
	return taskKiller{}
}

// Prepare starts cmd in a new process group so console control events sent
// to octo do not reach the dev server directly.
func Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

func (taskKiller) TerminateTree(pid int, sig Signal) error {
	args := []string{"/T", "/PID", strconv.Itoa(pid)}
	if sig == Force {
		args = append([]string{"/F"}, args...)
	}
	out, err := exec.Command("taskkill", args...).CombinedOutput()
	if err == nil {
		return nil
	}
	if sig == Graceful {
		// Console processes often refuse a graceful taskkill; let the caller escalate
		return fmt.Errorf("taskkill pid %d: %w: %s", pid, err, out)
	}

	var errs []error
	for _, d := range append(Descendants(pid), pid) {
		p, perr := process.NewProcess(int32(d))
		if perr != nil {
			continue
		}
		if kerr := p.Kill(); kerr != nil {
			errs = append(errs, kerr)
		}
	}
	return errors.Join(errs...)
}

// ExitSignal is always empty on Windows; processes only report exit codes.
func ExitSignal(state *os.ProcessState) string {
	return ""
}
