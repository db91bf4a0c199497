// Package proctree signals whole process trees. Dev servers fork workers and
// watchers of their own, so killing only the direct child leaves orphans
// holding ports and pipes.
package proctree

import (
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Signal is the strength of a termination request.
type Signal int

const (
	// Graceful asks the tree to exit (SIGTERM, or taskkill without /F)
	Graceful Signal = iota
	// Force kills the tree outright (SIGKILL, or taskkill /F)
	Force
)

func (s Signal) String() string {
	if s == Force {
		return "force"
	}
	return "graceful"
}

// TreeKiller terminates a process and all of its descendants.
type TreeKiller interface {
	TerminateTree(pid int, sig Signal) error
}

// ForceWait is how long Terminate keeps waiting after a forceful kill.
const ForceWait = 2 * time.Second

// Terminate asks the tree rooted at pid to exit and escalates to a forceful
// kill if done has not closed within grace. done should close once the
// direct child has been reaped. A failed graceful signal escalates
// immediately. The returned error is the forceful kill's, if it failed, or
// a timeout if the tree outlived both waits.
func Terminate(k TreeKiller, pid int, done <-chan struct{}, grace time.Duration) error {
	gracefulErr := k.TerminateTree(pid, Graceful)
	if gracefulErr == nil && wait(done, grace) {
		// Stragglers that ignored the signal and outlived the leader
		_ = k.TerminateTree(pid, Force)
		return nil
	}

	if err := k.TerminateTree(pid, Force); err != nil {
		if gracefulErr != nil {
			err = errors.Join(gracefulErr, err)
		}
		return fmt.Errorf("force kill pid %d: %w", pid, err)
	}
	if !wait(done, ForceWait) {
		return fmt.Errorf("pid %d still running %s after force kill", pid, ForceWait)
	}
	return nil
}

func wait(done <-chan struct{}, d time.Duration) bool {
	if done == nil {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Descendants returns the pids of every transitive child of pid, parents
// before children. A process that cannot be inspected contributes nothing.
func Descendants(pid int) []int {
	var out []int
	seen := map[int32]bool{int32(pid): true}
	queue := []int32{int32(pid)}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		p, err := process.NewProcess(current)
		if err != nil {
			continue
		}
		children, err := p.Children()
		if err != nil {
			continue
		}
		for _, c := range children {
			if seen[c.Pid] {
				continue
			}
			seen[c.Pid] = true
			out = append(out, int(c.Pid))
			queue = append(queue, c.Pid)
		}
	}
	return out
}

// Alive reports whether pid refers to a running process. Zombies count as
// dead.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}
