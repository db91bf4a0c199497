package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harshul/octo-preview/internal/eventbus"
)

// RunDashboard shows the dashboard until the user quits or ctx is done.
func RunDashboard(ctx context.Context, d *DashboardModel) error {
	program := tea.NewProgram(d,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// PlainPrinter writes preview events as prefixed text lines. It is used
// when the terminal is not interactive.
type PlainPrinter struct {
	out   io.Writer
	names map[string]string

	mu sync.Mutex
}

// NewPlainPrinter creates a printer. names maps project ids to display
// names; unknown ids are printed as is.
func NewPlainPrinter(out io.Writer, names map[string]string) *PlainPrinter {
	if names == nil {
		names = map[string]string{}
	}
	return &PlainPrinter{out: out, names: names}
}

// Send prints one event. Safe to use as a bus subscriber.
func (p *PlainPrinter) Send(ev eventbus.Event) {
	name := p.names[ev.ProjectID]
	if name == "" {
		name = ev.ProjectID
	}

	var line string
	switch ev.Type {
	case eventbus.EventLog:
		content, _ := ev.Data["content"].(string)
		line = fmt.Sprintf("[%s] %s", name, content)
	case eventbus.EventStatus:
		status, _ := ev.Data["status"].(string)
		message, _ := ev.Data["message"].(string)
		line = fmt.Sprintf("[%s] %s %s", name, statusIcon(status), message)
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func statusIcon(status string) string {
	switch status {
	case eventbus.PreviewStarting:
		return "◌"
	case eventbus.PreviewRunning:
		return "●"
	case eventbus.PreviewError:
		return "✗"
	default:
		return "○"
	}
}
