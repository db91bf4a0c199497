package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harshul/octo-preview/internal/eventbus"
	"github.com/harshul/octo-preview/internal/orchestrator"
)

func TestNewRow(t *testing.T) {
	r := NewRow("p1", "")
	if r.Name != "p1" {
		t.Errorf("expected name to default to id, got '%s'", r.Name)
	}
	if r.Status != orchestrator.StatusStopped {
		t.Errorf("expected status stopped, got '%s'", r.Status)
	}
}

func TestRowAppendLogIsBounded(t *testing.T) {
	r := NewRow("p1", "shop")
	for i := 0; i < maxRowLogs+5; i++ {
		r.AppendLog("line")
	}
	r.AppendLog("last")

	logs := r.Logs()
	if len(logs) != maxRowLogs {
		t.Errorf("expected %d logs, got %d", maxRowLogs, len(logs))
	}
	if logs[len(logs)-1] != "last" {
		t.Errorf("expected newest line last, got '%s'", logs[len(logs)-1])
	}
}

func TestRowApply(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		events     []eventbus.Event
		wantStatus orchestrator.Status
		wantURL    string
		wantPort   int
		wantError  string
		wantLogs   int
	}{
		{
			name:       "starting",
			events:     []eventbus.Event{eventbus.StatusEvent(eventbus.PreviewStarting, "Starting preview server...", nil)},
			wantStatus: orchestrator.StatusStarting,
		},
		{
			name: "running in process",
			events: []eventbus.Event{
				eventbus.StatusEvent(eventbus.PreviewStarting, "Starting preview server...", nil),
				eventbus.StatusEvent(eventbus.PreviewRunning, "Preview server running at http://localhost:3001",
					map[string]any{"url": "http://localhost:3001", "port": 3001}),
			},
			wantStatus: orchestrator.StatusRunning,
			wantURL:    "http://localhost:3001",
			wantPort:   3001,
		},
		{
			name: "running over json",
			events: []eventbus.Event{
				eventbus.StatusEvent(eventbus.PreviewRunning, "Preview server running at http://localhost:3002",
					map[string]any{"url": "http://localhost:3002", "port": float64(3002)}),
			},
			wantStatus: orchestrator.StatusRunning,
			wantURL:    "http://localhost:3002",
			wantPort:   3002,
		},
		{
			name: "error keeps detail",
			events: []eventbus.Event{
				eventbus.StatusEvent(eventbus.PreviewError, "Failed to start preview server",
					map[string]any{"error": "predev exited with code 1"}),
			},
			wantStatus: orchestrator.StatusError,
			wantError:  "predev exited with code 1",
		},
		{
			name: "logs",
			events: []eventbus.Event{
				eventbus.LogEvent("p1", "stdout", "ready", now),
				eventbus.LogEvent("p1", "stderr", "warn", now),
			},
			wantStatus: orchestrator.StatusStopped,
			wantLogs:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRow("p1", "shop")
			for _, ev := range tt.events {
				r.Apply(ev)
			}
			s := r.snapshot()
			if s.Status != tt.wantStatus {
				t.Errorf("status = %s; want %s", s.Status, tt.wantStatus)
			}
			if s.URL != tt.wantURL || s.Port != tt.wantPort {
				t.Errorf("url/port = %s/%d; want %s/%d", s.URL, s.Port, tt.wantURL, tt.wantPort)
			}
			if s.LastError != tt.wantError {
				t.Errorf("last error = %q; want %q", s.LastError, tt.wantError)
			}
			if got := len(r.Logs()); got != tt.wantLogs {
				t.Errorf("logs = %d; want %d", got, tt.wantLogs)
			}
		})
	}
}

func TestRowSetInfo(t *testing.T) {
	port, url := 3003, "http://localhost:3003"
	r := NewRow("p1", "shop")
	r.SetInfo(orchestrator.Info{Port: &port, URL: &url, Status: orchestrator.StatusRunning, PID: 99})

	s := r.snapshot()
	if s.PID != 99 || s.Port != 3003 || s.URL != url || s.StartedAt.IsZero() {
		t.Errorf("snapshot = %+v", s)
	}

	r.SetInfo(orchestrator.Info{Status: orchestrator.StatusStopped})
	if s := r.snapshot(); s.URL != "" || s.Port != 0 {
		t.Errorf("stopped snapshot kept url/port: %+v", s)
	}
}

type fakeController struct {
	started []string
	err     error
}

func (f *fakeController) Start(ctx context.Context, id string) (orchestrator.Info, error) {
	f.started = append(f.started, id)
	if f.err != nil {
		return orchestrator.Info{}, f.err
	}
	return orchestrator.Info{Status: orchestrator.StatusStarting}, nil
}

func (f *fakeController) Stop(ctx context.Context, id string) (orchestrator.Info, error) {
	return orchestrator.Info{Status: orchestrator.StatusStopped}, nil
}

func TestDashboardRoutesEventsToRows(t *testing.T) {
	rows := []*Row{NewRow("a", "alpha"), NewRow("b", "beta")}
	d := NewDashboard(rows, nil)

	d.Update(eventMsg(eventbus.LogEvent("b", "stdout", "compiled", time.Now())))
	d.Update(eventMsg(eventbus.LogEvent("unknown", "stdout", "ignored", time.Now())))

	if got := d.Row("b").Logs(); len(got) != 1 || got[0] != "compiled" {
		t.Errorf("row b logs = %v", got)
	}
	if got := d.Row("a").Logs(); len(got) != 0 {
		t.Errorf("row a logs = %v", got)
	}
}

func TestDashboardStartKey(t *testing.T) {
	control := &fakeController{}
	d := NewDashboard([]*Row{NewRow("a", "alpha")}, control)
	d.compactMode = false

	_, cmd := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("expected a command for the start key")
	}
	msg := runCmd(cmd)
	if len(control.started) != 1 || control.started[0] != "a" {
		t.Fatalf("started = %v", control.started)
	}

	d.Update(msg)
	if s := d.Row("a").snapshot(); s.Status != orchestrator.StatusStarting {
		t.Errorf("status after start = %s", s.Status)
	}
}

// runCmd executes cmd, unwrapping a batch, and returns the first message
// that is not a batch.
func runCmd(cmd tea.Cmd) tea.Msg {
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c != nil {
				return runCmd(c)
			}
		}
	}
	return msg
}

func TestDashboardActionFailureShowsNotice(t *testing.T) {
	d := NewDashboard([]*Row{NewRow("a", "alpha")}, nil)
	d.Update(actionMsg{projectID: "a", action: "start", err: errors.New("no port")})
	if !strings.Contains(d.notice, "start a failed: no port") {
		t.Errorf("notice = %q", d.notice)
	}
}

func TestDashboardNavigation(t *testing.T) {
	d := NewDashboard([]*Row{NewRow("a", "alpha"), NewRow("b", "beta")}, nil)
	d.compactMode = false

	d.Update(tea.KeyMsg{Type: tea.KeyDown})
	if d.selectedIndex != 1 {
		t.Errorf("selected = %d; want 1", d.selectedIndex)
	}
	d.Update(tea.KeyMsg{Type: tea.KeyDown})
	if d.selectedIndex != 1 {
		t.Errorf("selected moved past the end: %d", d.selectedIndex)
	}
	d.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if d.focusedIndex != 1 {
		t.Errorf("focused = %d; want 1", d.focusedIndex)
	}
	d.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if d.focusedIndex != -1 {
		t.Errorf("focused after esc = %d", d.focusedIndex)
	}
}

func TestDashboardView(t *testing.T) {
	rows := []*Row{NewRow("a", "alpha")}
	rows[0].Apply(eventbus.StatusEvent(eventbus.PreviewRunning, "running",
		map[string]any{"url": "http://localhost:3004", "port": 3004}))
	d := NewDashboard(rows, nil)
	d.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	compact := d.View()
	if !strings.Contains(compact, "alpha: http://localhost:3004") {
		t.Errorf("compact view missing url:\n%s", compact)
	}

	d.compactMode = false
	full := d.View()
	if !strings.Contains(full, "Running: 1") {
		t.Errorf("dashboard view missing running count:\n%s", full)
	}

	// The header must fit on one line at this width
	var header string
	for _, line := range strings.Split(full, "\n") {
		if strings.Contains(line, "Octo Previews") {
			header = line
		}
	}
	if !strings.Contains(header, "Projects: 1 | Running: 1") {
		t.Errorf("header wrapped: %q", header)
	}
}

func TestSortRows(t *testing.T) {
	rows := []*Row{NewRow("3", "zeta"), NewRow("2", "alpha"), NewRow("1", "alpha")}
	SortRows(rows)
	got := rows[0].ID + rows[1].ID + rows[2].ID
	if got != "123" {
		t.Errorf("order = %s; want 123", got)
	}
}

func TestPlainPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf, map[string]string{"p1": "shop"})

	p.Send(eventbus.LogEvent("p1", "stdout", "ready in 1.2s", time.Now()))
	ev := eventbus.StatusEvent(eventbus.PreviewRunning, "Preview server running at http://localhost:3000", nil)
	ev.ProjectID = "p2"
	p.Send(ev)

	want := "[shop] ready in 1.2s\n[p2] ● Preview server running at http://localhost:3000\n"
	if buf.String() != want {
		t.Errorf("output = %q; want %q", buf.String(), want)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestPreviewInfoOutput(t *testing.T) {
	var buf bytes.Buffer
	old := Out
	Out = &buf
	defer func() { Out = old }()

	port, url := 3005, "http://localhost:3005"
	PreviewInfo("p1", orchestrator.Info{Port: &port, URL: &url, Status: orchestrator.StatusRunning, Logs: []string{"a", "b", "c"}}, 2)

	out := buf.String()
	for _, want := range []string{"p1", "running", url, "3005", "b", "c"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "  a\n") {
		t.Errorf("output should only include the last two lines:\n%s", out)
	}
}
