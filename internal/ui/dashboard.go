package ui

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/octo-preview/internal/eventbus"
	"github.com/harshul/octo-preview/internal/orchestrator"
)

// maxRowLogs bounds the lines a row keeps for display
const maxRowLogs = 1000

// Controller starts and stops previews on behalf of the dashboard. Both the
// in-process supervisor and the HTTP client satisfy it.
type Controller interface {
	Start(ctx context.Context, projectID string) (orchestrator.Info, error)
	Stop(ctx context.Context, projectID string) (orchestrator.Info, error)
}

// Row is one project's preview as the dashboard shows it
type Row struct {
	ID        string
	Name      string
	Status    orchestrator.Status
	URL       string
	Port      int
	PID       int
	StartedAt time.Time
	LastError string

	logs []string
	mu   sync.RWMutex
}

// NewRow creates a row for a project that has no preview yet
func NewRow(id, name string) *Row {
	if name == "" {
		name = id
	}
	return &Row{
		ID:     id,
		Name:   name,
		Status: orchestrator.StatusStopped,
		logs:   make([]string, 0, 64),
	}
}

// AppendLog adds a line, dropping the oldest past maxRowLogs
func (r *Row) AppendLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) >= maxRowLogs {
		r.logs = r.logs[1:]
	}
	r.logs = append(r.logs, line)
}

// Logs returns a copy of the row's lines
func (r *Row) Logs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.logs))
	copy(out, r.logs)
	return out
}

// SetInfo copies a preview snapshot into the row
func (r *Row) SetInfo(info orchestrator.Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = info.Status
	r.PID = info.PID
	r.URL, r.Port = "", 0
	if info.URL != nil {
		r.URL = *info.URL
	}
	if info.Port != nil {
		r.Port = *info.Port
	}
	if info.Status == orchestrator.StatusRunning && r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
}

// Apply folds one preview event into the row
func (r *Row) Apply(ev eventbus.Event) {
	if ev.Type == eventbus.EventLog {
		if content, ok := ev.Data["content"].(string); ok {
			r.AppendLog(content)
		}
		return
	}
	if ev.Type != eventbus.EventStatus {
		return
	}

	status, _ := ev.Data["status"].(string)
	message, _ := ev.Data["message"].(string)
	meta, _ := ev.Data["metadata"].(map[string]any)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch status {
	case eventbus.PreviewStarting:
		r.Status = orchestrator.StatusStarting
		r.LastError = ""
		r.StartedAt = time.Time{}
	case eventbus.PreviewRunning:
		r.Status = orchestrator.StatusRunning
		r.StartedAt = ev.Timestamp
		if url, ok := meta["url"].(string); ok {
			r.URL = url
		}
		if port, ok := toInt(meta["port"]); ok {
			r.Port = port
		}
	case eventbus.PreviewStopped:
		r.Status = orchestrator.StatusStopped
		r.PID = 0
	case eventbus.PreviewError:
		r.Status = orchestrator.StatusError
		r.PID = 0
		r.LastError = message
		if detail, ok := meta["error"].(string); ok && detail != "" {
			r.LastError = detail
		}
	}
}

// rowView is a lock-free copy of a Row for rendering
type rowView struct {
	ID        string
	Name      string
	Status    orchestrator.Status
	URL       string
	Port      int
	PID       int
	StartedAt time.Time
	LastError string
}

// snapshot reads the fields the views render under one lock
func (r *Row) snapshot() rowView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return rowView{
		ID:        r.ID,
		Name:      r.Name,
		Status:    r.Status,
		URL:       r.URL,
		Port:      r.Port,
		PID:       r.PID,
		StartedAt: r.StartedAt,
		LastError: r.LastError,
	}
}

// toInt reads a number that may have crossed a JSON boundary
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// DashboardModel is the bubbletea model for the preview dashboard
type DashboardModel struct {
	rows          []*Row
	byID          map[string]*Row
	selectedIndex int
	focusedIndex  int // -1 means no row is focused

	control   Controller
	resources ResourceStats
	procs     map[string]ProcessStats
	notice    string

	width           int
	height          int
	viewport        viewport.Model
	compactViewport viewport.Model
	showHelp        bool
	quitting        bool
	compactMode     bool
	logsFocused     bool

	updates chan tea.Msg
	keys    keyMap
	styles  *Styles
}

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Enter      key.Binding
	Escape     key.Binding
	Help       key.Binding
	Quit       key.Binding
	ToggleMode key.Binding
	OpenURL    key.Binding
	Start      key.Binding
	Stop       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Enter:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "focus/unfocus")),
		Escape:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		ToggleMode: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "toggle view")),
		OpenURL:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in browser")),
		Start:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "start")),
		Stop:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
	}
}

// Styles holds the dashboard's lipgloss styles
type Styles struct {
	App    lipgloss.Style
	Title  lipgloss.Style
	Header lipgloss.Style
	Footer lipgloss.Style

	RowList     lipgloss.Style
	RowItem     lipgloss.Style
	RowSelected lipgloss.Style

	StatusStarting lipgloss.Style
	StatusRunning  lipgloss.Style
	StatusError    lipgloss.Style
	StatusStopped  lipgloss.Style

	MonitorBox    lipgloss.Style
	ProgressFill  lipgloss.Style
	ProgressEmpty lipgloss.Style

	LogViewport lipgloss.Style
	Dim         lipgloss.Style
	URL         lipgloss.Style
	HelpKey     lipgloss.Style
}

// DefaultStyles returns the default color scheme
func DefaultStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#999"}
	highlight := lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"}
	success := lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"}
	warning := lipgloss.AdaptiveColor{Light: "#AAAA00", Dark: "#FFFF00"}
	errorColor := lipgloss.AdaptiveColor{Light: "#AA0000", Dark: "#FF0000"}
	info := lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"}

	return &Styles{
		App:   lipgloss.NewStyle().Padding(1, 2),
		Title: lipgloss.NewStyle().Bold(true).Foreground(highlight),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(subtle).
			MarginBottom(1).
			Padding(0, 1),
		Footer: lipgloss.NewStyle().
			Foreground(subtle).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(subtle).
			MarginTop(1).
			Padding(0, 1),

		RowList: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1),
		RowItem: lipgloss.NewStyle().Padding(0, 1),
		RowSelected: lipgloss.NewStyle().
			Padding(0, 1).
			Background(lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#333333"}).
			Bold(true),

		StatusStarting: lipgloss.NewStyle().Foreground(warning),
		StatusRunning:  lipgloss.NewStyle().Foreground(info).Bold(true),
		StatusError:    lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		StatusStopped:  lipgloss.NewStyle().Foreground(subtle),

		MonitorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1).
			MarginTop(1),
		ProgressFill:  lipgloss.NewStyle().Foreground(success),
		ProgressEmpty: lipgloss.NewStyle().Foreground(subtle),

		LogViewport: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(0, 1),
		Dim: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
		URL: lipgloss.NewStyle().
			Bold(true).
			Foreground(success).
			Underline(true),
		HelpKey: lipgloss.NewStyle().Foreground(highlight).Bold(true),
	}
}

type tickMsg time.Time

type resourceMsg struct {
	host  ResourceStats
	procs map[string]ProcessStats
}

type eventMsg eventbus.Event

type actionMsg struct {
	projectID string
	action    string
	info      orchestrator.Info
	err       error
}

type quitMsg struct{}

// NewDashboard creates a dashboard over rows. control may be nil, which
// disables the start and stop keys.
func NewDashboard(rows []*Row, control Controller) *DashboardModel {
	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true
	cvp := viewport.New(80, 20)
	cvp.MouseWheelEnabled = true

	byID := make(map[string]*Row, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	return &DashboardModel{
		rows:            rows,
		byID:            byID,
		focusedIndex:    -1,
		control:         control,
		procs:           map[string]ProcessStats{},
		viewport:        vp,
		compactViewport: cvp,
		keys:            defaultKeyMap(),
		styles:          DefaultStyles(),
		updates:         make(chan tea.Msg, 256),
		compactMode:     true,
		logsFocused:     true,
	}
}

// Send delivers a preview event to the dashboard. It never blocks; events
// are dropped while the dashboard is behind. Safe to use as a bus
// subscriber.
func (m *DashboardModel) Send(ev eventbus.Event) {
	select {
	case m.updates <- eventMsg(ev):
	default:
	}
}

// SendQuit asks the dashboard to exit
func (m *DashboardModel) SendQuit() {
	select {
	case m.updates <- quitMsg{}:
	default:
	}
}

// Row returns the row for a project, or nil
func (m *DashboardModel) Row(projectID string) *Row {
	return m.byID[projectID]
}

// Init implements tea.Model
func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.listen())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *DashboardModel) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

// Update implements tea.Model
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		cmds = append(cmds, m.handleKey(msg)...)

	case tea.MouseMsg:
		var cmd tea.Cmd
		if m.compactMode {
			m.compactViewport, cmd = m.compactViewport.Update(msg)
		} else if m.focusedIndex >= 0 {
			m.viewport, cmd = m.viewport.Update(msg)
		}
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-15, 3)
		m.compactViewport.Width = msg.Width - 4
		m.compactViewport.Height = max(msg.Height-8, 3)
		m.refreshViewports()

	case tickMsg:
		cmds = append(cmds, tickCmd(), m.fetchResources())
		m.refreshViewports()

	case resourceMsg:
		m.resources = msg.host
		m.procs = msg.procs

	case eventMsg:
		if r := m.byID[msg.ProjectID]; r != nil {
			r.Apply(eventbus.Event(msg))
			m.refreshViewports()
		}
		cmds = append(cmds, m.listen())

	case actionMsg:
		if r := m.byID[msg.projectID]; r != nil {
			if msg.err != nil {
				m.notice = fmt.Sprintf("%s %s failed: %v", msg.action, msg.projectID, msg.err)
			} else {
				r.SetInfo(msg.info)
				m.notice = ""
			}
		}

	case quitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

func (m *DashboardModel) handleKey(msg tea.KeyMsg) []tea.Cmd {
	var cmds []tea.Cmd
	switch {
	case key.Matches(msg, m.keys.ToggleMode):
		m.compactMode = !m.compactMode
		m.refreshViewports()

	case key.Matches(msg, m.keys.OpenURL):
		if r := m.target(); r != nil {
			if s := r.snapshot(); s.URL != "" {
				openInBrowser(s.URL)
			}
		}

	case key.Matches(msg, m.keys.Start):
		if r := m.target(); r != nil && m.control != nil {
			cmds = append(cmds, m.runAction("start", r.ID, m.control.Start))
		}

	case key.Matches(msg, m.keys.Stop):
		if r := m.target(); r != nil && m.control != nil {
			cmds = append(cmds, m.runAction("stop", r.ID, m.control.Stop))
		}

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		up := key.Matches(msg, m.keys.Up)
		switch {
		case m.compactMode && m.logsFocused:
			var cmd tea.Cmd
			m.compactViewport, cmd = m.compactViewport.Update(msg)
			cmds = append(cmds, cmd)
		case m.focusedIndex >= 0:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		case up && m.selectedIndex > 0:
			m.selectedIndex--
		case !up && m.selectedIndex < len(m.rows)-1:
			m.selectedIndex++
		}

	case key.Matches(msg, m.keys.Enter):
		switch {
		case m.compactMode:
			m.logsFocused = !m.logsFocused
		case m.focusedIndex >= 0:
			m.focusedIndex = -1
		case len(m.rows) > 0:
			m.focusedIndex = m.selectedIndex
			m.refreshViewports()
		}

	case key.Matches(msg, m.keys.Escape):
		if m.compactMode && m.logsFocused {
			m.logsFocused = false
		} else if m.focusedIndex >= 0 {
			m.focusedIndex = -1
		}

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
	}
	return cmds
}

// target is the row keyboard actions apply to: the selected row on the
// dashboard, or the first row with a URL in compact mode.
func (m *DashboardModel) target() *Row {
	if len(m.rows) == 0 {
		return nil
	}
	if m.compactMode {
		for _, r := range m.rows {
			if r.snapshot().URL != "" {
				return r
			}
		}
	}
	return m.rows[m.selectedIndex]
}

func (m *DashboardModel) runAction(action, id string, fn func(context.Context, string) (orchestrator.Info, error)) tea.Cmd {
	m.notice = fmt.Sprintf("%s %s...", action, id)
	return func() tea.Msg {
		info, err := fn(context.Background(), id)
		return actionMsg{projectID: id, action: action, info: info, err: err}
	}
}

func openInBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return
	}
	_ = cmd.Start()
}

func (m *DashboardModel) fetchResources() tea.Cmd {
	pids := make(map[string]int, len(m.rows))
	for _, r := range m.rows {
		if s := r.snapshot(); s.PID > 0 {
			pids[s.ID] = s.PID
		}
	}
	return func() tea.Msg {
		procs := make(map[string]ProcessStats, len(pids))
		for id, pid := range pids {
			if st, err := GetProcessStats(pid); err == nil {
				procs[id] = st
			}
		}
		return resourceMsg{host: GetResourceStats(), procs: procs}
	}
}

func (m *DashboardModel) refreshViewports() {
	if m.focusedIndex >= 0 && m.focusedIndex < len(m.rows) {
		setFollowing(&m.viewport, strings.Join(m.rows[m.focusedIndex].Logs(), "\n"))
	}
	if m.compactMode {
		setFollowing(&m.compactViewport, m.compactLogContent())
	}
}

// setFollowing replaces content and keeps the view pinned to the bottom if
// it already was.
func setFollowing(vp *viewport.Model, content string) {
	atBottom := vp.AtBottom()
	vp.SetContent(content)
	if atBottom {
		vp.GotoBottom()
	}
}

func (m *DashboardModel) compactLogContent() string {
	var lines []string
	for _, r := range m.rows {
		s := r.snapshot()
		if s.Status == orchestrator.StatusStopped {
			continue
		}
		lines = append(lines, m.renderStatus(s.Status)+" "+s.Name)
		for _, line := range r.Logs() {
			if m.width > 10 && len(line) > m.width-4 {
				line = line[:m.width-7] + "..."
			}
			lines = append(lines, m.styles.Dim.Render("  "+line))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// View implements tea.Model
func (m *DashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	if m.compactMode {
		return m.renderCompactView()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.focusedIndex >= 0 {
		b.WriteString(m.renderFocusedView())
	} else {
		b.WriteString(m.renderRowList())
		b.WriteString("\n")
		b.WriteString(m.renderResourceMonitor())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return m.styles.App.Render(b.String())
}

func (m *DashboardModel) running() int {
	n := 0
	for _, r := range m.rows {
		if r.snapshot().Status == orchestrator.StatusRunning {
			n++
		}
	}
	return n
}

func (m *DashboardModel) renderHeader() string {
	title := "🐙 Octo Previews"
	status := fmt.Sprintf("Projects: %d | Running: %d", len(m.rows), m.running())
	if m.resources.CPUPercent > 0 {
		status += fmt.Sprintf(" | CPU: %.1f%%", m.resources.CPUPercent)
	}
	if m.resources.MemPercent > 0 {
		status += fmt.Sprintf(" | Mem: %.1f%%", m.resources.MemPercent)
	}
	if m.resources.CPUTemp > 0 {
		status += fmt.Sprintf(" | Temp: %.0f°C", m.resources.CPUTemp)
	}

	width := max(m.width-4, 40)
	// Width includes the style's padding; the text gets what is left
	inner := width - m.styles.Header.GetHorizontalPadding()
	padding := max(inner-lipgloss.Width(title)-lipgloss.Width(status), 1)
	return m.styles.Header.Width(width).Render(title + strings.Repeat(" ", padding) + status)
}

func (m *DashboardModel) renderRowList() string {
	width := max(m.width-6, 60)
	items := make([]string, 0, len(m.rows))
	for i, r := range m.rows {
		items = append(items, m.renderRow(i, r.snapshot(), width))
	}
	if len(items) == 0 {
		items = append(items, m.styles.Dim.Render("No projects"))
	}
	return m.styles.RowList.Width(width).Render(strings.Join(items, "\n"))
}

func (m *DashboardModel) renderRow(index int, s rowView, width int) string {
	style := m.styles.RowItem
	if index == m.selectedIndex {
		style = m.styles.RowSelected
	}

	const maxName = 25
	name := s.Name
	if len(name) > maxName {
		name = name[:maxName-3] + "..."
	}

	extra := ""
	switch s.Status {
	case orchestrator.StatusRunning:
		if !s.StartedAt.IsZero() {
			extra += " " + time.Since(s.StartedAt).Round(time.Second).String()
		}
		if s.URL != "" {
			extra += m.styles.StatusRunning.Render(" → " + s.URL)
		}
		if p, ok := m.procs[s.ID]; ok {
			extra += m.styles.Dim.Render(fmt.Sprintf("  %d procs %.0f%% %s", p.Processes, p.CPUPercent, FormatBytes(p.RSS)))
		}
	case orchestrator.StatusError:
		if s.LastError != "" {
			extra += m.styles.StatusError.Render(" " + s.LastError)
		}
	}

	line := fmt.Sprintf("%-*s  %s%s", maxName, name, m.renderStatus(s.Status), extra)
	return style.Width(width - 2).Render(line)
}

func (m *DashboardModel) renderStatus(status orchestrator.Status) string {
	var style lipgloss.Style
	var icon string
	switch status {
	case orchestrator.StatusStarting:
		style, icon = m.styles.StatusStarting, "◌"
	case orchestrator.StatusRunning:
		style, icon = m.styles.StatusRunning, "●"
	case orchestrator.StatusError:
		style, icon = m.styles.StatusError, "✗"
	default:
		style, icon = m.styles.StatusStopped, "○"
	}
	return style.Render(fmt.Sprintf("%s %-8s", icon, status))
}

func (m *DashboardModel) renderResourceMonitor() string {
	parts := []string{
		m.renderProgressBar("CPU", m.resources.CPUPercent/100, 20),
		m.renderProgressBar("Mem", m.resources.MemPercent/100, 20),
	}
	if m.resources.CPUTemp > 0 {
		style := m.styles.ProgressFill
		if m.resources.CPUTemp > 80 {
			style = m.styles.StatusError
		} else if m.resources.CPUTemp > 60 {
			style = m.styles.StatusStarting
		}
		parts = append(parts, style.Render(fmt.Sprintf("🌡️ %.0f°C", m.resources.CPUTemp)))
	}
	return m.styles.MonitorBox.Render(strings.Join(parts, "  "))
}

func (m *DashboardModel) renderProgressBar(label string, progress float64, width int) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))
	bar := m.styles.ProgressFill.Render(strings.Repeat("█", filled)) +
		m.styles.ProgressEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s [%s] %5.1f%%", label, bar, progress*100)
}

func (m *DashboardModel) renderFocusedView() string {
	s := m.rows[m.focusedIndex].snapshot()

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 %s | %s", s.Name, m.renderStatus(s.Status)))
	if s.URL != "" {
		b.WriteString(" | " + m.styles.URL.Render(s.URL))
	}
	b.WriteString("\n\n")

	width := max(m.width-6, 60)
	m.viewport.Width = width
	b.WriteString(m.styles.LogViewport.Width(width).Render(m.viewport.View()))
	return b.String()
}

func (m *DashboardModel) renderCompactView() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("🐙 Octo"))
	b.WriteString(m.styles.Dim.Render(fmt.Sprintf("  %d/%d running", m.running(), len(m.rows))))
	if m.resources.CPUPercent > 0 {
		b.WriteString(m.styles.Dim.Render(fmt.Sprintf("  CPU: %.0f%%", m.resources.CPUPercent)))
	}
	if m.resources.CPUTemp > 0 {
		b.WriteString(m.styles.Dim.Render(fmt.Sprintf("  🌡️%.0f°C", m.resources.CPUTemp)))
	}
	b.WriteString("\n")

	for _, r := range m.rows {
		s := r.snapshot()
		if s.URL == "" {
			continue
		}
		style := m.styles.URL
		if s.Status != orchestrator.StatusRunning {
			style = m.styles.Dim
		}
		b.WriteString(style.Render(fmt.Sprintf("  ➜ %s: %s", s.Name, s.URL)))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(m.styles.StatusStarting.Render("  " + m.notice))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	border := lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"}
	if m.logsFocused {
		border = lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"}
	}
	b.WriteString(lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Render(m.compactViewport.View()))
	b.WriteString("\n")

	var help string
	if m.logsFocused {
		help = fmt.Sprintf("%s scroll • %s unfocus • %s toggle view • %s open • %s quit",
			m.styles.HelpKey.Render("↑↓"),
			m.styles.HelpKey.Render("esc"),
			m.styles.HelpKey.Render("tab"),
			m.styles.HelpKey.Render("o"),
			m.styles.HelpKey.Render("q"))
	} else {
		help = fmt.Sprintf("%s focus logs • %s toggle view • %s open • %s quit",
			m.styles.HelpKey.Render("enter"),
			m.styles.HelpKey.Render("tab"),
			m.styles.HelpKey.Render("o"),
			m.styles.HelpKey.Render("q"))
	}
	b.WriteString(m.styles.Dim.Render(help))
	return b.String()
}

func (m *DashboardModel) renderFooter() string {
	var help string
	if m.focusedIndex >= 0 {
		help = fmt.Sprintf("📊 Dashboard • %s scroll • %s back • %s quit",
			m.styles.HelpKey.Render("↑↓/jk"),
			m.styles.HelpKey.Render("esc/enter"),
			m.styles.HelpKey.Render("q"))
	} else {
		help = fmt.Sprintf("📊 Dashboard • %s nav • %s focus • %s start • %s stop • %s open • %s view • %s quit",
			m.styles.HelpKey.Render("↑↓"),
			m.styles.HelpKey.Render("enter"),
			m.styles.HelpKey.Render("r"),
			m.styles.HelpKey.Render("s"),
			m.styles.HelpKey.Render("o"),
			m.styles.HelpKey.Render("tab"),
			m.styles.HelpKey.Render("q"))
	}
	if m.showHelp {
		var lines []string
		for _, b := range []key.Binding{m.keys.Up, m.keys.Down, m.keys.Enter, m.keys.Escape, m.keys.Start, m.keys.Stop, m.keys.OpenURL, m.keys.ToggleMode, m.keys.Quit} {
			h := b.Help()
			lines = append(lines, fmt.Sprintf("%s %s", m.styles.HelpKey.Render(h.Key), h.Desc))
		}
		help = strings.Join(lines, "  ") + "\n" + help
	}
	if m.notice != "" {
		help = m.notice + "\n" + help
	}
	return m.styles.Footer.Width(max(m.width-4, 40)).Render(help)
}

// SortRows orders rows by name so the dashboard is stable across runs
func SortRows(rows []*Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name == rows[j].Name {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].Name < rows[j].Name
	})
}
