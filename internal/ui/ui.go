// Package ui renders CLI output and the preview dashboard.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/octo-preview/internal/orchestrator"
)

// Out is where the print helpers write
var Out io.Writer = os.Stdout

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"})
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"})
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#CC6600", Dark: "#FFAA00"})
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF0000"})
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"})
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"})
	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"})
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})
	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"})
)

// Header prints a styled header
func Header(text string) {
	fmt.Fprintln(Out, titleStyle.MarginBottom(1).Render("  "+text))
}

// Success prints a success message with a checkmark
func Success(text string) {
	fmt.Fprintln(Out, successStyle.Render("✔")+" "+text)
}

// Warn prints a warning
func Warn(text string) {
	fmt.Fprintln(Out, warnStyle.Render("⚠")+" "+text)
}

// Error prints an error message
func Error(text string) {
	fmt.Fprintln(Out, errorStyle.Render("✖")+" "+text)
}

// Info prints an informational message
func Info(text string) {
	fmt.Fprintln(Out, infoStyle.Render("ℹ")+" "+text)
}

// Highlight prints a label and value pair
func Highlight(label, value string) {
	fmt.Fprintln(Out, "  "+labelStyle.Render(label+":")+" "+valueStyle.Render(value))
}

// Lines prints log lines dimmed and indented
func Lines(lines []string) {
	for _, line := range lines {
		fmt.Fprintln(Out, dimStyle.Render("  "+line))
	}
}

// PreviewInfo prints a preview snapshot. logLines limits how many trailing
// log lines are shown; zero hides them.
func PreviewInfo(projectID string, info orchestrator.Info, logLines int) {
	Highlight("Project", projectID)
	Highlight("Status", string(info.Status))
	if info.URL != nil {
		Highlight("URL", *info.URL)
	}
	if info.Port != nil {
		Highlight("Port", fmt.Sprint(*info.Port))
	}
	if info.PID > 0 {
		Highlight("PID", fmt.Sprint(info.PID))
	}
	if logLines > 0 && len(info.Logs) > 0 {
		logs := info.Logs
		if len(logs) > logLines {
			logs = logs[len(logs)-logLines:]
		}
		fmt.Fprintln(Out)
		Lines(logs)
	}
}

// confirmPrompt is a yes/no question answered with the arrow keys
type confirmPrompt struct {
	question  string
	yes       bool
	confirmed bool
}

func (m confirmPrompt) Init() tea.Cmd { return nil }

func (m confirmPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch k.String() {
	case "left", "h", "y", "Y":
		m.yes = true
	case "right", "l", "n", "N":
		m.yes = false
	case "tab":
		m.yes = !m.yes
	case "enter":
		m.confirmed = true
		return m, tea.Quit
	case "ctrl+c", "esc", "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmPrompt) View() string {
	yes, no := dimStyle.Render("Yes"), dimStyle.Render("No")
	yesCursor, noCursor := "  ", "  "
	if m.yes {
		yes, yesCursor = successStyle.Bold(true).Render("Yes"), cursorStyle.Render("❯ ")
	} else {
		no, noCursor = successStyle.Bold(true).Render("No"), cursorStyle.Render("❯ ")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("? "+m.question) + "\n\n")
	b.WriteString(yesCursor + yes + "    " + noCursor + no + "\n\n")
	b.WriteString(dimStyle.Render("  ← → to select • enter to confirm • esc to cancel"))
	return b.String()
}

// Confirm asks a yes/no question. Cancelling counts as no.
func Confirm(question string, defaultYes bool) (bool, error) {
	model, err := tea.NewProgram(confirmPrompt{question: question, yes: defaultYes}).Run()
	if err != nil {
		return false, err
	}
	m := model.(confirmPrompt)
	return m.confirmed && m.yes, nil
}
