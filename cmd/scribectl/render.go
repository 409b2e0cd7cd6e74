package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"scribedesk/internal/domain"
)

var (
	sapphire = lipgloss.Color("#74c7ec")
	green    = lipgloss.Color("#a6e3a1")
	red      = lipgloss.Color("#f38ba8")
	peach    = lipgloss.Color("#fab387")
	subtext  = lipgloss.Color("#a6adc8")

	titleStyle   = lipgloss.NewStyle().Foreground(sapphire).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(subtext)
	runningStyle = lipgloss.NewStyle().Foreground(peach).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(green).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(red).Bold(true)
)

func renderTask(task domain.Task) string {
	var badge string
	switch task.Status {
	case domain.TaskStatusProcessing:
		badge = runningStyle.Render("…")
	case domain.TaskStatusSuccess:
		badge = okStyle.Render("✓")
	default:
		badge = failStyle.Render("✗")
	}
	label := "unit " + task.UnitID
	if task.Source == domain.TaskSourceSystem {
		label = "generation"
	}
	return fmt.Sprintf("%s %s %s", badge, mutedStyle.Render(label), task.Message)
}

func renderUnit(index int, unit domain.Unit) string {
	box := "[ ]"
	if unit.Checked {
		box = "[x]"
	}
	content := strings.ReplaceAll(strings.TrimSpace(unit.Content), "\n", " ")
	if content == "" {
		content = mutedStyle.Render("(empty)")
	}
	line := fmt.Sprintf("%s %2d. %s", box, index+1, content)
	if unit.ColorTag != domain.ColorTagNone {
		line += " " + mutedStyle.Render("#"+string(unit.ColorTag))
	}
	if unit.SoftDeleted {
		line = mutedStyle.Strikethrough(true).Render(line)
	}
	return line + " " + mutedStyle.Render(unit.ID)
}

func renderRevision(pos int, rev domain.Revision) string {
	note := rev.Note
	if note == "" {
		note = "-"
	}
	return fmt.Sprintf("%s %s %s %s",
		titleStyle.Render(fmt.Sprintf("#%d", pos)),
		rev.CreatedAt.Local().Format(time.DateTime),
		mutedStyle.Render(note),
		rev.ID,
	)
}

// consoleSink prints engine events as they arrive. Generated text streams
// to the writer unstyled.
type consoleSink struct {
	mu        sync.Mutex
	out       io.Writer
	showUnits bool
	showTasks bool
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

func (s *consoleSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *consoleSink) TasksChanged(tasks []domain.Task) {
	if !s.showTasks {
		return
	}
	lines := make([]string, 0, len(tasks))
	for _, task := range tasks {
		lines = append(lines, renderTask(task))
	}
	if len(lines) == 0 {
		lines = append(lines, mutedStyle.Render("no tasks"))
	}
	s.printf("%s\n%s\n", titleStyle.Render("tasks"), strings.Join(lines, "\n"))
}

func (s *consoleSink) UnitsChanged(sessionID string, units []domain.Unit) {
	if !s.showUnits {
		return
	}
	s.printf("%s\n%s\n", titleStyle.Render("units "+sessionID), renderUnits(units))
}

func (s *consoleSink) RevisionsChanged(sessionID string, revisions []domain.Revision) {
	if !s.showUnits {
		return
	}
	s.printf("%s\n", mutedStyle.Render(fmt.Sprintf("revisions %s: %d", sessionID, len(revisions))))
}

func (s *consoleSink) EditorAppend(text string) {
	s.printf("%s", text)
}

func (s *consoleSink) SessionsChanged() {
	if s.showUnits {
		s.printf("%s\n", mutedStyle.Render("sessions changed"))
	}
}

func (s *consoleSink) SettingsChanged() {
	if s.showUnits {
		s.printf("%s\n", mutedStyle.Render("settings changed"))
	}
}

func (s *consoleSink) ConnectionChanged(live bool) {
	if !s.showUnits {
		return
	}
	if live {
		s.printf("%s\n", okStyle.Render("live"))
		return
	}
	s.printf("%s\n", failStyle.Render("offline"))
}

func (s *consoleSink) SyncError(code domain.ErrorCode, detail string) {
	s.printf("%s %s\n", failStyle.Render(string(code)), detail)
}

func renderUnits(units []domain.Unit) string {
	if len(units) == 0 {
		return mutedStyle.Render("no units")
	}
	lines := make([]string, 0, len(units))
	for i, unit := range units {
		lines = append(lines, renderUnit(i, unit))
	}
	return strings.Join(lines, "\n")
}
