package dashboard

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentbot-ai/agentbot/internal/ipc"
	"github.com/agentbot-ai/agentbot/internal/tui"
)

type sessionsModel struct {
	items  []ipc.SessionInfo
	cursor int
}

func newSessions(sessions []ipc.SessionInfo) sessionsModel {
	return sessionsModel{items: sessions}
}

func (s *sessionsModel) update(sessions []ipc.SessionInfo) {
	s.items = sessions
	if s.cursor >= len(s.items) {
		s.cursor = max(0, len(s.items)-1)
	}
}

func (s sessionsModel) Update(msg tea.Msg) (sessionsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if s.cursor < len(s.items)-1 {
				s.cursor++
			}
		case "k", "up":
			if s.cursor > 0 {
				s.cursor--
			}
		case "G":
			s.cursor = max(0, len(s.items)-1)
		case "g":
			s.cursor = 0
		}
	}
	return s, nil
}

func (s sessionsModel) View() string {
	if len(s.items) == 0 {
		return tui.Dimmed.Render("  No sessions configured")
	}

	headerStyle := lipgloss.NewStyle().Foreground(tui.ColorSubtle).Bold(true)
	header := fmt.Sprintf("  %-16s %-12s %-8s %-8s %s",
		headerStyle.Render("SESSION"),
		headerStyle.Render("USER"),
		headerStyle.Render("MONITOR"),
		headerStyle.Render("BOOKER"),
		headerStyle.Render("STATE"),
	)

	rows := header + "\n"
	for i, sess := range s.items {
		cursor := "  "
		style := lipgloss.NewStyle()
		if i == s.cursor {
			cursor = tui.Selected.Render("> ")
			style = style.Bold(true)
		}

		id := sess.SessionID
		if len(id) > 14 {
			id = id[:14]
		}
		user := sess.UserID
		if len(user) > 10 {
			user = user[:10]
		}

		row := fmt.Sprintf("%-16s %-12s %-8s %-8s %s",
			style.Render(id),
			style.Render(user),
			runningMark(sess.MonitorRunning),
			runningMark(sess.BookerRunning),
			stateColor(sess.State).Render(sess.State),
		)
		rows += cursor + row + "\n"
	}

	return rows
}

func (s sessionsModel) height() int {
	return min(len(s.items)+2, 12) // header + rows, max 12
}

func runningMark(running bool) string {
	if running {
		return tui.Success.Render("up")
	}
	return tui.Dimmed.Render("down")
}

func stateColor(state string) lipgloss.Style {
	switch state {
	case "booked":
		return lipgloss.NewStyle().Foreground(tui.ColorSuccess)
	case "failed":
		return lipgloss.NewStyle().Foreground(tui.ColorError)
	case "claiming", "booking":
		return lipgloss.NewStyle().Foreground(tui.ColorAccent)
	case "monitoring":
		return lipgloss.NewStyle().Foreground(tui.ColorSecondary)
	case "idle":
		return lipgloss.NewStyle().Foreground(tui.ColorMuted)
	default:
		return lipgloss.NewStyle().Foreground(tui.ColorText)
	}
}
