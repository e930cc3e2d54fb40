// Package dashboard is the attachable terminal dashboard over the daemon's
// IPC socket.
package dashboard

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentbot-ai/agentbot/internal/ipc"
	"github.com/agentbot-ai/agentbot/internal/tui"
)

// Panel identifies which dashboard panel is focused.
type Panel int

const (
	PanelSessions Panel = iota
	PanelEvents
)

// Model is the root dashboard TUI model.
type Model struct {
	header   headerModel
	sessions sessionsModel
	events   eventsModel
	help     helpModel

	activePanel Panel
	width       int
	height      int
	quitting    bool
}

// NewModel creates a dashboard model from an initial IPC snapshot.
func NewModel(status ipc.StatusResult, sessions []ipc.SessionInfo) Model {
	return Model{
		header:   newHeader(status),
		sessions: newSessions(sessions),
		events:   newEvents(),
		help:     newHelp(),
	}
}

// EventMsg wraps a bus event received over IPC.
type EventMsg struct {
	Type string
	Data []byte
}

// StatusUpdateMsg carries fresh status data.
type StatusUpdateMsg struct {
	Status ipc.StatusResult
}

// SessionsUpdateMsg carries fresh session data.
type SessionsUpdateMsg struct {
	Sessions []ipc.SessionInfo
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.events.SetSize(msg.Width-4, m.eventsHeight())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c", "q"))):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys("tab"))):
			if m.activePanel == PanelSessions {
				m.activePanel = PanelEvents
			} else {
				m.activePanel = PanelSessions
			}
			return m, nil
		case key.Matches(msg, key.NewBinding(key.WithKeys("?"))):
			m.help.toggle()
			return m, nil
		}

	case StatusUpdateMsg:
		m.header.update(msg.Status)
		return m, nil

	case SessionsUpdateMsg:
		m.sessions.update(msg.Sessions)
		return m, nil

	case EventMsg:
		m.events.addEvent(msg)
		return m, nil
	}

	// Delegate to active panel.
	var cmd tea.Cmd
	switch m.activePanel {
	case PanelSessions:
		m.sessions, cmd = m.sessions.Update(msg)
	case PanelEvents:
		m.events, cmd = m.events.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	if m.help.visible {
		return m.help.View()
	}

	headerView := m.header.View(m.width)

	sessStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.width - 2)

	eventsStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.width - 2)

	if m.activePanel == PanelSessions {
		sessStyle = sessStyle.BorderForeground(tui.ColorPrimary)
	} else {
		eventsStyle = eventsStyle.BorderForeground(tui.ColorPrimary)
	}

	sessView := sessStyle.Render(
		tui.Subtitle.Render(" Sessions") + "\n" + m.sessions.View(),
	)
	eventsView := eventsStyle.Render(
		tui.Subtitle.Render(" Events") + "\n" + m.events.View(),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		headerView,
		sessView,
		eventsView,
		m.help.bar(),
	)
}

// Quitting returns true if the user quit.
func (m Model) Quitting() bool { return m.quitting }

func (m Model) eventsHeight() int {
	// Reserve space for header, sessions, help bar, borders.
	used := 6 + m.sessions.height() + 4
	h := m.height - used
	if h < 5 {
		h = 5
	}
	return h
}
