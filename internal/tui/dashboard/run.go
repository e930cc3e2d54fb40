package dashboard

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/ipc"
)

// Attach connects to a running daemon via IPC and displays the dashboard.
// It returns when the user quits; the daemon keeps running.
func Attach(socketPath string) error {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer func() { _ = client.Close() }()

	status, err := client.Status()
	if err != nil {
		return fmt.Errorf("query status: %w", err)
	}
	sessions, err := client.Sessions()
	if err != nil {
		return fmt.Errorf("query sessions: %w", err)
	}

	if err := client.Subscribe(ipc.SubscribeParams{}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	m := NewModel(*status, sessions)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// refreshState fetches current status and sessions and sends updates
	// to the TUI.
	refreshState := func() {
		if s, err := client.Status(); err == nil {
			p.Send(StatusUpdateMsg{Status: *s})
		}
		if ss, err := client.Sessions(); err == nil {
			p.Send(SessionsUpdateMsg{Sessions: ss})
		}
	}

	// Forward IPC events to the TUI. State-changing events refresh the
	// panels immediately instead of waiting for the next tick.
	go func() {
		for evt := range client.Events() {
			p.Send(EventMsg{Type: evt.Type, Data: evt.Data})
			switch event.Type(evt.Type) {
			case event.BookingResult, event.RuntimeAlert:
				refreshState()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			refreshState()
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}
