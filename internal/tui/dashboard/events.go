package dashboard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/tui"
)

const maxEventLines = 1000

type eventsModel struct {
	viewport   viewport.Model
	lines      []string
	autoScroll bool
	width      int
	height     int
}

func newEvents() eventsModel {
	vp := viewport.New(80, 10)
	return eventsModel{
		viewport:   vp,
		autoScroll: true,
	}
}

func (e *eventsModel) SetSize(width, height int) {
	e.width = width
	e.height = height
	e.viewport.Width = width
	e.viewport.Height = height
}

func (e *eventsModel) addEvent(msg EventMsg) {
	line := formatEvent(msg)
	e.lines = append(e.lines, line)

	// Trim old lines.
	if len(e.lines) > maxEventLines {
		e.lines = e.lines[len(e.lines)-maxEventLines:]
	}

	e.viewport.SetContent(strings.Join(e.lines, "\n"))
	if e.autoScroll {
		e.viewport.GotoBottom()
	}
}

// formatEvent renders one bus envelope as a log line, with a per-type
// one-line summary of the payload.
func formatEvent(msg EventMsg) string {
	ts := time.Now().Format("15:04:05")

	var env event.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return fmt.Sprintf("  %s %s  %s", ts, tui.Dimmed.Render(msg.Type), string(msg.Data))
	}

	typeStyle := eventTypeStyle(env.Type)
	summary := summarize(env)
	return fmt.Sprintf("  %s %s  %s  %s",
		ts,
		typeStyle.Render(fmt.Sprintf("%-22s", env.Type)),
		env.SessionID,
		tui.Dimmed.Render(summary),
	)
}

func summarize(env event.Envelope) string {
	switch env.Type {
	case event.AppointmentAvailable:
		if slot, err := event.DecodeAvailability(env); err == nil {
			return fmt.Sprintf("slot=%s time=%s", slot.SlotID, slot.SlotTime.Format(time.RFC3339))
		}
	case event.BookingResult:
		if res, err := event.DecodeBookingResult(env); err == nil {
			if res.Success {
				return fmt.Sprintf("booked confirmation=%s", res.ConfirmationNumber)
			}
			return "failed " + res.Message
		}
	case event.Heartbeat:
		if p, err := event.DecodeHeartbeat(env); err == nil {
			if p.Error != "" {
				return fmt.Sprintf("%s %s: %s", p.Agent, p.Status, p.Error)
			}
			return fmt.Sprintf("%s %s", p.Agent, p.Status)
		}
	case event.RuntimeAlert:
		if a, err := event.DecodeAlert(env); err == nil {
			return a.Message
		}
	}
	return string(env.Payload)
}

func eventTypeStyle(t event.Type) lipgloss.Style {
	switch t {
	case event.BookingResult:
		return tui.Success
	case event.RuntimeAlert:
		return tui.WarningStyle
	case event.Heartbeat:
		return tui.Dimmed
	default:
		return tui.Description
	}
}

func (e eventsModel) Update(msg tea.Msg) (eventsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "G":
			e.autoScroll = true
			e.viewport.GotoBottom()
			return e, nil
		case "g":
			e.autoScroll = false
			e.viewport.GotoTop()
			return e, nil
		case "j", "down", "k", "up":
			e.autoScroll = false
		}
	}

	var cmd tea.Cmd
	e.viewport, cmd = e.viewport.Update(msg)
	return e, cmd
}

func (e eventsModel) View() string {
	return e.viewport.View()
}
