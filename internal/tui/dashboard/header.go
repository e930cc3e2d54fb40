package dashboard

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/agentbot-ai/agentbot/internal/ipc"
	"github.com/agentbot-ai/agentbot/internal/tui"
)

type headerModel struct {
	status ipc.StatusResult
}

func newHeader(status ipc.StatusResult) headerModel {
	return headerModel{status: status}
}

func (h *headerModel) update(status ipc.StatusResult) {
	h.status = status
}

func (h headerModel) View(width int) string {
	left := tui.Title.Render("Agentbot")

	dot := tui.StatusDot(h.status.Started)
	label := tui.StatusText(h.status.Started)
	right := fmt.Sprintf("%s  %s %s", h.status.BaseURL, dot, label)

	info := fmt.Sprintf("  Bus: %s   Sessions: %d   Uptime: %s   Version: %s",
		h.status.Bus, h.status.Sessions, h.formatUptime(), h.status.Version)

	headerStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorPrimary).
		Width(width - 2).
		Padding(0, 1)

	firstRow := lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		lipgloss.NewStyle().Width(width-lipgloss.Width(left)-lipgloss.Width(right)-6).Render(""),
		right,
	)

	return headerStyle.Render(firstRow + "\n" + tui.Description.Render(info))
}

func (h headerModel) formatUptime() string {
	if h.status.StartedAt.IsZero() {
		return h.status.Uptime
	}
	d := time.Since(h.status.StartedAt)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
