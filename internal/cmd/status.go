package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentbot-ai/agentbot/internal/config"
	"github.com/agentbot-ai/agentbot/internal/daemon"
	"github.com/agentbot-ai/agentbot/internal/ipc"
	"github.com/agentbot-ai/agentbot/internal/wizard"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show runtime status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	// Try IPC first for live status.
	if client, err := ipc.Dial(daemon.SocketPath()); err == nil {
		defer func() { _ = client.Close() }()

		status, err := client.Status()
		if err == nil {
			state := "stopped"
			if status.Started {
				state = "running"
			}
			_, _ = fmt.Fprintf(os.Stdout, "Status:   %s\n", state)
			_, _ = fmt.Fprintf(os.Stdout, "Site:     %s\n", status.BaseURL)
			_, _ = fmt.Fprintf(os.Stdout, "Bus:      %s\n", status.Bus)
			_, _ = fmt.Fprintf(os.Stdout, "Uptime:   %s\n", status.Uptime)
			_, _ = fmt.Fprintf(os.Stdout, "Sessions: %d\n", status.Sessions)
			_, _ = fmt.Fprintf(os.Stdout, "Version:  %s\n", status.Version)

			if sessions, err := client.Sessions(); err == nil && len(sessions) > 0 {
				_, _ = fmt.Fprintln(os.Stdout)
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "SESSION\tUSER\tMONITOR\tBOOKER\tSTATE")
				for _, s := range sessions {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%s\n",
						s.SessionID, s.UserID, s.MonitorRunning, s.BookerRunning, s.State)
				}
				_ = w.Flush()
			}
			return nil
		}
	}

	// Fall back to PID + config.
	pid, _ := daemon.ReadPID()

	if pid == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "Status:  stopped (no PID file)")
		return nil
	}

	if !daemon.IsRunning(pid) {
		_, _ = fmt.Fprintf(os.Stdout, "Status:  stopped (stale PID %d)\n", pid)
		return nil
	}

	_, _ = fmt.Fprintf(os.Stdout, "Status:  running\n")
	_, _ = fmt.Fprintf(os.Stdout, "PID:     %d\n", pid)
	_, _ = fmt.Fprintf(os.Stdout, "Logs:    %s\n", daemon.LogPath())

	configPath := resolveConfigPath(cmd, nil, wizard.DefaultConfigPath())
	cfg, err := config.Load(configPath)
	if err == nil {
		_, _ = fmt.Fprintf(os.Stdout, "Config:  %s\n", configPath)
		_, _ = fmt.Fprintf(os.Stdout, "Site:    %s\n", cfg.BaseURL)
		_, _ = fmt.Fprintf(os.Stdout, "Bus:     %s\n", cfg.Bus)
	}

	return nil
}
