package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentbot-ai/agentbot/internal/daemon"
	"github.com/agentbot-ai/agentbot/internal/tui/dashboard"
)

func newAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach",
		Short: "Attach the dashboard to a running daemon",
		RunE:  runAttach,
	}
}

func runAttach(cmd *cobra.Command, args []string) error {
	if err := dashboard.Attach(daemon.SocketPath()); err != nil {
		return fmt.Errorf("attach failed: %w", err)
	}

	fmt.Println("Agentbot continues in the background.")
	fmt.Println("Re-attach: agentbot attach  |  Stop: agentbot stop")
	return nil
}
