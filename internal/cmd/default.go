package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agentbot-ai/agentbot/internal/daemon"
	"github.com/agentbot-ai/agentbot/internal/wizard"
)

// runDefault implements the bare `agentbot` (no subcommand) behavior:
//   - daemon running? → attach the dashboard
//   - no config? → run init wizard
//   - config exists, daemon stopped? → run in the foreground
func runDefault(cmd *cobra.Command, args []string) error {
	// Only use smart default logic if running in a TTY.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return runRun(cmd, args)
	}

	pid, _ := daemon.ReadPID()
	if pid != 0 && daemon.IsRunning(pid) {
		return runAttach(cmd, args)
	}

	configPath := resolveConfigPath(cmd, args, "")
	if configPath == "" {
		configPath = wizard.DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		initCmd := newInitCmd()
		initCmd.SetContext(cmd.Context())
		return initCmd.RunE(initCmd, nil)
	}

	return runRun(cmd, args)
}
