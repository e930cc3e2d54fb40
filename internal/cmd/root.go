// Package cmd is the agentbot command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for agentbot.
// When invoked without a subcommand in a TTY, it uses smart default logic:
// daemon running → attach, no config → init wizard, otherwise → run.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "agentbot",
		Short: "Agentbot — appointment booking automation runtime",
		Long:  "Agentbot watches booking sites for appointment availability and books matching slots automatically.",
		// Bare invocation uses smart default logic.
		RunE:          runDefault,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newAttachCmd())

	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	return root
}

// Execute runs the root command.
func Execute(v string) error {
	return NewRootCmd(v).Execute()
}
