package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentbot-ai/agentbot/internal/config"
	"github.com/agentbot-ai/agentbot/internal/store"
	"github.com/agentbot-ai/agentbot/internal/wizard"
	"github.com/agentbot-ai/agentbot/pkg/cli"
)

func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage session records",
		RunE:  runSessionsList, // default subcommand
	}
	sessionsCmd.AddCommand(newSessionsListCmd())
	sessionsCmd.AddCommand(newSessionsAddCmd())
	sessionsCmd.AddCommand(newSessionsRemoveCmd())
	return sessionsCmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List session records",
		RunE:  runSessionsList,
	}
}

func newSessionsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Add a session record interactively",
		RunE:  runSessionsAdd,
	}
}

func newSessionsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <session-id>",
		Short: "Remove a session record by ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsRemove,
	}
}

// openStore opens the session store named in the config. The caller closes it.
func openStore(cmd *cobra.Command) (store.Store, error) {
	configPath := resolveConfigPath(cmd, nil, wizard.DefaultConfigPath())
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	key, err := store.KeyFromEnv()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.SessionStorePath, key)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return st, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No sessions configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SESSION\tUSER\tEMAIL\tCREATED")
	for _, rec := range records {
		created := "-"
		if !rec.CreatedAt.IsZero() {
			created = rec.CreatedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.SessionID, rec.UserID, rec.Email, created)
	}
	return w.Flush()
}

func runSessionsAdd(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	w := wizard.New(cli.DefaultPrompter())
	rec := w.ConfigureSession()
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := st.Upsert(cmd.Context(), &rec); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Session %q added\n", rec.SessionID)
	return nil
}

func runSessionsRemove(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	id := args[0]
	rec, err := st.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("session %q not found", id)
	}
	if err := st.Delete(cmd.Context(), id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Session %q removed\n", id)
	return nil
}
