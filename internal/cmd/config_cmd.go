package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentbot-ai/agentbot/internal/config"
	"github.com/agentbot-ai/agentbot/internal/wizard"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View or edit runtime configuration",
		RunE:  runConfigShow, // default subcommand
	}
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigEditCmd())
	return configCmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the current configuration",
		RunE:  runConfigShow,
	}
}

func newConfigEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Open configuration in $EDITOR",
		RunE:  runConfigEdit,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, nil, wizard.DefaultConfigPath())
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Mask secrets for display.
	masked := *cfg
	masked.API.Auth.JWTSecret = maskSecret(cfg.API.Auth.JWTSecret)
	masked.API.Auth.AdminPasswordHash = maskSecret(cfg.API.Auth.AdminPasswordHash)
	masked.Email.Password = maskSecret(cfg.Email.Password)

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Config: %s\n\n", configPath)
	_, _ = fmt.Fprintln(os.Stdout, string(data))
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, nil, wizard.DefaultConfigPath())

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	return editorCmd.Run()
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
