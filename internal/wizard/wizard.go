// Package wizard provides the interactive first-run setup for agentbot.
package wizard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/agentbot-ai/agentbot/internal/config"
	"github.com/agentbot-ai/agentbot/internal/store"
	"github.com/agentbot-ai/agentbot/pkg/cli"
)

// DefaultConfigPath is where the wizard writes config when the user does
// not choose a path.
func DefaultConfigPath() string {
	return "agentbot.yaml"
}

// Wizard drives the interactive setup.
type Wizard struct {
	p *cli.Prompter
}

// New creates a Wizard using the given Prompter.
func New(p *cli.Prompter) *Wizard {
	return &Wizard{p: p}
}

// Run executes the interactive wizard: it writes the config file and
// optionally seeds the session store.
func (w *Wizard) Run(outputPath string, generateSystemd bool) error {
	fmt.Fprintln(w.p.Out)
	fmt.Fprintln(w.p.Out, "  Agentbot — Configuration Wizard")
	fmt.Fprintln(w.p.Out, strings.Repeat("─", 42))
	fmt.Fprintln(w.p.Out)

	cfg := &config.Config{}

	fmt.Fprintln(w.p.Out, "Booking Site")
	cfg.BaseURL = w.p.Ask("  Base URL", "https://booking.example.com")
	cfg.PollIntervalSeconds = w.p.AskInt("  Poll interval (seconds, minimum 5)", 30)
	fmt.Fprintln(w.p.Out)

	fmt.Fprintln(w.p.Out, "Message Bus")
	busChoice := w.p.Choose("  Select backend", []string{
		config.BusMemory + " — single process, no external services",
		config.BusRedis + " — redis streams, shared across processes",
	}, 0)
	if strings.HasPrefix(busChoice, config.BusRedis) {
		cfg.Bus = config.BusRedis
		cfg.RedisURL = w.p.Ask("  Redis URL", "redis://localhost:6379/0")
	} else {
		cfg.Bus = config.BusMemory
	}
	fmt.Fprintln(w.p.Out)

	fmt.Fprintln(w.p.Out, "Storage")
	cfg.SessionStorePath = w.p.Ask("  Session store path", "sessions.json")
	cfg.AuditLogPath = w.p.Ask("  Audit log path", "audit.log")
	cfg.LogLevel = w.p.Ask("  Log level (debug/info/warn/error)", "info")
	fmt.Fprintln(w.p.Out)

	fmt.Fprintln(w.p.Out, "Admin API")
	cfg.API.Listen = w.p.Ask("  Listen address (empty to disable)", "")
	fmt.Fprintln(w.p.Out)

	if outputPath == "" {
		outputPath = w.p.Ask("Config file output path", "./"+DefaultConfigPath())
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(w.p.Out, "\n  Config written to %s\n", outputPath)

	if err := w.seedSessions(cfg, outputPath); err != nil {
		return err
	}

	if generateSystemd {
		if err := w.writeSystemdUnit(outputPath); err != nil {
			return err
		}
	}

	fmt.Fprintln(w.p.Out)
	fmt.Fprintln(w.p.Out, "  Next steps:")
	fmt.Fprintf(w.p.Out, "    agentbot run %s\n\n", outputPath)
	return nil
}

// seedSessions interactively appends session records to the configured
// store. Relative store paths resolve against the config file's directory,
// matching how the runtime loads them.
func (w *Wizard) seedSessions(cfg *config.Config, configPath string) error {
	fmt.Fprintln(w.p.Out)
	if !w.p.Confirm("Add a session record now?", true) {
		return nil
	}

	storePath := cfg.SessionStorePath
	if !filepath.IsAbs(storePath) && !strings.Contains(storePath, "://") {
		storePath = filepath.Join(filepath.Dir(configPath), storePath)
	}

	key, err := store.KeyFromEnv()
	if err != nil {
		return err
	}
	if key == nil {
		fmt.Fprintf(w.p.Out, "  Note: %s is not set, credentials are stored in plaintext.\n", store.EnvSessionKey)
	}

	st, err := store.Open(storePath, key)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	for {
		rec := w.ConfigureSession()
		if err := st.Upsert(ctx, &rec); err != nil {
			return fmt.Errorf("save session %s: %w", rec.SessionID, err)
		}
		fmt.Fprintf(w.p.Out, "  Session %q saved to %s\n", rec.SessionID, storePath)

		if !w.p.Confirm("Add another session?", false) {
			return nil
		}
	}
}

// ConfigureSession prompts for one session record.
func (w *Wizard) ConfigureSession() store.SessionRecord {
	fmt.Fprintln(w.p.Out)
	defaultID := "session-" + uuid.New().String()[:8]

	rec := store.SessionRecord{
		SessionID: w.p.Ask("  Session ID", defaultID),
	}
	rec.UserID = w.p.Ask("  User ID", "")
	rec.Email = w.p.Ask("  Login email", "")

	password := w.p.AskPassword("  Site password")
	if password != "" {
		rec.Credentials = map[string]any{"password": password}
	}

	if tz := w.p.Ask("  Timezone (IANA name, empty for none)", ""); tz != "" {
		rec.Preferences = map[string]any{"timezone": tz}
	}
	if override := w.p.Ask("  Poll interval override (seconds, empty for default)", ""); override != "" {
		if n, err := strconv.Atoi(override); err == nil && n > 0 {
			if rec.Preferences == nil {
				rec.Preferences = map[string]any{}
			}
			rec.Preferences["poll_interval_seconds"] = n
		}
	}
	return rec
}

func (w *Wizard) writeSystemdUnit(configPath string) error {
	unitPath := w.p.Ask("  Systemd unit file path", "/etc/systemd/system/agentbot.service")

	absConfig := configPath
	if !filepath.IsAbs(configPath) {
		wd, err := os.Getwd()
		if err == nil {
			absConfig = filepath.Join(wd, configPath)
		}
	}

	unit := fmt.Sprintf(`[Unit]
Description=Agentbot Booking Runtime
After=network.target

[Service]
Type=simple
ExecStart=/usr/local/bin/agentbot run %s
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`, absConfig)

	if err := os.WriteFile(unitPath, []byte(unit), 0644); err != nil {
		return fmt.Errorf("write systemd unit: %w", err)
	}

	fmt.Fprintf(w.p.Out, "  Systemd unit written to %s\n", unitPath)
	fmt.Fprintln(w.p.Out, "  Enable with: sudo systemctl enable --now agentbot")
	return nil
}
