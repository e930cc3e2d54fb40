package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentbot-ai/agentbot/internal/api"
	"github.com/agentbot-ai/agentbot/internal/audit"
	"github.com/agentbot-ai/agentbot/internal/auth"
	"github.com/agentbot-ai/agentbot/internal/bus"
	"github.com/agentbot-ai/agentbot/internal/config"
	"github.com/agentbot-ai/agentbot/internal/daemon"
	"github.com/agentbot-ai/agentbot/internal/ipc"
	"github.com/agentbot-ai/agentbot/internal/lock"
	"github.com/agentbot-ai/agentbot/internal/planner"
	"github.com/agentbot-ai/agentbot/internal/provider"
	"github.com/agentbot-ai/agentbot/internal/runtime"
	"github.com/agentbot-ai/agentbot/internal/store"
	"github.com/agentbot-ai/agentbot/internal/wizard"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [config-file]",
		Short: "Run the booking runtime in the foreground",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args, wizard.DefaultConfigPath())

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("agentbot starting", "version", version, "config", configPath)

	if err := runWith(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runtime error", "error", err)
		return err
	}

	logger.Info("agentbot stopped")
	return nil
}

// runWith assembles the full runtime from config and blocks until ctx is
// cancelled.
func runWith(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	key, err := store.KeyFromEnv()
	if err != nil {
		return err
	}
	if key == nil {
		logger.Warn("session store encryption disabled", "env", store.EnvSessionKey)
	}

	st, err := store.Open(cfg.SessionStorePath, key)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer st.Close()

	auditLog, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	var b bus.Bus
	var locks lock.Manager
	switch cfg.Bus {
	case config.BusRedis:
		rb, err := bus.NewRedis(cfg.RedisURL, cfg.BusStream, logger)
		if err != nil {
			return fmt.Errorf("connect redis bus: %w", err)
		}
		b = rb
		rl, err := lock.NewRedis(cfg.RedisURL, "")
		if err != nil {
			return fmt.Errorf("connect redis locks: %w", err)
		}
		defer rl.Close()
		locks = rl
	default:
		b = bus.NewMemory()
		locks = lock.NewMemory()
	}

	rt := runtime.New(runtime.Options{
		Store:       st,
		Bus:         b,
		Locks:       locks,
		Planner:     planner.New(),
		Audit:       auditLog,
		Logger:      logger,
		DefaultPoll: cfg.PollInterval(),
		LockTTL:     cfg.LockTTL.Std(),
	})

	site := provider.NewHTTPSite(cfg.BaseURL, cfg.RequestTimeout.Std(), logger)
	mf, bf := rt.DefaultFactories(site, site)
	if err := rt.Bootstrap(ctx, mf, bf); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	sp := &stateProvider{rt: rt, cfg: cfg, startedAt: time.Now()}
	ipcSrv := ipc.NewServer(daemon.SocketPath(), sp, b, logger)
	if err := ipcSrv.Start(); err != nil {
		// The dashboard and status commands degrade gracefully without it.
		logger.Warn("ipc server unavailable", "error", err)
	} else {
		defer ipcSrv.Close()
	}

	var apiSrv *http.Server
	if cfg.API.Listen != "" {
		authProvider, err := auth.NewProvider(ctx, cfg.API.Auth)
		if err != nil {
			return fmt.Errorf("configure auth: %w", err)
		}
		if authProvider == nil {
			logger.Warn("admin api has no authentication", "listen", cfg.API.Listen)
		}
		apiSrv = &http.Server{
			Addr:    cfg.API.Listen,
			Handler: api.NewServer(rt, b, authProvider, logger),
		}
		go func() {
			logger.Info("admin api listening", "addr", cfg.API.Listen)
			if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin api failed", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiSrv.Shutdown(shutCtx)
		}()
	}

	return rt.RunForever(ctx, cfg.ShutdownGrace.Std())
}

// stateProvider adapts the runtime for the IPC status surface.
type stateProvider struct {
	rt        *runtime.Runtime
	cfg       *config.Config
	startedAt time.Time
}

func (p *stateProvider) Status() ipc.StatusResult {
	return ipc.StatusResult{
		Started:   p.rt.Started(),
		StartedAt: p.startedAt,
		Uptime:    time.Since(p.startedAt).Round(time.Second).String(),
		BaseURL:   p.cfg.BaseURL,
		Bus:       p.cfg.Bus,
		Sessions:  len(p.rt.Sessions()),
		Version:   version,
	}
}

func (p *stateProvider) Sessions() []ipc.SessionInfo {
	statuses := p.rt.Sessions()
	out := make([]ipc.SessionInfo, 0, len(statuses))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	records := map[string]store.SessionRecord{}
	if list, err := p.rt.Store().List(ctx); err == nil {
		for _, rec := range list {
			records[rec.SessionID] = rec
		}
	}

	for _, st := range statuses {
		info := ipc.SessionInfo{
			SessionID:      st.SessionID,
			MonitorRunning: st.MonitorRunning,
			BookerRunning:  st.BookerRunning,
			State:          string(st.State),
		}
		if rec, ok := records[st.SessionID]; ok {
			info.UserID = rec.UserID
			info.Email = rec.Email
		}
		out = append(out, info)
	}
	return out
}

// resolveConfigPath returns the config file path from (in priority order):
// 1. Positional argument
// 2. --config / -c flag
// 3. Default value
func resolveConfigPath(cmd *cobra.Command, args []string, defaultPath string) string {
	if len(args) > 0 {
		return args[0]
	}
	if f := cmd.Flag("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	// Check parent (root) persistent flags too.
	if f := cmd.Root().PersistentFlags().Lookup("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	return defaultPath
}
