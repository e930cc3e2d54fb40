// Package runtime bootstraps and supervises one monitor+booker pair per
// session record.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentbot-ai/agentbot/internal/agent"
	"github.com/agentbot-ai/agentbot/internal/audit"
	"github.com/agentbot-ai/agentbot/internal/bus"
	"github.com/agentbot-ai/agentbot/internal/lock"
	"github.com/agentbot-ai/agentbot/internal/planner"
	"github.com/agentbot-ai/agentbot/internal/provider"
	"github.com/agentbot-ai/agentbot/internal/store"
)

// MonitorFactory builds the monitor worker for one session.
type MonitorFactory func(cfg store.AgentConfig, rec *store.SessionRecord) (agent.Worker, error)

// BookerFactory builds the booking worker for one session.
type BookerFactory func(cfg store.AgentConfig, rec *store.SessionRecord) (agent.Worker, error)

// Options wires the runtime's collaborators.
type Options struct {
	Store       store.Store
	Bus         bus.Bus
	Locks       lock.Manager
	Planner     *planner.Planner
	Audit       *audit.Logger
	Logger      *slog.Logger
	DefaultPoll time.Duration
	LockTTL     time.Duration
}

type bundle struct {
	sessionID string
	monitor   *agent.Base
	booker    *agent.Base
}

// Runtime owns the agent bundles. Workers are independent; a failure in
// one session never affects another.
type Runtime struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	bundles map[string]*bundle
	started bool
	stopped bool
}

// New creates a runtime. Bootstrap must run before Start.
func New(opts Options) *Runtime {
	return &Runtime{
		opts:    opts,
		logger:  opts.Logger.With("component", "runtime"),
		bundles: make(map[string]*bundle),
	}
}

// DefaultFactories builds monitors and bookers from the given providers.
func (r *Runtime) DefaultFactories(avail provider.AvailabilityProvider, booking provider.BookingProvider) (MonitorFactory, BookerFactory) {
	mf := func(cfg store.AgentConfig, rec *store.SessionRecord) (agent.Worker, error) {
		return agent.NewMonitor(cfg, rec, avail, r.opts.Bus, r.opts.Planner, r.opts.Logger), nil
	}
	bf := func(cfg store.AgentConfig, rec *store.SessionRecord) (agent.Worker, error) {
		return agent.NewBooker(cfg, rec, booking, r.opts.Bus, r.opts.Locks, r.opts.Planner, r.opts.Audit, r.opts.LockTTL, r.opts.Logger), nil
	}
	return mf, bf
}

// Bootstrap reads every session record and constructs its agent pair. A
// factory failure skips that session with a logged error; the remaining
// sessions still come up.
func (r *Runtime) Bootstrap(ctx context.Context, mf MonitorFactory, bf BookerFactory) error {
	records, err := r.opts.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range records {
		rec := records[i]
		cfg := rec.DeriveAgentConfig(r.opts.DefaultPoll)

		monitor, err := mf(cfg, &rec)
		if err != nil {
			r.logger.Error("monitor factory failed, skipping session", "session_id", rec.SessionID, "error", err)
			continue
		}
		booker, err := bf(cfg, &rec)
		if err != nil {
			r.logger.Error("booker factory failed, skipping session", "session_id", rec.SessionID, "error", err)
			continue
		}

		r.bundles[rec.SessionID] = &bundle{
			sessionID: rec.SessionID,
			monitor:   agent.NewBase(monitor, r.opts.Logger),
			booker:    agent.NewBase(booker, r.opts.Logger),
		}
	}

	r.logger.Info("runtime bootstrapped", "sessions", len(r.bundles), "records", len(records))
	return nil
}

// Start launches every bundle. Idempotent.
func (r *Runtime) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	// Bookers subscribe first so a monitor's immediate first poll cannot
	// publish into a void.
	for _, b := range r.bundles {
		b.booker.Start()
	}
	for _, b := range r.bundles {
		<-b.booker.Ready()
	}
	for _, b := range r.bundles {
		b.monitor.Start()
	}
	r.logger.Info("runtime started", "sessions", len(r.bundles))
}

// Stop cancels every worker in parallel, waits for them, and closes the
// bus. Individual worker errors are collected, not propagated mid-stop.
// Safe to call more than once.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	bundles := make([]*bundle, 0, len(r.bundles))
	for _, b := range r.bundles {
		bundles = append(bundles, b)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(bundles)*2)
	for _, b := range bundles {
		for _, a := range []*agent.Base{b.monitor, b.booker} {
			wg.Add(1)
			go func(a *agent.Base) {
				defer wg.Done()
				if err := a.Stop(ctx); err != nil {
					errCh <- err
				}
			}(a)
		}
	}
	wg.Wait()
	close(errCh)

	errs := make([]error, 0, len(bundles)*2)
	for err := range errCh {
		errs = append(errs, err)
	}
	if err := r.opts.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}

	r.logger.Info("runtime stopped", "errors", len(errs))
	return errors.Join(errs...)
}

// RunForever starts the runtime and blocks until ctx is cancelled, then
// stops with the given grace period.
func (r *Runtime) RunForever(ctx context.Context, grace time.Duration) error {
	r.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return r.Stop(stopCtx)
}

// SessionStatus is the supervision view of one bundle.
type SessionStatus struct {
	SessionID      string        `json:"session_id"`
	MonitorRunning bool          `json:"monitor_running"`
	BookerRunning  bool          `json:"booker_running"`
	State          planner.State `json:"state"`
}

// Sessions reports every bundle's status, ordered by session id.
func (r *Runtime) Sessions() []SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SessionStatus, 0, len(r.bundles))
	for id, b := range r.bundles {
		out = append(out, SessionStatus{
			SessionID:      id,
			MonitorRunning: b.monitor.Running(),
			BookerRunning:  b.booker.Running(),
			State:          r.opts.Planner.StateOf(id),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Started reports whether Start has run.
func (r *Runtime) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started && !r.stopped
}

// Planner exposes the shared planner for read-only callers.
func (r *Runtime) Planner() *planner.Planner { return r.opts.Planner }

// Store exposes the session store for the admin surface.
func (r *Runtime) Store() store.Store { return r.opts.Store }
