package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentbot-ai/agentbot/internal/bus"
	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/planner"
	"github.com/agentbot-ai/agentbot/internal/provider"
	"github.com/agentbot-ai/agentbot/internal/store"
)

// Monitor polls the availability provider on the session's interval and
// publishes a session-filtered envelope for every visible slot. Poll
// failures are reported in the heartbeat and never abort the loop.
type Monitor struct {
	cfg      store.AgentConfig
	session  *store.SessionRecord
	provider provider.AvailabilityProvider
	bus      bus.Bus
	planner  *planner.Planner
	logger   *slog.Logger
}

// NewMonitor builds a monitor worker for one session.
func NewMonitor(cfg store.AgentConfig, session *store.SessionRecord, p provider.AvailabilityProvider, b bus.Bus, pl *planner.Planner, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		session:  session,
		provider: p,
		bus:      b,
		planner:  pl,
		logger:   logger.With("agent", "monitor", "session_id", cfg.SessionID),
	}
}

func (m *Monitor) Name() string      { return "monitor" }
func (m *Monitor) SessionID() string { return m.cfg.SessionID }

// Setup performs the one-time login. It may block on interactive flows.
func (m *Monitor) Setup(ctx context.Context) error {
	return m.provider.EnsureLogin(ctx, m.session)
}

func (m *Monitor) Run(ctx context.Context) error {
	m.planner.OnMonitoring(m.cfg.SessionID)

	// First poll fires immediately; a fresh session should not wait a full
	// interval before its first look at the site.
	m.poll(ctx)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	slots, err := m.provider.Check(ctx, m.session)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("availability check failed", "error", err)
		}
		m.heartbeat(ctx, err)
		return
	}

	for _, slot := range slots {
		slot.SessionID = m.cfg.SessionID
		if err := m.bus.Publish(ctx, event.NewAvailability(slot)); err != nil {
			m.logger.Warn("publish availability failed", "slot_id", slot.SlotID, "error", err)
			continue
		}
		m.planner.OnAvailability(m.cfg.SessionID, slot)
		m.logger.Info("slot available", "slot_id", slot.SlotID, "slot_time", slot.SlotTime)
	}
	m.heartbeat(ctx, nil)
}

func (m *Monitor) heartbeat(ctx context.Context, pollErr error) {
	pulse := event.Pulse{
		Agent:     m.Name(),
		SessionID: m.cfg.SessionID,
		Status:    event.StatusOK,
		Timestamp: time.Now().UTC(),
	}
	if pollErr != nil {
		pulse.Status = event.StatusError
		pulse.Error = pollErr.Error()
	}
	if err := m.bus.Publish(ctx, event.NewHeartbeat(pulse)); err != nil && ctx.Err() == nil {
		m.logger.Debug("heartbeat publish failed", "error", err)
	}
}

func (m *Monitor) Teardown(ctx context.Context) error { return nil }

var _ Worker = (*Monitor)(nil)
