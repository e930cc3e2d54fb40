package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/agentbot-ai/agentbot/internal/audit"
	"github.com/agentbot-ai/agentbot/internal/bus"
	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/lock"
	"github.com/agentbot-ai/agentbot/internal/planner"
	"github.com/agentbot-ai/agentbot/internal/provider"
	"github.com/agentbot-ai/agentbot/internal/store"
)

// DefaultLockTTL covers a full booking attempt against a slow site.
const DefaultLockTTL = 30 * time.Second

// Booker consumes availability envelopes for its session and attempts the
// reservation under the session's booking lock. A held lock means another
// worker owns the attempt; the envelope is skipped.
type Booker struct {
	cfg      store.AgentConfig
	session  *store.SessionRecord
	provider provider.BookingProvider
	bus      bus.Bus
	locks    lock.Manager
	planner  *planner.Planner
	audit    *audit.Logger
	logger   *slog.Logger
	lockTTL  time.Duration

	sub *bus.Subscription
}

// NewBooker builds a booking worker for one session. ttl <= 0 selects
// DefaultLockTTL.
func NewBooker(cfg store.AgentConfig, session *store.SessionRecord, p provider.BookingProvider, b bus.Bus, locks lock.Manager, pl *planner.Planner, auditLog *audit.Logger, ttl time.Duration, logger *slog.Logger) *Booker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Booker{
		cfg:      cfg,
		session:  session,
		provider: p,
		bus:      b,
		locks:    locks,
		planner:  pl,
		audit:    auditLog,
		logger:   logger.With("agent", "booker", "session_id", cfg.SessionID),
		lockTTL:  ttl,
	}
}

func (b *Booker) Name() string      { return "booker" }
func (b *Booker) SessionID() string { return b.cfg.SessionID }

func (b *Booker) Setup(ctx context.Context) error {
	sub, err := b.bus.Subscribe(event.AppointmentAvailable, bus.WithSession(b.cfg.SessionID))
	if err != nil {
		return err
	}
	b.sub = sub
	return nil
}

func (b *Booker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-b.sub.C():
			if !ok || event.IsBusClosed(env) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			slot, err := event.DecodeAvailability(env)
			if err != nil {
				b.logger.Warn("dropping malformed availability envelope", "envelope_id", env.ID, "error", err)
				continue
			}
			b.attempt(ctx, slot)
		}
	}
}

func (b *Booker) attempt(ctx context.Context, slot event.Availability) {
	b.planner.OnBookingAttempt(b.cfg.SessionID)

	lease, err := b.locks.Acquire(ctx, "book:"+b.cfg.SessionID, b.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			b.logger.Info("booking lock held elsewhere, skipping slot", "slot_id", slot.SlotID)
		} else if ctx.Err() == nil {
			b.logger.Error("booking lock acquisition failed", "slot_id", slot.SlotID, "error", err)
		}
		return
	}

	req := event.BookingReq{
		SessionID:   b.cfg.SessionID,
		Slot:        slot,
		UserProfile: b.session.Profile,
		Preferences: b.session.Preferences,
	}
	res, bookErr := b.provider.Book(ctx, req, b.session)
	if bookErr != nil {
		res = event.BookingRes{
			SessionID: b.cfg.SessionID,
			Success:   false,
			Message:   bookErr.Error(),
			Slot:      slot,
		}
	}

	// The lock is never held across the publish or audit write.
	if err := lease.Release(ctx); err != nil {
		b.logger.Warn("booking lock release failed", "error", err)
	}

	if err := b.bus.Publish(ctx, event.NewBookingResult(res)); err != nil && ctx.Err() == nil {
		b.logger.Warn("publish booking result failed", "error", err)
	}
	b.planner.OnBookingResult(b.cfg.SessionID, res)
	if err := b.audit.Log("booking_result", b.cfg.SessionID, res); err != nil {
		b.logger.Warn("audit write failed", "error", err)
	}

	if res.Success {
		b.logger.Info("booking succeeded", "slot_id", slot.SlotID, "confirmation", res.ConfirmationNumber)
	} else {
		b.logger.Info("booking failed", "slot_id", slot.SlotID, "message", res.Message)
	}
}

func (b *Booker) Teardown(ctx context.Context) error {
	if b.sub != nil {
		return b.sub.Close()
	}
	return nil
}

var _ Worker = (*Booker)(nil)
