package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentbot-ai/agentbot/internal/audit"
	"github.com/agentbot-ai/agentbot/internal/bus"
	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/lock"
	"github.com/agentbot-ai/agentbot/internal/planner"
	"github.com/agentbot-ai/agentbot/internal/provider"
	"github.com/agentbot-ai/agentbot/internal/store"
)

type bookerFixture struct {
	booker *Booker
	base   *Base
	bus    *bus.MemoryBus
	locks  *lock.MemoryManager
	pl     *planner.Planner
	audit  string
}

func newBookerFixture(t *testing.T, fake *provider.FakeBooking) *bookerFixture {
	t.Helper()
	b := bus.NewMemory()
	t.Cleanup(func() { b.Close() })
	locks := lock.NewMemory()
	pl := planner.New()

	auditPath := filepath.Join(t.TempDir(), "audit.log")
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	cfg := store.AgentConfig{SessionID: "s-1", PollInterval: store.MinPollInterval}
	session := &store.SessionRecord{
		SessionID: "s-1",
		Profile:   map[string]any{"name": "Test User"},
	}
	booker := NewBooker(cfg, session, fake, b, locks, pl, auditLog, 0, discard())
	base := NewBase(booker, discard())
	t.Cleanup(func() { base.Stop(context.Background()) })

	return &bookerFixture{booker: booker, base: base, bus: b, locks: locks, pl: pl, audit: auditPath}
}

func (f *bookerFixture) publishSlot(t *testing.T, slotID string) {
	t.Helper()
	env := event.NewAvailability(event.Availability{SessionID: "s-1", SlotID: slotID})
	if err := f.bus.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestBooker_BooksAvailableSlot(t *testing.T) {
	fake := &provider.FakeBooking{
		BookFunc: func(ctx context.Context, req event.BookingReq, s *store.SessionRecord) (event.BookingRes, error) {
			if req.UserProfile["name"] != "Test User" {
				t.Errorf("profile not forwarded: %+v", req.UserProfile)
			}
			return event.BookingRes{
				SessionID:          req.SessionID,
				Success:            true,
				ConfirmationNumber: "C-7",
				Slot:               req.Slot,
			}, nil
		},
	}
	f := newBookerFixture(t, fake)

	results, err := f.bus.Subscribe(event.BookingResult, bus.WithSession("s-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	f.pl.OnMonitoring("s-1")
	f.base.Start()
	waitFor(t, f.base.Running)
	f.publishSlot(t, "slot-1")

	select {
	case env := <-results.C():
		res, err := event.DecodeBookingResult(env)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !res.Success || res.ConfirmationNumber != "C-7" {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no booking result published")
	}

	waitFor(t, func() bool { return f.pl.StateOf("s-1") == planner.Booked })

	// The attempt was audited with the serialized result.
	entries, err := audit.ReadEntries(f.audit)
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Event != "booking_result" || entries[0].SessionID != "s-1" {
		t.Errorf("audit entries = %+v", entries)
	}

	// The lock was released after the attempt.
	lease, err := f.locks.Acquire(context.Background(), "book:s-1", time.Minute)
	if err != nil {
		t.Errorf("lock still held after booking: %v", err)
	} else {
		lease.Release(context.Background())
	}
}

func TestBooker_SkipsSlotWhenLockHeld(t *testing.T) {
	fake := &provider.FakeBooking{}
	f := newBookerFixture(t, fake)

	// Another worker owns the attempt.
	lease, err := f.locks.Acquire(context.Background(), "book:s-1", time.Minute)
	if err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}
	defer lease.Release(context.Background())

	f.base.Start()
	waitFor(t, f.base.Running)
	f.publishSlot(t, "slot-1")

	time.Sleep(100 * time.Millisecond)
	if fake.BookCalls() != 0 {
		t.Errorf("book calls = %d with lock held, want 0", fake.BookCalls())
	}
}

func TestBooker_ProviderErrorBecomesFailedResult(t *testing.T) {
	fake := &provider.FakeBooking{
		BookFunc: func(ctx context.Context, req event.BookingReq, s *store.SessionRecord) (event.BookingRes, error) {
			return event.BookingRes{}, errors.New("form submit blew up")
		},
	}
	f := newBookerFixture(t, fake)

	results, err := f.bus.Subscribe(event.BookingResult, bus.WithSession("s-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	f.pl.OnMonitoring("s-1")
	f.base.Start()
	waitFor(t, f.base.Running)
	f.publishSlot(t, "slot-1")

	select {
	case env := <-results.C():
		res, err := event.DecodeBookingResult(env)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.Success {
			t.Error("synthesized result must not claim success")
		}
		if res.Message != "form submit blew up" {
			t.Errorf("message = %q", res.Message)
		}
		if res.Slot.SlotID != "slot-1" {
			t.Errorf("slot = %+v", res.Slot)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result for failed attempt")
	}

	waitFor(t, func() bool { return f.pl.StateOf("s-1") == planner.Failed })
}

func TestBooker_ExitsOnBusClose(t *testing.T) {
	f := newBookerFixture(t, &provider.FakeBooking{})

	f.base.Start()
	waitFor(t, f.base.Running)

	if err := f.bus.Close(); err != nil {
		t.Fatalf("close bus: %v", err)
	}

	waitFor(t, func() bool { return !f.base.Running() })
}
