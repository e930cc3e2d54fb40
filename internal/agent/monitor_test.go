package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentbot-ai/agentbot/internal/bus"
	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/planner"
	"github.com/agentbot-ai/agentbot/internal/provider"
	"github.com/agentbot-ai/agentbot/internal/store"
)

func monitorFixture(t *testing.T, fake *provider.FakeAvailability) (*Monitor, *bus.MemoryBus, *planner.Planner) {
	t.Helper()
	b := bus.NewMemory()
	t.Cleanup(func() { b.Close() })
	pl := planner.New()

	cfg := store.AgentConfig{SessionID: "s-1", PollInterval: 20 * time.Millisecond}
	session := &store.SessionRecord{SessionID: "s-1"}
	return NewMonitor(cfg, session, fake, b, pl, discard()), b, pl
}

func TestMonitor_PublishesAvailability(t *testing.T) {
	slot := event.Availability{SessionID: "s-1", SlotID: "slot-1", SlotTime: time.Now().UTC()}
	fake := &provider.FakeAvailability{
		CheckFunc: func(ctx context.Context, s *store.SessionRecord) ([]event.Availability, error) {
			return []event.Availability{slot}, nil
		},
	}
	m, b, pl := monitorFixture(t, fake)

	avail, err := b.Subscribe(event.AppointmentAvailable, bus.WithSession("s-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	beats, err := b.Subscribe(event.Heartbeat, bus.WithSession("s-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	base := NewBase(m, discard())
	base.Start()
	defer base.Stop(context.Background())

	select {
	case env := <-avail.C():
		got, err := event.DecodeAvailability(env)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.SlotID != "slot-1" {
			t.Errorf("slot = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no availability published")
	}

	select {
	case env := <-beats.C():
		pulse, err := event.DecodeHeartbeat(env)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if pulse.Status != event.StatusOK || pulse.Agent != "monitor" {
			t.Errorf("pulse = %+v", pulse)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat published")
	}

	waitFor(t, func() bool { return pl.StateOf("s-1") == planner.Claiming })
	if fake.LoginCalls() != 1 {
		t.Errorf("login calls = %d, want 1", fake.LoginCalls())
	}
}

func TestMonitor_FirstPollIsImmediate(t *testing.T) {
	checked := make(chan struct{}, 1)
	fake := &provider.FakeAvailability{
		CheckFunc: func(ctx context.Context, s *store.SessionRecord) ([]event.Availability, error) {
			select {
			case checked <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}
	m, _, _ := monitorFixture(t, fake)
	// Long interval: only an immediate first poll can satisfy the wait.
	m.cfg.PollInterval = time.Hour

	base := NewBase(m, discard())
	base.Start()
	defer base.Stop(context.Background())

	select {
	case <-checked:
	case <-time.After(2 * time.Second):
		t.Fatal("first poll did not fire immediately")
	}
}

func TestMonitor_CheckErrorReportsErrorHeartbeatAndContinues(t *testing.T) {
	var calls int64
	fake := &provider.FakeAvailability{
		CheckFunc: func(ctx context.Context, s *store.SessionRecord) ([]event.Availability, error) {
			if atomic.AddInt64(&calls, 1) == 1 {
				return nil, errors.New("site down")
			}
			return nil, nil
		},
	}
	m, b, _ := monitorFixture(t, fake)

	beats, err := b.Subscribe(event.Heartbeat, bus.WithSession("s-1"), bus.WithQueueSize(16))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	base := NewBase(m, discard())
	base.Start()
	defer base.Stop(context.Background())

	// First heartbeat carries the failure.
	select {
	case env := <-beats.C():
		pulse, err := event.DecodeHeartbeat(env)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if pulse.Status != event.StatusError || pulse.Error == "" {
			t.Errorf("pulse = %+v, want error status", pulse)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat after failed poll")
	}

	// The loop survived: a later heartbeat reports ok.
	select {
	case env := <-beats.C():
		pulse, err := event.DecodeHeartbeat(env)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if pulse.Status != event.StatusOK {
			t.Errorf("pulse = %+v, want ok status", pulse)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not continue after poll error")
	}
}

func TestMonitor_LoginFailureAbortsWorker(t *testing.T) {
	fake := &provider.FakeAvailability{
		LoginFunc: func(ctx context.Context, s *store.SessionRecord) error {
			return errors.New("permanent rejection")
		},
	}
	m, _, _ := monitorFixture(t, fake)

	base := NewBase(m, discard())
	base.Start()

	waitFor(t, func() bool { return !base.Running() })
	if fake.CheckCalls() != 0 {
		t.Errorf("check calls = %d after failed login, want 0", fake.CheckCalls())
	}
}
