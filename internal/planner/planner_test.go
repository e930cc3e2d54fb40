package planner

import (
	"testing"

	"github.com/agentbot-ai/agentbot/internal/event"
)

func TestPlanner_HappyPath(t *testing.T) {
	p := New()
	const id = "s-1"

	if got := p.StateOf(id); got != Idle {
		t.Fatalf("initial state = %s, want idle", got)
	}

	p.OnMonitoring(id)
	if got := p.StateOf(id); got != Monitoring {
		t.Fatalf("state = %s, want monitoring", got)
	}

	slot := event.Availability{SessionID: id, SlotID: "slot-1"}
	p.OnAvailability(id, slot)
	if got := p.StateOf(id); got != Claiming {
		t.Fatalf("state = %s, want claiming", got)
	}

	p.OnBookingAttempt(id)
	if got := p.StateOf(id); got != Booking {
		t.Fatalf("state = %s, want booking", got)
	}

	p.OnBookingResult(id, event.BookingRes{SessionID: id, Success: true, ConfirmationNumber: "C-1"})
	if got := p.StateOf(id); got != Booked {
		t.Fatalf("state = %s, want booked", got)
	}

	snap := p.SnapshotOf(id)
	if snap.LastSlot == nil || snap.LastSlot.SlotID != "slot-1" {
		t.Errorf("last slot = %+v", snap.LastSlot)
	}
	if snap.LastResult == nil || snap.LastResult.ConfirmationNumber != "C-1" {
		t.Errorf("last result = %+v", snap.LastResult)
	}

	p.Reset(id)
	if got := p.StateOf(id); got != Idle {
		t.Fatalf("state after reset = %s, want idle", got)
	}
	if snap := p.SnapshotOf(id); snap.LastSlot != nil || snap.LastResult != nil {
		t.Errorf("reset should clear slot and result: %+v", snap)
	}
}

func TestPlanner_FailureAndRetry(t *testing.T) {
	p := New()
	const id = "s-1"

	p.OnMonitoring(id)
	p.OnAvailability(id, event.Availability{SessionID: id, SlotID: "slot-1"})
	p.OnBookingAttempt(id)
	p.OnBookingResult(id, event.BookingRes{SessionID: id, Success: false, Message: "slot taken"})
	if got := p.StateOf(id); got != Failed {
		t.Fatalf("state = %s, want failed", got)
	}

	// A fresh availability re-enters Claiming from Failed.
	p.OnAvailability(id, event.Availability{SessionID: id, SlotID: "slot-2"})
	if got := p.StateOf(id); got != Claiming {
		t.Fatalf("state = %s, want claiming after retry", got)
	}
}

func TestPlanner_EventsWithoutTransitionAreNoOps(t *testing.T) {
	p := New()
	const id = "s-1"

	// Result without a booking in flight changes nothing.
	p.OnBookingResult(id, event.BookingRes{SessionID: id, Success: true})
	if got := p.StateOf(id); got != Idle {
		t.Fatalf("state = %s, want idle", got)
	}

	// Availability in Idle is ignored (monitor has not reported yet).
	p.OnAvailability(id, event.Availability{SessionID: id, SlotID: "slot-1"})
	if got := p.StateOf(id); got != Idle {
		t.Fatalf("state = %s, want idle", got)
	}

	// Reset outside a terminal state is ignored.
	p.OnMonitoring(id)
	p.Reset(id)
	if got := p.StateOf(id); got != Monitoring {
		t.Fatalf("state = %s, want monitoring", got)
	}

	// Re-applying the same event is idempotent.
	p.OnAvailability(id, event.Availability{SessionID: id, SlotID: "slot-1"})
	p.OnAvailability(id, event.Availability{SessionID: id, SlotID: "slot-1"})
	if got := p.StateOf(id); got != Claiming {
		t.Fatalf("state = %s, want claiming", got)
	}
	p.OnBookingAttempt(id)
	p.OnBookingAttempt(id)
	if got := p.StateOf(id); got != Booking {
		t.Fatalf("state = %s, want booking", got)
	}
}

func TestPlanner_SessionsAreIndependent(t *testing.T) {
	p := New()

	p.OnMonitoring("s-1")
	p.OnMonitoring("s-2")
	p.OnAvailability("s-1", event.Availability{SessionID: "s-1", SlotID: "a"})

	if got := p.StateOf("s-1"); got != Claiming {
		t.Errorf("s-1 state = %s, want claiming", got)
	}
	if got := p.StateOf("s-2"); got != Monitoring {
		t.Errorf("s-2 state = %s, want monitoring", got)
	}
	if got := len(p.Snapshots()); got != 2 {
		t.Errorf("snapshot count = %d, want 2", got)
	}
}
