// Package planner tracks the lifecycle state of each session as a small
// finite-state machine. The planner is observational only; the audit log
// and remote confirmation are the authoritative record of a booking.
package planner

import (
	"sync"

	"github.com/agentbot-ai/agentbot/internal/event"
)

// State is a session's lifecycle position.
type State string

const (
	Idle       State = "idle"
	Monitoring State = "monitoring"
	Claiming   State = "claiming"
	Booking    State = "booking"
	Booked     State = "booked"
	Failed     State = "failed"
)

// Snapshot is a read-only view of one session's machine.
type Snapshot struct {
	SessionID  string              `json:"session_id"`
	State      State               `json:"state"`
	LastSlot   *event.Availability `json:"last_slot,omitempty"`
	LastResult *event.BookingRes   `json:"last_result,omitempty"`
}

type machine struct {
	state      State
	lastSlot   *event.Availability
	lastResult *event.BookingRes
}

// Planner holds one machine per session. Events that have no transition
// from the current state leave the machine unchanged, so re-delivered
// events are harmless.
type Planner struct {
	mu       sync.Mutex
	sessions map[string]*machine
}

// New creates an empty planner.
func New() *Planner {
	return &Planner{sessions: make(map[string]*machine)}
}

func (p *Planner) machineFor(sessionID string) *machine {
	m, ok := p.sessions[sessionID]
	if !ok {
		m = &machine{state: Idle}
		p.sessions[sessionID] = m
	}
	return m
}

// OnMonitoring marks the session's monitor loop as running. Valid from any
// state.
func (p *Planner) OnMonitoring(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.machineFor(sessionID).state = Monitoring
}

// OnAvailability records an observed slot and moves to Claiming when the
// session is Monitoring, Claiming or Failed.
func (p *Planner) OnAvailability(sessionID string, slot event.Availability) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.machineFor(sessionID)
	switch m.state {
	case Monitoring, Claiming, Failed:
		m.state = Claiming
		m.lastSlot = &slot
	}
}

// OnBookingAttempt moves to Booking when the session is Claiming or
// Monitoring.
func (p *Planner) OnBookingAttempt(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.machineFor(sessionID)
	switch m.state {
	case Claiming, Monitoring:
		m.state = Booking
	}
}

// OnBookingResult resolves a Booking session to Booked or Failed and
// records the result.
func (p *Planner) OnBookingResult(sessionID string, res event.BookingRes) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.machineFor(sessionID)
	if m.state != Booking {
		return
	}
	m.lastResult = &res
	if res.Success {
		m.state = Booked
	} else {
		m.state = Failed
	}
}

// Reset returns a terminal session (Booked or Failed) to Idle.
func (p *Planner) Reset(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.machineFor(sessionID)
	switch m.state {
	case Booked, Failed:
		m.state = Idle
		m.lastSlot = nil
		m.lastResult = nil
	}
}

// StateOf returns the current state, Idle for unknown sessions.
func (p *Planner) StateOf(sessionID string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.sessions[sessionID]; ok {
		return m.state
	}
	return Idle
}

// SnapshotOf returns a copy of one session's machine.
func (p *Planner) SnapshotOf(sessionID string) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.sessions[sessionID]
	if !ok {
		return Snapshot{SessionID: sessionID, State: Idle}
	}
	return snapshotLocked(sessionID, m)
}

// Snapshots returns a copy of every tracked session.
func (p *Planner) Snapshots() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Snapshot, 0, len(p.sessions))
	for id, m := range p.sessions {
		out = append(out, snapshotLocked(id, m))
	}
	return out
}

func snapshotLocked(id string, m *machine) Snapshot {
	s := Snapshot{SessionID: id, State: m.state}
	if m.lastSlot != nil {
		slot := *m.lastSlot
		s.LastSlot = &slot
	}
	if m.lastResult != nil {
		res := *m.lastResult
		s.LastResult = &res
	}
	return s
}
