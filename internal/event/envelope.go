// Package event defines the typed envelopes transported on the message bus.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type discriminates envelope payloads.
type Type string

const (
	AppointmentAvailable Type = "appointment.available"
	BookingRequest       Type = "booking.request"
	BookingResult        Type = "booking.result"
	Heartbeat            Type = "agent.heartbeat"
	RuntimeAlert         Type = "runtime.alert"
)

// Broadcast is the session id that matches every session filter.
const Broadcast = "*"

// Envelope is the unit transported on the bus. Envelopes are immutable once
// published; the payload is decoded by the accessor matching Type.
type Envelope struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Type      Type            `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
	TraceID   string          `json:"trace_id,omitempty"`
}

// Availability is the payload of an appointment.available envelope.
type Availability struct {
	SessionID string         `json:"session_id"`
	SlotID    string         `json:"slot_id"`
	SlotTime  time.Time      `json:"slot_time"`
	Location  string         `json:"location,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// BookingReq is the payload of a booking.request envelope.
type BookingReq struct {
	SessionID   string         `json:"session_id"`
	Slot        Availability   `json:"slot"`
	UserProfile map[string]any `json:"user_profile,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// BookingRes is the payload of a booking.result envelope.
type BookingRes struct {
	SessionID          string         `json:"session_id"`
	Success            bool           `json:"success"`
	ConfirmationNumber string         `json:"confirmation_number,omitempty"`
	Message            string         `json:"message,omitempty"`
	Slot               Availability   `json:"slot"`
	RawResponse        map[string]any `json:"raw_response,omitempty"`
}

// HeartbeatStatus is the health reported in a heartbeat payload.
type HeartbeatStatus string

const (
	StatusOK    HeartbeatStatus = "ok"
	StatusError HeartbeatStatus = "error"
)

// Pulse is the payload of an agent.heartbeat envelope.
type Pulse struct {
	Agent     string          `json:"agent"`
	SessionID string          `json:"session_id"`
	Status    HeartbeatStatus `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
}

// Alert is the payload of a runtime.alert envelope. BusClosed marks the
// sentinel delivered to every subscription when the bus shuts down.
type Alert struct {
	Message   string `json:"message,omitempty"`
	BusClosed bool   `json:"bus_closed,omitempty"`
}

// New wraps a payload in a fresh envelope. The payload must be
// JSON-marshalable; constructors below are preferred.
func New(t Type, sessionID string, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payload types are plain structs/maps; a marshal failure is a
		// programming error.
		panic(fmt.Sprintf("event: marshal %s payload: %v", t, err))
	}
	return Envelope{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Type:      t,
		SessionID: sessionID,
		Payload:   data,
	}
}

// NewAvailability builds an appointment.available envelope routed to the
// slot's session.
func NewAvailability(slot Availability) Envelope {
	return New(AppointmentAvailable, slot.SessionID, slot)
}

// NewBookingResult builds a booking.result envelope.
func NewBookingResult(res BookingRes) Envelope {
	return New(BookingResult, res.SessionID, res)
}

// NewHeartbeat builds an agent.heartbeat envelope.
func NewHeartbeat(p Pulse) Envelope {
	return New(Heartbeat, p.SessionID, p)
}

// NewAlert builds a broadcast runtime.alert envelope.
func NewAlert(a Alert) Envelope {
	return New(RuntimeAlert, Broadcast, a)
}

func decode(env Envelope, want Type, v any) error {
	if env.Type != want {
		return fmt.Errorf("event: envelope is %s, not %s", env.Type, want)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("event: decode %s payload: %w", want, err)
	}
	return nil
}

// DecodeAvailability extracts the slot from an appointment.available envelope.
func DecodeAvailability(env Envelope) (Availability, error) {
	var a Availability
	err := decode(env, AppointmentAvailable, &a)
	return a, err
}

// DecodeBookingResult extracts the result from a booking.result envelope.
func DecodeBookingResult(env Envelope) (BookingRes, error) {
	var r BookingRes
	err := decode(env, BookingResult, &r)
	return r, err
}

// DecodeHeartbeat extracts the pulse from an agent.heartbeat envelope.
func DecodeHeartbeat(env Envelope) (Pulse, error) {
	var p Pulse
	err := decode(env, Heartbeat, &p)
	return p, err
}

// DecodeAlert extracts the alert from a runtime.alert envelope.
func DecodeAlert(env Envelope) (Alert, error) {
	var a Alert
	err := decode(env, RuntimeAlert, &a)
	return a, err
}

// IsBusClosed reports whether env is the bus shutdown sentinel.
func IsBusClosed(env Envelope) bool {
	if env.Type != RuntimeAlert {
		return false
	}
	a, err := DecodeAlert(env)
	return err == nil && a.BusClosed
}
