// Package provider defines the contracts for external availability and
// booking backends, plus an HTTP implementation.
package provider

import (
	"context"

	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/store"
)

// AvailabilityProvider watches the remote site for open slots.
type AvailabilityProvider interface {
	// EnsureLogin runs once before the poll loop. It may block on
	// interactive flows (CAPTCHA, OTP) and returns an error only on
	// permanent failure.
	EnsureLogin(ctx context.Context, session *store.SessionRecord) error

	// Check returns the slots currently visible for the session. Every
	// returned slot carries the session's id.
	Check(ctx context.Context, session *store.SessionRecord) ([]event.Availability, error)
}

// BookingProvider submits a reservation attempt.
type BookingProvider interface {
	// Book attempts the reservation. On ambiguous failure (timeout after
	// submit) it returns success=false with a message indicating the
	// possibly-booked state rather than an error.
	Book(ctx context.Context, req event.BookingReq, session *store.SessionRecord) (event.BookingRes, error)
}
