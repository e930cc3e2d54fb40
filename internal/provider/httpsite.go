package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/store"
)

const (
	loginAttempts    = 5
	loginBackoffBase = 2 * time.Second
	loginBackoffMax  = 30 * time.Second
)

// HTTPSite talks JSON to a booking site's API. One instance serves all
// sessions; every request carries the session id.
type HTTPSite struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPSite creates a provider for the given base URL.
func NewHTTPSite(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPSite {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSite{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "httpsite"),
	}
}

type loginRequest struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// EnsureLogin posts the session's credentials, retrying transient failures
// with jittered exponential backoff. A 4xx response is permanent.
func (p *HTTPSite) EnsureLogin(ctx context.Context, session *store.SessionRecord) error {
	creds := loginRequest{SessionID: session.SessionID}
	if v, ok := session.Credentials["username"].(string); ok {
		creds.Username = v
	}
	if v, ok := session.Credentials["password"].(string); ok {
		creds.Password = v
	}

	var lastErr error
	for attempt := 1; attempt <= loginAttempts; attempt++ {
		err := p.postJSON(ctx, "/api/login", creds, nil)
		if err == nil {
			return nil
		}
		var httpErr *statusError
		if errors.As(err, &httpErr) && httpErr.code >= 400 && httpErr.code < 500 {
			return fmt.Errorf("login rejected for session %s: %w", session.SessionID, err)
		}
		lastErr = err

		delay := loginBackoffBase << (attempt - 1)
		if delay > loginBackoffMax {
			delay = loginBackoffMax
		}
		delay += time.Duration(rand.Int63n(int64(delay) / 2))
		p.logger.Warn("login attempt failed",
			"session_id", session.SessionID, "attempt", attempt, "retry_in", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("login failed after %d attempts: %w", loginAttempts, lastErr)
}

type slotResponse struct {
	Slots []struct {
		SlotID   string         `json:"slot_id"`
		SlotTime time.Time      `json:"slot_time"`
		Location string         `json:"location"`
		Extra    map[string]any `json:"extra"`
	} `json:"slots"`
}

func (p *HTTPSite) Check(ctx context.Context, session *store.SessionRecord) ([]event.Availability, error) {
	var resp slotResponse
	path := "/api/slots?session_id=" + url.QueryEscape(session.SessionID)
	if err := p.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}

	slots := make([]event.Availability, 0, len(resp.Slots))
	for _, s := range resp.Slots {
		slots = append(slots, event.Availability{
			SessionID: session.SessionID,
			SlotID:    s.SlotID,
			SlotTime:  s.SlotTime,
			Location:  s.Location,
			Extra:     s.Extra,
		})
	}
	return slots, nil
}

type bookResponse struct {
	Success            bool           `json:"success"`
	ConfirmationNumber string         `json:"confirmation_number"`
	Message            string         `json:"message"`
	Raw                map[string]any `json:"raw"`
}

// Book submits the reservation. A timeout after the request went out is
// ambiguous: the slot may have been booked, so the result says so instead
// of surfacing an error the caller would retry.
func (p *HTTPSite) Book(ctx context.Context, req event.BookingReq, session *store.SessionRecord) (event.BookingRes, error) {
	body := map[string]any{
		"session_id":   req.SessionID,
		"slot_id":      req.Slot.SlotID,
		"slot_time":    req.Slot.SlotTime,
		"user_profile": req.UserProfile,
		"preferences":  req.Preferences,
	}

	var resp bookResponse
	err := p.postJSON(ctx, "/api/book", body, &resp)
	if err != nil {
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return event.BookingRes{
				SessionID: req.SessionID,
				Success:   false,
				Message:   "booking request timed out after submit; slot possibly booked, verify manually",
				Slot:      req.Slot,
			}, nil
		}
		return event.BookingRes{}, fmt.Errorf("book slot %s: %w", req.Slot.SlotID, err)
	}

	return event.BookingRes{
		SessionID:          req.SessionID,
		Success:            resp.Success,
		ConfirmationNumber: resp.ConfirmationNumber,
		Message:            resp.Message,
		Slot:               req.Slot,
		RawResponse:        resp.Raw,
	}, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func (p *HTTPSite) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	return p.do(req, out)
}

func (p *HTTPSite) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *HTTPSite) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ AvailabilityProvider = (*HTTPSite)(nil)
	_ BookingProvider      = (*HTTPSite)(nil)
)
