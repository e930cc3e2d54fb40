package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/store"
)

func testSession() *store.SessionRecord {
	return &store.SessionRecord{
		SessionID:   "s-1",
		Credentials: map[string]any{"username": "user", "password": "pw"},
	}
}

func TestHTTPSite_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/slots" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("session_id"); got != "s-1" {
			t.Errorf("session_id = %s", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"slots": []map[string]any{
				{"slot_id": "slot-1", "slot_time": "2030-01-01T10:00:00Z", "location": "downtown"},
			},
		})
	}))
	defer srv.Close()

	p := NewHTTPSite(srv.URL, 0, slog.New(slog.DiscardHandler))
	slots, err := p.Check(context.Background(), testSession())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("got %d slots, want 1", len(slots))
	}
	if slots[0].SessionID != "s-1" || slots[0].SlotID != "slot-1" || slots[0].Location != "downtown" {
		t.Errorf("slot = %+v", slots[0])
	}
}

func TestHTTPSite_EnsureLogin_RetriesTransientFailures(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPSite(srv.URL, 0, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.EnsureLogin(ctx, testSession()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Errorf("login attempts = %d, want 3", got)
	}
}

func TestHTTPSite_EnsureLogin_RejectionIsPermanent(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewHTTPSite(srv.URL, 0, slog.New(slog.DiscardHandler))
	err := p.EnsureLogin(context.Background(), testSession())
	if err == nil {
		t.Fatal("expected error for rejected credentials")
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("login attempts = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestHTTPSite_Book(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["slot_id"] != "slot-1" {
			t.Errorf("slot_id = %v", body["slot_id"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":             true,
			"confirmation_number": "C-42",
		})
	}))
	defer srv.Close()

	p := NewHTTPSite(srv.URL, 0, slog.New(slog.DiscardHandler))
	res, err := p.Book(context.Background(), event.BookingReq{
		SessionID: "s-1",
		Slot:      event.Availability{SessionID: "s-1", SlotID: "slot-1"},
	}, testSession())
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !res.Success || res.ConfirmationNumber != "C-42" {
		t.Errorf("result = %+v", res)
	}
	if res.Slot.SlotID != "slot-1" {
		t.Errorf("result slot = %+v", res.Slot)
	}
}

func TestHTTPSite_Book_TimeoutIsPossiblyBooked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	p := NewHTTPSite(srv.URL, 50*time.Millisecond, slog.New(slog.DiscardHandler))
	res, err := p.Book(context.Background(), event.BookingReq{
		SessionID: "s-1",
		Slot:      event.Availability{SessionID: "s-1", SlotID: "slot-1"},
	}, testSession())
	if err != nil {
		t.Fatalf("ambiguous timeout should not be an error: %v", err)
	}
	if res.Success {
		t.Error("timeout result must not claim success")
	}
	if !strings.Contains(res.Message, "possibly booked") {
		t.Errorf("message = %q, want possibly-booked note", res.Message)
	}
}
