package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentbot-ai/agentbot/internal/audit"
	"github.com/agentbot-ai/agentbot/internal/auth"
	"github.com/agentbot-ai/agentbot/internal/bus"
	"github.com/agentbot-ai/agentbot/internal/config"
	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/lock"
	"github.com/agentbot-ai/agentbot/internal/planner"
	"github.com/agentbot-ai/agentbot/internal/runtime"
	"github.com/agentbot-ai/agentbot/internal/store"
)

func newTestRuntime(t *testing.T) (*runtime.Runtime, *bus.MemoryBus) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewFile(filepath.Join(dir, "sessions.json"), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	auditLog, err := audit.Open(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	b := bus.NewMemory()
	rt := runtime.New(runtime.Options{
		Store:       st,
		Bus:         b,
		Locks:       lock.NewMemory(),
		Planner:     planner.New(),
		Audit:       auditLog,
		Logger:      slog.New(slog.DiscardHandler),
		DefaultPoll: store.MinPollInterval,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rt.Stop(ctx)
	})
	return rt, b
}

func newTestServer(t *testing.T, provider auth.Provider) (*httptest.Server, *runtime.Runtime, *bus.MemoryBus) {
	t.Helper()
	rt, b := newTestRuntime(t)
	srv := httptest.NewServer(NewServer(rt, b, provider, slog.New(slog.DiscardHandler)))
	t.Cleanup(srv.Close)
	return srv, rt, b
}

func TestServer_Health(t *testing.T) {
	srv, rt, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Started  bool `json:"started"`
		Sessions int  `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Started {
		t.Error("started = true before Start")
	}

	rt.Start()
	resp2, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if err := json.NewDecoder(resp2.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Started {
		t.Error("started = false after Start")
	}
}

func TestServer_SessionCRUD(t *testing.T) {
	srv, rt, _ := newTestServer(t, nil)

	rec := map[string]any{
		"session_id":  "s-1",
		"user_id":     "u-1",
		"email":       "user@example.com",
		"credentials": map[string]any{"password": "pw"},
	}
	body, _ := json.Marshal(rec)
	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upsert status = %d", resp.StatusCode)
	}

	got, err := rt.Store().Get(context.Background(), "s-1")
	if err != nil || got == nil {
		t.Fatalf("stored record = %v, %v", got, err)
	}

	resp, err = http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var listed []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 || listed[0]["session_id"] != "s-1" {
		t.Errorf("listed = %+v", listed)
	}
	// Credentials never leave the process via the list endpoint.
	if _, ok := listed[0]["credentials"]; ok {
		t.Error("credentials leaked in session list")
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/s-1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if got, _ := rt.Store().Get(context.Background(), "s-1"); got != nil {
		t.Errorf("record survived delete: %+v", got)
	}
}

func TestServer_UpsertRejectsInvalidRecord(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/sessions", "application/json",
		strings.NewReader(`{"user_id":"u-1"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_ControlStartStop(t *testing.T) {
	srv, rt, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/control/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resp.Body.Close()
	if !rt.Started() {
		t.Error("runtime not started via api")
	}

	resp, err = http.Post(srv.URL+"/api/control/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	resp.Body.Close()
	if rt.Started() {
		t.Error("runtime still started after api stop")
	}
}

func TestServer_AuthRequired(t *testing.T) {
	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	provider := auth.NewBuiltin(config.AuthConfig{
		Mode:              "builtin",
		JWTSecret:         "secret",
		JWTExpiry:         config.Duration(time.Hour),
		AdminUser:         "admin",
		AdminPasswordHash: hash,
	})
	srv, _, _ := newTestServer(t, provider)

	// Unauthenticated API call rejected; health stays open.
	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	// Login, then retry with the token.
	resp, err = http.Post(srv.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"username":"admin","password":"pw"}`))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	var loginBody struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginBody); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	resp.Body.Close()
	if loginBody.Token == "" {
		t.Fatal("empty token from login")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+loginBody.Token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authed status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_EventsWebsocket(t *testing.T) {
	srv, _, b := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?session_id=s-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	env := event.NewAvailability(event.Availability{SessionID: "s-1", SlotID: "slot-1"})
	if err := b.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got event.Envelope
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != env.ID || got.Type != event.AppointmentAvailable {
		t.Errorf("envelope = %+v", got)
	}
}
