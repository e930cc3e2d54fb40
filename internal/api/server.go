// Package api exposes the optional HTTP admin surface over the runtime.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/agentbot-ai/agentbot/internal/auth"
	"github.com/agentbot-ai/agentbot/internal/bus"
	"github.com/agentbot-ai/agentbot/internal/runtime"
	"github.com/agentbot-ai/agentbot/internal/store"
)

// Controller is the runtime surface the API drives.
type Controller interface {
	Start()
	Stop(ctx context.Context) error
	Started() bool
	Sessions() []runtime.SessionStatus
	Store() store.Store
}

// Server wraps the chi router serving the admin endpoints.
type Server struct {
	ctrl     Controller
	bus      bus.Bus
	provider auth.Provider
	login    auth.LoginProvider
	logger   *slog.Logger
	mux      *chi.Mux
}

// NewServer builds the admin router. A nil auth provider leaves every
// route unauthenticated.
func NewServer(ctrl Controller, b bus.Bus, provider auth.Provider, logger *slog.Logger) *Server {
	srv := &Server{
		ctrl:     ctrl,
		bus:      b,
		provider: provider,
		logger:   logger.With("component", "api"),
	}
	if lp, ok := provider.(auth.LoginProvider); ok {
		srv.login = lp
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)

	mux.Get("/healthz", srv.handleHealthz)
	mux.Get("/readyz", srv.handleReadyz)
	mux.Get("/health", srv.handleHealth)

	if srv.login != nil {
		mux.Post("/api/auth/login", srv.handleLogin)
	}

	mux.Group(func(r chi.Router) {
		if provider != nil {
			r.Use(srv.authMiddleware)
		}

		r.Get("/api/sessions", srv.handleListSessions)
		r.Post("/api/sessions", srv.handleUpsertSession)
		r.Delete("/api/sessions/{sessionID}", srv.handleDeleteSession)
		r.Post("/api/control/start", srv.handleStart)
		r.Post("/api/control/stop", srv.handleStop)
		r.Get("/ws/events", srv.handleEventsWS)
	})

	srv.mux = mux
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.provider.ValidateToken(r.Context(), token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// bearerToken pulls the token from the Authorization header, falling back
// to the token query parameter for websocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

type identityKey struct{}

func withIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Store().Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"started":  s.ctrl.Started(),
		"sessions": len(s.ctrl.Sessions()),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := s.login.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := s.ctrl.Store().List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := make(map[string]runtime.SessionStatus, len(records))
	for _, st := range s.ctrl.Sessions() {
		status[st.SessionID] = st
	}

	type sessionView struct {
		store.SessionRecord
		MonitorRunning bool   `json:"monitor_running"`
		BookerRunning  bool   `json:"booker_running"`
		State          string `json:"state"`
	}
	out := make([]sessionView, 0, len(records))
	for _, rec := range records {
		rec.Credentials = nil
		v := sessionView{SessionRecord: rec, State: "idle"}
		if st, ok := status[rec.SessionID]; ok {
			v.MonitorRunning = st.MonitorRunning
			v.BookerRunning = st.BookerRunning
			v.State = string(st.State)
		}
		out = append(out, v)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertSession(w http.ResponseWriter, r *http.Request) {
	var rec store.SessionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session record")
		return
	}
	if err := rec.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ctrl.Store().Upsert(r.Context(), &rec); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("session upserted via api", "session_id", rec.SessionID)
	s.writeJSON(w, http.StatusOK, map[string]string{"session_id": rec.SessionID})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.ctrl.Store().Delete(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("session deleted via api", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Start()
	s.writeJSON(w, http.StatusOK, map[string]bool{"started": s.ctrl.Started()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.ctrl.Stop(ctx); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"started": false})
}
