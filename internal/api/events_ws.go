package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/agentbot-ai/agentbot/internal/bus"
	"github.com/agentbot-ai/agentbot/internal/event"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamedTypes is every envelope type mirrored to websocket clients.
var streamedTypes = []event.Type{
	event.AppointmentAvailable,
	event.BookingRequest,
	event.BookingResult,
	event.Heartbeat,
	event.RuntimeAlert,
}

// handleEventsWS mirrors bus traffic to a websocket client, optionally
// filtered with ?session_id=. The connection closes when the bus does.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	var opts []bus.SubscribeOption
	if sid := r.URL.Query().Get("session_id"); sid != "" {
		opts = append(opts, bus.WithSession(sid))
	}
	opts = append(opts, bus.WithQueueSize(64))

	subs := make([]*bus.Subscription, 0, len(streamedTypes))
	for _, t := range streamedTypes {
		sub, err := s.bus.Subscribe(t, opts...)
		if err != nil {
			for _, done := range subs {
				done.Close()
			}
			s.writeError(w, http.StatusServiceUnavailable, "bus unavailable")
			return
		}
		subs = append(subs, sub)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		for _, sub := range subs {
			sub.Close()
		}
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	merged := make(chan event.Envelope, 64)
	stop := make(chan struct{})
	for _, sub := range subs {
		go func(sub *bus.Subscription) {
			for env := range sub.C() {
				select {
				case merged <- env:
				case <-stop:
					return
				}
			}
		}(sub)
	}

	// Reader goroutine: the client never sends data, but reads surface
	// close frames and dead connections.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(stop)
				return
			}
		}
	}()

	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
		conn.Close()
	}()

	for {
		select {
		case <-stop:
			return
		case env := <-merged:
			if err := conn.WriteJSON(env); err != nil {
				return
			}
			if event.IsBusClosed(env) {
				return
			}
		}
	}
}
