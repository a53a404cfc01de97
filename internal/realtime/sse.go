package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/google/uuid"
)

// UserResolver extracts the authenticated user from a request.
type UserResolver func(r *http.Request) (uuid.UUID, bool)

// SSEHandler streams a user's notifications as server-sent events.
type SSEHandler struct {
	hub       *Hub
	user      UserResolver
	heartbeat time.Duration
}

// NewSSEHandler constructs a stream handler.
func NewSSEHandler(hub *Hub, user UserResolver) *SSEHandler {
	return &SSEHandler{hub: hub, user: user, heartbeat: 25 * time.Second}
}

// ServeHTTP handles GET /api/v1/notifications/stream.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.hub == nil || h.user == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	userID, ok := h.user(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.hub.Subscribe(userID)
	defer h.hub.Unsubscribe(sub)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	done := r.Context().Done()
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: " + notifications.EventName + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
