package realtime

import (
	"log/slog"
	"net/http"
	"time"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WebSocketHandler pushes a user's notifications over a WebSocket.
type WebSocketHandler struct {
	hub      *Hub
	user     UserResolver
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler constructs a handler. checkOrigin may be nil to accept any origin.
func NewWebSocketHandler(hub *Hub, user UserResolver, checkOrigin func(*http.Request) bool, logger *slog.Logger) *WebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		hub:  hub,
		user: user,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// ServeHTTP handles GET /api/v1/notifications/ws.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.hub == nil || h.user == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	userID, ok := h.user(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := h.hub.Subscribe(userID)
	go h.readPump(conn, sub)
	h.writePump(conn, sub)
}

// readPump only services control frames; it unsubscribes when the peer goes away.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, sub *Subscription) {
	defer h.hub.Unsubscribe(sub)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "user_id", sub.UserID, "error", err)
			}
			return
		}
	}
}

func (h *WebSocketHandler) writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case event, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(Message{Type: notifications.EventName, Payload: event}); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}
		}
	}
}
