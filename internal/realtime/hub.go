package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/google/uuid"
)

const defaultBuffer = 16

// Message is the frame written to WebSocket clients.
type Message struct {
	Type    string              `json:"type"`
	Payload notifications.Event `json:"payload"`
}

// Subscription receives events addressed to one user.
type Subscription struct {
	UserID  uuid.UUID
	ch      chan notifications.Event
	dropped atomic.Int64
	once    sync.Once
}

// Events is closed when the subscription is removed.
func (s *Subscription) Events() <-chan notifications.Event { return s.ch }

// Dropped counts events discarded because the subscriber was slow.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Hub routes events to the local subscribers of each user.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub constructs a hub. buffer is the per-subscriber queue length.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for userID.
func (h *Hub) Subscribe(userID uuid.UUID) *Subscription {
	sub := &Subscription{UserID: userID, ch: make(chan notifications.Event, h.buffer)}
	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if set, ok := h.subs[sub.UserID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.ch) })
}

// Deliver sends event to every subscriber of userID without blocking and
// returns how many received it.
func (h *Hub) Deliver(userID uuid.UUID, event notifications.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			sub.dropped.Add(1)
			h.logger.Debug("realtime subscriber slow, event dropped", "user_id", userID, "notification_id", event.ID)
		}
	}
	return delivered
}

// Publish delivers to local subscribers only.
func (h *Hub) Publish(_ context.Context, userID uuid.UUID, event notifications.Event) error {
	h.Deliver(userID, event)
	return nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
