package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	notifications "signal-alerts/internal/notifications/domain"
	"signal-alerts/internal/observability/metrics"

	"github.com/google/uuid"
)

// Clock provides time for dedupe windows.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// ChannelNotifier renders alert transitions and sends them to a Channel.
type ChannelNotifier struct {
	channel      Channel
	template     *Template
	name         string
	clock        Clock
	dedupeWindow time.Duration

	mu   sync.Mutex
	sent map[string]sendRecord
}

// Option configures the notifier.
type Option func(*ChannelNotifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *ChannelNotifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithDedupeWindow suppresses identical content for the same alert within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *ChannelNotifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithChannelName sets the metrics label. Defaults to "webhook".
func WithChannelName(name string) Option {
	return func(n *ChannelNotifier) {
		if name != "" {
			n.name = name
		}
	}
}

// NewChannelNotifier constructs a notifier. A nil template uses DefaultTemplate.
func NewChannelNotifier(channel Channel, template *Template, opts ...Option) (*ChannelNotifier, error) {
	if channel == nil {
		return nil, errors.New("channel notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &ChannelNotifier{
		channel:  channel,
		template: template,
		name:     "webhook",
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify renders payload and sends it unless it duplicates a recent send.
func (n *ChannelNotifier) Notify(ctx context.Context, alertID uuid.UUID, payload notifications.Payload) error {
	if n == nil || n.channel == nil {
		return errors.New("channel notifier: nil channel")
	}
	content, err := n.template.RenderPayload(payload)
	if err != nil {
		return err
	}
	key := alertID.String() + "|" + string(payload.Kind())
	if !n.shouldSend(key, content) {
		metrics.IncNotification(n.name, metrics.ResultDropped)
		return nil
	}
	if err := n.channel.Send(ctx, Message{AlertID: alertID, Content: content, Payload: payload}); err != nil {
		metrics.IncNotification(n.name, metrics.ResultError)
		return err
	}
	n.markSent(key, content)
	metrics.IncNotification(n.name, metrics.ResultSuccess)
	return nil
}

func (n *ChannelNotifier) shouldSend(key, content string) bool {
	if n.dedupeWindow <= 0 {
		return true
	}
	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	return record.hash != hashContent(content) || n.clock.Now().Sub(record.at) >= n.dedupeWindow
}

func (n *ChannelNotifier) markSent(key, content string) {
	if n.dedupeWindow <= 0 {
		return
	}
	now := n.clock.Now().UTC()
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, record := range n.sent {
		if now.Sub(record.at) >= n.dedupeWindow {
			delete(n.sent, k)
		}
	}
	n.sent[key] = sendRecord{at: now, hash: hashContent(content)}
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
