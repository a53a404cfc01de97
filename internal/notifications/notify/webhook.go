package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Message is one rendered alert transition handed to a Channel.
type Message struct {
	AlertID uuid.UUID
	Content string
	Payload notifications.Payload
}

// Channel delivers rendered alert transitions.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// webhookBody pairs the chat-compatible text block with the structured transition.
type webhookBody struct {
	MsgType string       `json:"msgtype"`
	Text    webhookText  `json:"text"`
	Alert   webhookAlert `json:"alert"`
}

type webhookText struct {
	Content string `json:"content"`
}

type webhookAlert struct {
	ID      uuid.UUID             `json:"alertId"`
	Kind    notifications.Kind    `json:"kind"`
	Title   string                `json:"title"`
	Payload notifications.Payload `json:"payload"`
}

// WebhookChannel posts alert transitions to a chat or incident webhook.
type WebhookChannel struct {
	url         string
	client      *http.Client
	maxAttempts int
	retryWait   time.Duration
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithRetry sets how many times a send is attempted and the first wait between attempts.
func WithRetry(attempts int, wait time.Duration) WebhookOption {
	return func(ch *WebhookChannel) {
		if attempts > 0 {
			ch.maxAttempts = attempts
		}
		if wait > 0 {
			ch.retryWait = wait
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:         url,
		client:      &http.Client{Timeout: 10 * time.Second},
		maxAttempts: 3,
		retryWait:   200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts msg. Transport errors and 5xx responses are retried; 4xx responses are not.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	if msg.Payload == nil {
		return errors.New("webhook channel: nil payload")
	}
	body, err := json.Marshal(webhookBody{
		MsgType: "text",
		Text:    webhookText{Content: msg.Content},
		Alert: webhookAlert{
			ID:      msg.AlertID,
			Kind:    msg.Payload.Kind(),
			Title:   msg.Payload.Title(),
			Payload: msg.Payload,
		},
	})
	if err != nil {
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.retryWait
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(w.maxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		return w.post(ctx, msg.AlertID, body)
	}, retry)
}

func (w *WebhookChannel) post(ctx context.Context, alertID uuid.UUID, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alert-Id", alertID.String())
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook channel: server error %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return backoff.Permanent(fmt.Errorf("webhook channel: rejected with %d", resp.StatusCode))
	}
	return nil
}
