package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisChannel = "signal-alerts:notifications"

type envelope struct {
	UserID uuid.UUID           `json:"userId"`
	Event  notifications.Event `json:"event"`
}

// RedisBackplane publishes events on a Redis channel so that every process
// delivers them to its own hub.
type RedisBackplane struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger

	retryInitial time.Duration
	retryMax     time.Duration
}

// NewRedisBackplane constructs a backplane. An empty channel uses the default.
func NewRedisBackplane(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) (*RedisBackplane, error) {
	if client == nil {
		return nil, errors.New("redis backplane: nil client")
	}
	if hub == nil {
		return nil, errors.New("redis backplane: nil hub")
	}
	if channel == "" {
		channel = defaultRedisChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBackplane{
		client:       client,
		channel:      channel,
		hub:          hub,
		logger:       logger,
		retryInitial: 500 * time.Millisecond,
		retryMax:     30 * time.Second,
	}, nil
}

// Publish sends the event to all processes, this one included.
func (b *RedisBackplane) Publish(ctx context.Context, userID uuid.UUID, event notifications.Event) error {
	data, err := json.Marshal(envelope{UserID: userID, Event: event})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis backplane: publish: %w", err)
	}
	return nil
}

// Run subscribes to the channel and delivers to the local hub until ctx is done.
// Subscribe failures are logged and retried; Run only returns once ctx is done.
func (b *RedisBackplane) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.retryInitial
	policy.MaxInterval = b.retryMax
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(policy, ctx)

	for ctx.Err() == nil {
		sub := b.client.Subscribe(ctx, b.channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return nil
			}
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				return nil
			}
			b.logger.Warn("redis backplane subscribe failed", "channel", b.channel, "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()
		b.logger.Info("redis backplane subscribed", "channel", b.channel)
		b.receive(ctx, sub)
		_ = sub.Close()
	}
	return nil
}

func (b *RedisBackplane) receive(ctx context.Context, sub *redis.PubSub) {
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				b.logger.Warn("redis backplane channel closed, resubscribing", "channel", b.channel)
				return
			}
			b.handle(msg.Payload)
		}
	}
}

func (b *RedisBackplane) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn("redis backplane: bad envelope", "error", err)
		return
	}
	if env.UserID == uuid.Nil {
		return
	}
	b.hub.Deliver(env.UserID, env.Event)
}
