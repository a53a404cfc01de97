package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() notifications.Event {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return notifications.Event{
		ID:        uuid.New(),
		Title:     "temperature HIGH alert on Pump 3",
		Text:      `{"asset":"Pump 3"}`,
		CreatedAt: created,
		ExpiresAt: created.Add(24 * time.Hour),
		Priority:  1,
	}
}

func fixedUser(id uuid.UUID) UserResolver {
	return func(*http.Request) (uuid.UUID, bool) { return id, id != uuid.Nil }
}

func TestHubDeliversOnlyToAddressedUser(t *testing.T) {
	hub := NewHub(4, nil)
	alice, bob := uuid.New(), uuid.New()
	aliceSub := hub.Subscribe(alice)
	bobSub := hub.Subscribe(bob)

	event := sampleEvent()
	assert.Equal(t, 1, hub.Deliver(alice, event))

	select {
	case got := <-aliceSub.Events():
		assert.Equal(t, event.ID, got.ID)
	default:
		t.Fatal("expected event for alice")
	}
	select {
	case <-bobSub.Events():
		t.Fatal("bob must not receive alice's event")
	default:
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(1, nil)
	user := uuid.New()
	sub := hub.Subscribe(user)

	assert.Equal(t, 1, hub.Deliver(user, sampleEvent()))
	assert.Equal(t, 0, hub.Deliver(user, sampleEvent()))
	assert.Equal(t, int64(1), sub.Dropped())
}

func TestHubUnsubscribeClosesOnce(t *testing.T) {
	hub := NewHub(0, nil)
	user := uuid.New()
	sub := hub.Subscribe(user)
	require.Equal(t, 1, hub.Subscribers())

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())
	assert.Equal(t, 0, hub.Deliver(user, sampleEvent()))
}

func TestRedisEnvelopeDeliversToHub(t *testing.T) {
	hub := NewHub(4, nil)
	user := uuid.New()
	sub := hub.Subscribe(user)
	backplane := &RedisBackplane{hub: hub, logger: hub.logger}

	event := sampleEvent()
	data, err := json.Marshal(envelope{UserID: user, Event: event})
	require.NoError(t, err)
	backplane.handle(string(data))
	backplane.handle("not json")

	select {
	case got := <-sub.Events():
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, event.Title, got.Title)
	default:
		t.Fatal("expected event from envelope")
	}
}

func TestNewRedisBackplaneValidation(t *testing.T) {
	_, err := NewRedisBackplane(nil, "", NewHub(0, nil), nil)
	assert.Error(t, err)
}

func TestRedisBackplaneRetriesUntilCancelled(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	backplane, err := NewRedisBackplane(client, "", NewHub(0, nil), nil)
	require.NoError(t, err)
	backplane.retryInitial = 10 * time.Millisecond
	backplane.retryMax = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- backplane.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Error(t, ctx.Err(), "Run returned before the context ended")
	case <-time.After(5 * time.Second):
		t.Fatal("backplane did not stop after cancellation")
	}
}

func TestSSEStreamsReceiveNotification(t *testing.T) {
	hub := NewHub(4, nil)
	user := uuid.New()
	server := httptest.NewServer(NewSSEHandler(hub, fixedUser(user)))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ready\n", line)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	event := sampleEvent()
	hub.Deliver(user, event)

	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: "+notifications.EventName) || strings.HasPrefix(line, "data: {\"id\"") {
			lines = append(lines, line)
		}
	}
	assert.Contains(t, lines[1], event.ID.String())
}

func TestSSERequiresUser(t *testing.T) {
	handler := NewSSEHandler(NewHub(0, nil), fixedUser(uuid.Nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebSocketPushesFrames(t *testing.T) {
	hub := NewHub(4, nil)
	user := uuid.New()
	server := httptest.NewServer(NewWebSocketHandler(hub, fixedUser(user), nil, nil))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	event := sampleEvent()
	hub.Deliver(user, event)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, notifications.EventName, msg.Type)
	assert.Equal(t, event.ID, msg.Payload.ID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}
