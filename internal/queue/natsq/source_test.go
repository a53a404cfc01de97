package natsq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"signal-alerts/internal/queue"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nextResult struct {
	msg jetstream.Msg
	err error
}

// fakeIterator blocks in Next until a result is queued or Stop is called.
type fakeIterator struct {
	results chan nextResult
	stopped chan struct{}
	once    sync.Once
}

func newFakeIterator() *fakeIterator {
	return &fakeIterator{results: make(chan nextResult, 8), stopped: make(chan struct{})}
}

func (it *fakeIterator) Next(...jetstream.NextOpt) (jetstream.Msg, error) {
	select {
	case r := <-it.results:
		return r.msg, r.err
	case <-it.stopped:
		return nil, jetstream.ErrMsgIteratorClosed
	}
}

func (it *fakeIterator) Stop() { it.once.Do(func() { close(it.stopped) }) }

type fakeMsg struct {
	jetstream.Msg
	data []byte

	mu    sync.Mutex
	acked int
}

func (m *fakeMsg) Data() []byte { return m.data }

func (m *fakeMsg) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked++
	return nil
}

func testSource(t *testing.T) (*Source, *fakeIterator) {
	t.Helper()
	iter := newFakeIterator()
	source := newSource(nil, iter, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = source.Close() })
	return source, iter
}

func TestSourceFetchDeliversAndAcks(t *testing.T) {
	source, iter := testSource(t)
	msg := &fakeMsg{data: []byte(`{"signalId":"s1"}`)}
	iter.results <- nextResult{msg: msg}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	delivery, err := source.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"signalId":"s1"}`, string(delivery.Body()))

	require.NoError(t, delivery.Ack(ctx))
	msg.mu.Lock()
	defer msg.mu.Unlock()
	assert.Equal(t, 1, msg.acked)
}

func TestSourceFetchSurfacesIteratorError(t *testing.T) {
	source, iter := testSource(t)
	boom := errors.New("heartbeat missed")
	iter.results <- nextResult{err: boom}
	iter.results <- nextResult{msg: &fakeMsg{data: []byte("next")}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := source.Fetch(ctx)
	require.ErrorIs(t, err, boom)

	// The pump keeps going after an error.
	delivery, err := source.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "next", string(delivery.Body()))
}

func TestSourceFetchHonorsContext(t *testing.T) {
	source, _ := testSource(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := source.Fetch(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSourceFetchAfterClose(t *testing.T) {
	source, iter := testSource(t)
	require.NoError(t, source.Close())
	require.NoError(t, source.Close())

	select {
	case <-iter.stopped:
	default:
		t.Fatal("expected iterator to be stopped")
	}
	_, err := source.Fetch(context.Background())
	require.ErrorIs(t, err, queue.ErrClosed)
}
