// Package natsq reads readings from a JetStream durable pull consumer.
package natsq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signal-alerts/internal/queue"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config holds JetStream consumer settings.
type Config struct {
	URL           string
	Stream        string
	Subject       string
	Durable       string
	CreateStream  bool
	AckWait       time.Duration
	MaxAckPending int
}

// messageIterator is the part of jetstream.MessagesContext the source uses.
type messageIterator interface {
	Next(opts ...jetstream.NextOpt) (jetstream.Msg, error)
	Stop()
}

// Source is a queue.Source over a JetStream consumer with explicit acks.
type Source struct {
	conn   *nats.Conn
	iter   messageIterator
	logger *slog.Logger

	msgs chan jetstream.Msg
	errs chan error
	done chan struct{}
	once sync.Once
}

// Dial connects to NATS, ensures the durable consumer and starts pulling.
// MaxAckPending caps unacknowledged messages, which bounds in-flight work server side.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.URL == "" || cfg.Stream == "" || cfg.Durable == "" {
		return nil, errors.New("natsq: url, stream and durable are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("natsq: connect: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsq: jetstream: %w", err)
	}
	if cfg.CreateStream {
		subjects := []string{cfg.Subject}
		if cfg.Subject == "" {
			subjects = []string{cfg.Stream + ".>"}
		}
		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{Name: cfg.Stream, Subjects: subjects}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("natsq: ensure stream: %w", err)
		}
	}

	consumerCfg := jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: cfg.Subject,
		MaxAckPending: cfg.MaxAckPending,
	}
	if cfg.AckWait > 0 {
		consumerCfg.AckWait = cfg.AckWait
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, consumerCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsq: ensure consumer: %w", err)
	}
	batch := cfg.MaxAckPending
	if batch <= 0 {
		batch = 64
	}
	iter, err := consumer.Messages(jetstream.PullMaxMessages(batch))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsq: pull: %w", err)
	}

	logger.Info("nats consumer ready", "stream", cfg.Stream, "durable", cfg.Durable, "subject", cfg.Subject)
	return newSource(conn, iter, logger), nil
}

func newSource(conn *nats.Conn, iter messageIterator, logger *slog.Logger) *Source {
	source := &Source{
		conn:   conn,
		iter:   iter,
		logger: logger,
		msgs:   make(chan jetstream.Msg),
		errs:   make(chan error),
		done:   make(chan struct{}),
	}
	go source.pump()
	return source
}

// pump moves messages from the blocking iterator onto a channel so Fetch can honor ctx.
func (s *Source) pump() {
	for {
		msg, err := s.iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return
			}
			select {
			case s.errs <- err:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.msgs <- msg:
		case <-s.done:
			// Not acked, so JetStream redelivers it after AckWait.
			return
		}
	}
}

// Fetch returns the next message.
func (s *Source) Fetch(ctx context.Context) (queue.Delivery, error) {
	select {
	case msg := <-s.msgs:
		return delivery{msg: msg}, nil
	case err := <-s.errs:
		return nil, err
	case <-s.done:
		return nil, queue.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops pulling and drains the connection. Pending acks are flushed by Drain.
func (s *Source) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.iter.Stop()
		if s.conn == nil {
			return
		}
		if err := s.conn.Drain(); err != nil {
			s.logger.Warn("nats drain failed", "error", err)
			s.conn.Close()
		}
	})
	return nil
}

type delivery struct {
	msg jetstream.Msg
}

func (d delivery) Body() []byte { return d.msg.Data() }

func (d delivery) Ack(context.Context) error { return d.msg.Ack() }
