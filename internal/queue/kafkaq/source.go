// Package kafkaq reads readings from a Kafka consumer group.
package kafkaq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"signal-alerts/internal/queue"

	"github.com/segmentio/kafka-go"
)

// Config holds consumer group settings.
type Config struct {
	Brokers string
	Topic   string
	GroupID string
	MaxWait time.Duration
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Source is a queue.Source over a kafka.Reader. Offsets are committed only up to
// the highest contiguous acknowledged message of each partition.
type Source struct {
	reader  messageReader
	tracker *offsetTracker
	logger  *slog.Logger
	topic   string
}

// New constructs a consumer group source.
func New(cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.Brokers == "" {
		return nil, errors.New("kafkaq: brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafkaq: topic cannot be empty")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafkaq: group id cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 500 * time.Millisecond
	}
	brokers := parseBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  maxWait,
		// Commits are issued explicitly and synchronously from Ack.
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	logger.Info("kafka consumer ready", "brokers", brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	return newSource(reader, cfg.Topic, logger), nil
}

func newSource(reader messageReader, topic string, logger *slog.Logger) *Source {
	return &Source{reader: reader, tracker: newOffsetTracker(), logger: logger, topic: topic}
}

// Fetch returns the next message of the group assignment.
func (s *Source) Fetch(ctx context.Context) (queue.Delivery, error) {
	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, queue.ErrClosed
		}
		return nil, fmt.Errorf("kafkaq: fetch: %w", err)
	}
	s.tracker.track(msg.Partition, msg.Offset)
	return &delivery{source: s, msg: msg}, nil
}

// Close closes the reader.
func (s *Source) Close() error {
	s.logger.Info("closing kafka consumer", "topic", s.topic)
	return s.reader.Close()
}

func (s *Source) ack(ctx context.Context, msg kafka.Message) error {
	watermark, moved := s.tracker.complete(msg.Partition, msg.Offset)
	if !moved {
		return nil
	}
	commit := msg
	commit.Offset = watermark
	if err := s.reader.CommitMessages(ctx, commit); err != nil {
		return fmt.Errorf("kafkaq: commit partition %d offset %d: %w", msg.Partition, watermark, err)
	}
	return nil
}

type delivery struct {
	source *Source
	msg    kafka.Message
}

func (d *delivery) Body() []byte { return d.msg.Value }

func (d *delivery) Ack(ctx context.Context) error { return d.source.ack(ctx, d.msg) }

func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
