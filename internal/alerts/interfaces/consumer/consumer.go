// Package consumer drives the alert pipeline from a queue source.
package consumer

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"signal-alerts/internal/alerts/application"
	alerts "signal-alerts/internal/alerts/domain"
	"signal-alerts/internal/observability/metrics"
	"signal-alerts/internal/queue"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Outcomes recorded for messages that never reach the pipeline.
const (
	OutcomeMalformed = "malformed"
	OutcomeNilSignal = "nil_signal"
)

// Handler runs the pipeline for one reading.
type Handler interface {
	HandleReading(ctx context.Context, reading alerts.Reading) (application.Outcome, error)
}

// Consumer fetches deliveries, routes each signal to a fixed worker and acks every
// delivery after its own pipeline run.
type Consumer struct {
	source      queue.Source
	handler     Handler
	deadLetters queue.DeadLetterRecorder
	transport   string
	logger      *slog.Logger
	now         func() time.Time

	workers           int
	inFlight          int64
	processingTimeout time.Duration
	ackTimeout        time.Duration
	maxBackoff        time.Duration

	deadLetterTimeout time.Duration
	deadLetterBuffer  int
	letters           chan queue.DeadLetter
}

// Option configures the consumer.
type Option func(*Consumer)

// WithWorkers sets the number of shard workers.
func WithWorkers(workers int) Option {
	return func(c *Consumer) {
		if workers > 0 {
			c.workers = workers
		}
	}
}

// WithInFlight bounds fetched but unacknowledged deliveries.
func WithInFlight(limit int) Option {
	return func(c *Consumer) {
		if limit > 0 {
			c.inFlight = int64(limit)
		}
	}
}

// WithProcessingTimeout bounds one pipeline run.
func WithProcessingTimeout(timeout time.Duration) Option {
	return func(c *Consumer) {
		if timeout > 0 {
			c.processingTimeout = timeout
		}
	}
}

// WithMaxBackoff caps the wait between failed fetches.
func WithMaxBackoff(max time.Duration) Option {
	return func(c *Consumer) {
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithDeadLetters records dropped payloads under the given transport name.
func WithDeadLetters(recorder queue.DeadLetterRecorder, transport string) Option {
	return func(c *Consumer) {
		c.deadLetters = recorder
		c.transport = transport
	}
}

// WithDeadLetterTimeout bounds one dead-letter insert.
func WithDeadLetterTimeout(timeout time.Duration) Option {
	return func(c *Consumer) {
		if timeout > 0 {
			c.deadLetterTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a consumer.
func New(source queue.Source, handler Handler, opts ...Option) (*Consumer, error) {
	if source == nil {
		return nil, errors.New("consumer: nil source")
	}
	if handler == nil {
		return nil, errors.New("consumer: nil handler")
	}
	c := &Consumer{
		source:            source,
		handler:           handler,
		logger:            slog.Default(),
		now:               func() time.Time { return time.Now().UTC() },
		workers:           8,
		inFlight:          64,
		processingTimeout: 10 * time.Second,
		ackTimeout:        5 * time.Second,
		maxBackoff:        10 * time.Second,
		deadLetterTimeout: 2 * time.Second,
		deadLetterBuffer:  256,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type job struct {
	delivery queue.Delivery
	reading  alerts.Reading
	fetched  time.Time
}

// Run consumes until ctx is cancelled or the source closes, then waits for every
// fetched delivery to finish. Fetch errors back off and never end the loop.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return errors.New("consumer: nil consumer")
	}
	stopDeadLetters := c.startDeadLetters(ctx)
	defer stopDeadLetters()

	slots := semaphore.NewWeighted(c.inFlight)
	shards := make([]chan job, c.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan job, c.inFlight)
		wg.Add(1)
		go func(in <-chan job) {
			defer wg.Done()
			for j := range in {
				c.process(ctx, j)
				slots.Release(1)
			}
		}(shards[i])
	}
	defer func() {
		for _, shard := range shards {
			close(shard)
		}
		wg.Wait()
		c.logger.Info("consumer drained")
	}()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 100 * time.Millisecond
	retry.MaxInterval = c.maxBackoff
	retry.MaxElapsedTime = 0

	for {
		if err := slots.Acquire(ctx, 1); err != nil {
			return nil
		}
		delivery, err := c.source.Fetch(ctx)
		if err != nil {
			slots.Release(1)
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			wait := retry.NextBackOff()
			c.logger.Warn("queue fetch failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()
		metrics.AddInFlight(1)

		fetched := time.Now()
		reading, err := Decode(delivery.Body(), c.now())
		if err != nil {
			c.drop(ctx, delivery, err, fetched)
			slots.Release(1)
			continue
		}
		shards[shardFor(reading.SignalID, len(shards))] <- job{delivery: delivery, reading: reading, fetched: fetched}
	}
}

func (c *Consumer) process(runCtx context.Context, j job) {
	// In-flight work outlives shutdown of the fetch loop but not its own timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), c.processingTimeout)
	defer cancel()

	outcome, err := c.handler.HandleReading(ctx, j.reading)
	if err != nil {
		c.logger.Error("reading processing failed",
			"signal_id", j.reading.SignalID,
			"transition", outcome.Transition,
			"error", err,
		)
	}
	result := outcome.Result
	if result == "" {
		result = application.OutcomeFailed
	}
	c.ack(runCtx, j.delivery)
	metrics.ObserveMessage(result, time.Since(j.fetched))
	metrics.AddInFlight(-1)
}

// drop acks a message that cannot enter the pipeline. Its dead-letter record is
// written by a separate goroutine so slow inserts never hold up fetching.
func (c *Consumer) drop(runCtx context.Context, delivery queue.Delivery, reason error, fetched time.Time) {
	outcome := OutcomeMalformed
	if errors.Is(reason, ErrNilSignal) {
		outcome = OutcomeNilSignal
	}
	c.logger.Warn("message dropped", "reason", outcome, "error", reason, "bytes", len(delivery.Body()))

	if c.letters != nil {
		letter := queue.DeadLetter{Transport: c.transport, Reason: outcome, Payload: delivery.Body()}
		select {
		case c.letters <- letter:
		default:
			c.logger.Warn("dead letter buffer full, record skipped", "reason", outcome)
		}
	}
	c.ack(runCtx, delivery)
	metrics.ObserveMessage(outcome, time.Since(fetched))
	metrics.AddInFlight(-1)
}

// startDeadLetters runs the dead-letter writer. The returned func stops it after
// every buffered record was attempted.
func (c *Consumer) startDeadLetters(runCtx context.Context) func() {
	if c.deadLetters == nil {
		return func() {}
	}
	c.letters = make(chan queue.DeadLetter, c.deadLetterBuffer)
	done := make(chan struct{})
	go func(letters <-chan queue.DeadLetter) {
		defer close(done)
		for letter := range letters {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), c.deadLetterTimeout)
			err := c.deadLetters.RecordDeadLetter(ctx, letter)
			cancel()
			if err != nil {
				c.logger.Warn("dead letter record failed", "reason", letter.Reason, "error", err)
				continue
			}
			metrics.IncDeadLetter(letter.Reason)
		}
	}(c.letters)
	return func() {
		close(c.letters)
		<-done
		c.letters = nil
	}
}

func (c *Consumer) ack(runCtx context.Context, delivery queue.Delivery) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), c.ackTimeout)
	defer cancel()
	if err := delivery.Ack(ctx); err != nil {
		c.logger.Warn("ack failed", "error", err)
	}
}

func shardFor(signalID uuid.UUID, shards int) int {
	h := fnv.New32a()
	_, _ = h.Write(signalID[:])
	return int(h.Sum32() % uint32(shards))
}
