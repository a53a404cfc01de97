package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"signal-alerts/internal/observability/metrics"
	telemetry "signal-alerts/internal/telemetry/domain"
)

var (
	// ErrBufferFull is returned when the writer cannot accept more readings.
	ErrBufferFull = errors.New("timeseries writer: buffer full")
	// ErrClosed is returned after the flush loop stopped.
	ErrClosed = errors.New("timeseries writer: closed")
)

// BatchInserter persists readings in batches.
type BatchInserter interface {
	InsertReadings(ctx context.Context, readings []telemetry.Reading) error
}

// BatchWriter buffers readings and flushes them in the background.
// Write never waits on storage.
type BatchWriter struct {
	store         BatchInserter
	logger        *slog.Logger
	queue         chan telemetry.Reading
	batchSize     int
	flushInterval time.Duration
	flushTimeout  time.Duration

	mu     sync.RWMutex
	closed bool
}

// BatchOption configures the writer.
type BatchOption func(*BatchWriter)

// WithBatchSize sets the number of readings per insert.
func WithBatchSize(size int) BatchOption {
	return func(w *BatchWriter) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithBufferSize sets the number of readings held before Write rejects.
func WithBufferSize(size int) BatchOption {
	return func(w *BatchWriter) {
		if size > 0 {
			w.queue = make(chan telemetry.Reading, size)
		}
	}
}

// WithFlushInterval sets the maximum time a reading waits in the buffer.
func WithFlushInterval(interval time.Duration) BatchOption {
	return func(w *BatchWriter) {
		if interval > 0 {
			w.flushInterval = interval
		}
	}
}

// WithFlushTimeout bounds a single batch insert.
func WithFlushTimeout(timeout time.Duration) BatchOption {
	return func(w *BatchWriter) {
		if timeout > 0 {
			w.flushTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BatchOption {
	return func(w *BatchWriter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewBatchWriter constructs a writer. Call Run to start flushing.
func NewBatchWriter(store BatchInserter, opts ...BatchOption) (*BatchWriter, error) {
	if store == nil {
		return nil, errors.New("timeseries writer: nil store")
	}
	w := &BatchWriter{
		store:         store,
		logger:        slog.Default(),
		queue:         make(chan telemetry.Reading, 1024),
		batchSize:     100,
		flushInterval: time.Second,
		flushTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write enqueues a reading.
func (w *BatchWriter) Write(_ context.Context, reading telemetry.Reading) error {
	if w == nil {
		return errors.New("timeseries writer: nil writer")
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- reading:
		return nil
	default:
		metrics.AddTimeseriesWrites(metrics.ResultDropped, 1)
		return ErrBufferFull
	}
}

// Run flushes batches until ctx is cancelled, then flushes what is left.
func (w *BatchWriter) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("timeseries writer: nil writer")
	}
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]telemetry.Reading, 0, w.batchSize)
	for {
		select {
		case reading := <-w.queue:
			batch = append(batch, reading)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			w.mu.Lock()
			w.closed = true
			w.mu.Unlock()
			for {
				select {
				case reading := <-w.queue:
					batch = append(batch, reading)
					if len(batch) >= w.batchSize {
						w.flush(batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						w.flush(batch)
					}
					return nil
				}
			}
		}
	}
}

func (w *BatchWriter) flush(batch []telemetry.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), w.flushTimeout)
	defer cancel()
	if err := w.store.InsertReadings(ctx, batch); err != nil {
		w.logger.Warn("timeseries flush failed", "readings", len(batch), "error", err)
		metrics.AddTimeseriesWrites(metrics.ResultError, len(batch))
		return
	}
	metrics.AddTimeseriesWrites(metrics.ResultSuccess, len(batch))
}
