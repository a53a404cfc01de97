package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	alerts "signal-alerts/internal/alerts/domain"
	masterapp "signal-alerts/internal/masterdata/application"
	masterdata "signal-alerts/internal/masterdata/domain"
	notifications "signal-alerts/internal/notifications/domain"
	"signal-alerts/internal/observability/metrics"
	telemetry "signal-alerts/internal/telemetry/domain"

	"github.com/google/uuid"
)

// Message outcomes, also used as metric labels.
const (
	OutcomeProcessed     = "processed"
	OutcomeUnknownSignal = "unknown_signal"
	OutcomeFailed        = "failed"
)

// Session is the per-message unit of work.
type Session interface {
	Signals() masterdata.SignalReader
	Alerts() alerts.Repository
	Close() error
}

// SessionFactory opens sessions.
type SessionFactory interface {
	Begin(ctx context.Context) (Session, error)
}

// SessionFunc adapts a function to SessionFactory.
type SessionFunc func(ctx context.Context) (Session, error)

// Begin calls f.
func (f SessionFunc) Begin(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Notifier fans out a notification for one alert transition.
type Notifier interface {
	Notify(ctx context.Context, alertID uuid.UUID, payload notifications.Payload) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Outcome describes what one reading did.
type Outcome struct {
	Result     string
	Transition alerts.Transition
	AlertID    uuid.UUID
	Notified   bool
}

// Service runs the alert pipeline for decoded readings.
type Service struct {
	sessions          SessionFactory
	directory         *masterapp.Directory
	store             *Store
	writer            telemetry.Writer
	notifier          Notifier
	clock             Clock
	logger            *slog.Logger
	timeseriesTimeout time.Duration
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithTimeseriesWriter assigns the time-series sink.
func WithTimeseriesWriter(writer telemetry.Writer) ServiceOption {
	return func(s *Service) {
		s.writer = writer
	}
}

// WithTimeseriesTimeout bounds a single time-series write.
func WithTimeseriesTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.timeseriesTimeout = timeout
		}
	}
}

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs an alert service.
func NewService(sessions SessionFactory, directory *masterapp.Directory, store *Store, opts ...ServiceOption) (*Service, error) {
	if sessions == nil {
		return nil, errors.New("alerts: nil session factory")
	}
	if directory == nil {
		return nil, errors.New("alerts: nil signal directory")
	}
	if store == nil {
		return nil, errors.New("alerts: nil store")
	}
	service := &Service{
		sessions:          sessions,
		directory:         directory,
		store:             store,
		clock:             systemClock{},
		logger:            slog.Default(),
		timeseriesTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// HandleReading resolves a reading, forwards it to time-series storage and drives
// the alert state machine of its signal. Unknown signals are not an error.
func (s *Service) HandleReading(ctx context.Context, reading alerts.Reading) (Outcome, error) {
	if s == nil {
		return Outcome{Result: OutcomeFailed}, errors.New("alerts: nil service")
	}
	at := reading.Timestamp.UTC()
	if reading.Timestamp.IsZero() {
		at = s.clock.Now().UTC()
	}

	session, err := s.sessions.Begin(ctx)
	if err != nil {
		return Outcome{Result: OutcomeFailed}, fmt.Errorf("alerts: begin unit of work: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("unit of work close failed", "error", err)
		}
	}()

	meta, err := s.directory.Resolve(ctx, session.Signals(), reading.SignalID)
	if err != nil {
		if errors.Is(err, masterdata.ErrUnknownSignal) {
			s.logger.Debug("reading for unknown signal dropped", "signal_id", reading.SignalID, "error", err)
			return Outcome{Result: OutcomeUnknownSignal}, nil
		}
		return Outcome{Result: OutcomeFailed}, err
	}

	s.writeTimeseries(ctx, meta, reading.Value, at)

	repo := session.Alerts()
	active, isActive, err := s.store.Active(ctx, repo, reading.SignalID)
	if err != nil {
		return Outcome{Result: OutcomeFailed}, fmt.Errorf("alerts: load active alert: %w", err)
	}

	min, max := meta.Type.MinThreshold, meta.Type.MaxThreshold
	transition := alerts.Decide(isActive, reading.Value, min, max)
	outcome := Outcome{Result: OutcomeProcessed, Transition: transition, AlertID: active.AlertID}

	switch transition {
	case alerts.TransitionStart:
		return s.start(ctx, repo, meta, reading.Value, at, outcome)
	case alerts.TransitionContinue:
		_, ok, err := s.store.Extend(ctx, repo, active, reading.Value, at)
		if err != nil {
			return Outcome{Result: OutcomeFailed, Transition: transition}, fmt.Errorf("alerts: extend alert: %w", err)
		}
		if !ok {
			outcome.Transition = alerts.TransitionNoop
		}
	case alerts.TransitionResolve:
		return s.resolve(ctx, repo, meta, active, at, outcome)
	}
	metrics.IncAlertTransition(string(outcome.Transition))
	return outcome, nil
}

func (s *Service) start(ctx context.Context, repo alerts.Repository, meta *masterdata.SignalMetadata, value float64, at time.Time, outcome Outcome) (Outcome, error) {
	now := s.clock.Now().UTC()
	alert := &alerts.Alert{
		ID:               uuid.New(),
		SignalID:         meta.Signal.ID,
		AssetID:          meta.Signal.AssetID,
		AssetName:        meta.AssetName,
		SignalName:       meta.Signal.Name,
		MinThreshold:     meta.Type.MinThreshold,
		MaxThreshold:     meta.Type.MaxThreshold,
		MinObservedValue: value,
		MaxObservedValue: value,
		StartUTC:         at,
		IsActive:         true,
		CreatedUTC:       now,
		UpdatedUTC:       now,
	}
	created, err := s.store.Start(ctx, repo, alert)
	if err != nil {
		return Outcome{Result: OutcomeFailed, Transition: alerts.TransitionStart}, fmt.Errorf("alerts: start alert: %w", err)
	}
	if !created {
		// Another delivery for this signal opened the episode first.
		outcome.Transition = alerts.TransitionNoop
		metrics.IncAlertTransition(string(outcome.Transition))
		return outcome, nil
	}
	outcome.AlertID = alert.ID
	metrics.IncAlertTransition(string(alerts.TransitionStart))

	status, bound := alerts.Breach(value, meta.Type.MinThreshold, meta.Type.MaxThreshold)
	s.logger.Info("alert started",
		"alert_id", alert.ID,
		"signal_id", alert.SignalID,
		"asset", meta.AssetName,
		"value", value,
		"status", status,
	)
	payload := notifications.StartPayload{
		Asset:     meta.AssetName,
		Signal:    meta.Signal.Name,
		Value:     value,
		Min:       meta.Type.MinThreshold,
		Max:       meta.Type.MaxThreshold,
		Status:    string(status),
		Percent:   alerts.DeviationPercent(value, bound),
		Timestamp: at,
	}
	return s.notify(ctx, alert.ID, payload, outcome)
}

func (s *Service) resolve(ctx context.Context, repo alerts.Repository, meta *masterdata.SignalMetadata, active alerts.ActiveState, at time.Time, outcome Outcome) (Outcome, error) {
	snapshot, closed, err := s.store.Resolve(ctx, repo, active, at)
	if err != nil {
		return Outcome{Result: OutcomeFailed, Transition: alerts.TransitionResolve}, fmt.Errorf("alerts: resolve alert: %w", err)
	}
	if !closed {
		outcome.Transition = alerts.TransitionNoop
		metrics.IncAlertTransition(string(outcome.Transition))
		return outcome, nil
	}
	metrics.IncAlertTransition(string(alerts.TransitionResolve))

	s.logger.Info("alert resolved",
		"alert_id", snapshot.AlertID,
		"signal_id", meta.Signal.ID,
		"asset", meta.AssetName,
		"duration_seconds", snapshot.DurationSeconds(),
	)
	payload := notifications.ResolvedPayload{
		Asset:           meta.AssetName,
		Signal:          meta.Signal.Name,
		From:            snapshot.StartUTC,
		To:              snapshot.EndUTC,
		DurationSeconds: snapshot.DurationSeconds(),
		Min:             snapshot.MinValue,
		Max:             snapshot.MaxValue,
	}
	return s.notify(ctx, snapshot.AlertID, payload, outcome)
}

func (s *Service) notify(ctx context.Context, alertID uuid.UUID, payload notifications.Payload, outcome Outcome) (Outcome, error) {
	if s.notifier == nil {
		return outcome, nil
	}
	if err := s.notifier.Notify(ctx, alertID, payload); err != nil {
		outcome.Result = OutcomeFailed
		return outcome, fmt.Errorf("alerts: notify %s: %w", payload.Kind(), err)
	}
	outcome.Notified = true
	return outcome, nil
}

func (s *Service) writeTimeseries(ctx context.Context, meta *masterdata.SignalMetadata, value float64, at time.Time) {
	if s.writer == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.timeseriesTimeout)
	defer cancel()
	err := s.writer.Write(writeCtx, telemetry.Reading{
		SignalID:     meta.Signal.ID,
		AssetID:      meta.Signal.AssetID,
		DeviceID:     meta.Signal.DeviceID,
		SignalTypeID: meta.Signal.SignalTypeID,
		SignalName:   meta.Signal.Name,
		Unit:         meta.Signal.Unit,
		Value:        value,
		TS:           at,
	})
	if err != nil {
		s.logger.Warn("timeseries write failed", "signal_id", meta.Signal.ID, "error", err)
	}
}

// ListAlerts returns alerts matching filter.
func (s *Service) ListAlerts(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	session, err := s.sessions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return session.Alerts().List(ctx, filter)
}

// GetAlert returns one alert or alerts.ErrNotFound.
func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if id == uuid.Nil {
		return nil, errors.New("alerts: alert id required")
	}
	session, err := s.sessions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	alert, err := session.Alerts().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	return alert, nil
}

// RehydrateMirror loads active alerts into the mirror.
func (s *Service) RehydrateMirror(ctx context.Context) (int, error) {
	if s == nil {
		return 0, errors.New("alerts: nil service")
	}
	session, err := s.sessions.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer session.Close()
	return s.store.Rehydrate(ctx, session.Alerts())
}

// InvalidateSignal evicts cached directory metadata for a signal.
func (s *Service) InvalidateSignal(signalID uuid.UUID) {
	if s == nil {
		return
	}
	s.directory.Invalidate(signalID)
}
