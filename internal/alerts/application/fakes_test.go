package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	alerts "signal-alerts/internal/alerts/domain"
	masterapp "signal-alerts/internal/masterdata/application"
	masterdata "signal-alerts/internal/masterdata/domain"
	notifications "signal-alerts/internal/notifications/domain"
	telemetry "signal-alerts/internal/telemetry/domain"

	"github.com/google/uuid"
)

// memoryRepo mimics the Postgres repository, including the partial unique index
// on active alerts and the conditional close.
type memoryRepo struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*alerts.Alert
	createErr error
	extendErr error
	closeErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[uuid.UUID]*alerts.Alert)}
}

func (r *memoryRepo) FindActiveBySignal(_ context.Context, signalID uuid.UUID) (*alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SignalID == signalID && row.IsActive {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) CreateActive(_ context.Context, alert *alerts.Alert) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return false, r.createErr
	}
	if err := alert.Validate(); err != nil {
		return false, err
	}
	for _, row := range r.rows {
		if row.SignalID == alert.SignalID && row.IsActive {
			return false, nil
		}
	}
	copied := *alert
	r.rows[alert.ID] = &copied
	return true, nil
}

func (r *memoryRepo) ExtendObserved(_ context.Context, alertID uuid.UUID, value float64, at time.Time) (float64, float64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extendErr != nil {
		return 0, 0, false, r.extendErr
	}
	row, ok := r.rows[alertID]
	if !ok || !row.IsActive {
		return 0, 0, false, nil
	}
	row.Observe(value, at)
	return row.MinObservedValue, row.MaxObservedValue, true, nil
}

func (r *memoryRepo) CloseActive(_ context.Context, alertID uuid.UUID, at time.Time) (alerts.Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return alerts.Snapshot{}, false, r.closeErr
	}
	row, ok := r.rows[alertID]
	if !ok || !row.IsActive {
		return alerts.Snapshot{}, false, nil
	}
	row.Close(at)
	return alerts.Snapshot{
		AlertID:  row.ID,
		StartUTC: row.StartUTC,
		EndUTC:   row.EndUTC,
		MinValue: row.MinObservedValue,
		MaxValue: row.MaxObservedValue,
	}, true, nil
}

func (r *memoryRepo) ListActive(ctx context.Context) ([]alerts.Alert, error) {
	return r.List(ctx, alerts.Filter{ActiveOnly: true})
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (r *memoryRepo) List(_ context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []alerts.Alert
	for _, row := range r.rows {
		if filter.ActiveOnly && !row.IsActive {
			continue
		}
		if filter.SignalID != uuid.Nil && row.SignalID != filter.SignalID {
			continue
		}
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartUTC.After(result[j].StartUTC) })
	return result, nil
}

func (r *memoryRepo) all() []alerts.Alert {
	list, _ := r.List(context.Background(), alerts.Filter{})
	return list
}

type stubReader struct {
	signals map[uuid.UUID]masterdata.Signal
	assets  map[uuid.UUID]string
	types   map[uuid.UUID]masterdata.SignalType
}

func (r *stubReader) GetSignalByID(_ context.Context, id uuid.UUID) (*masterdata.Signal, error) {
	signal, ok := r.signals[id]
	if !ok {
		return nil, nil
	}
	return &signal, nil
}

func (r *stubReader) GetAssetName(_ context.Context, id uuid.UUID) (string, error) {
	return r.assets[id], nil
}

func (r *stubReader) GetSignalType(_ context.Context, signalID, typeID uuid.UUID) (*masterdata.SignalType, error) {
	if signal, ok := r.signals[signalID]; !ok || signal.SignalTypeID != typeID {
		return nil, nil
	}
	signalType, ok := r.types[typeID]
	if !ok {
		return nil, nil
	}
	return &signalType, nil
}

type memorySession struct {
	reader *stubReader
	repo   alerts.Repository
	closed *int
}

func (s memorySession) Signals() masterdata.SignalReader { return s.reader }
func (s memorySession) Alerts() alerts.Repository        { return s.repo }
func (s memorySession) Close() error {
	*s.closed++
	return nil
}

type recordedNotification struct {
	alertID uuid.UUID
	payload notifications.Payload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, alertID uuid.UUID, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, recordedNotification{alertID: alertID, payload: payload})
	return n.err
}

func (n *recordingNotifier) kinds() []notifications.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]notifications.Kind, 0, len(n.sent))
	for _, sent := range n.sent {
		kinds = append(kinds, sent.payload.Kind())
	}
	return kinds
}

type recordingWriter struct {
	mu       sync.Mutex
	readings []telemetry.Reading
	err      error
}

func (w *recordingWriter) Write(_ context.Context, reading telemetry.Reading) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readings = append(w.readings, reading)
	return w.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

var errDatabaseDown = errors.New("database down")

type fixture struct {
	signalID uuid.UUID
	reader   *stubReader
	repo     *memoryRepo
	store    *Store
	notifier *recordingNotifier
	writer   *recordingWriter
	closed   int
	service  *Service
}

func newFixture(min, max float64) *fixture {
	signalID := uuid.New()
	assetID := uuid.New()
	typeID := uuid.New()
	f := &fixture{
		signalID: signalID,
		reader: &stubReader{
			signals: map[uuid.UUID]masterdata.Signal{
				signalID: {
					ID:           signalID,
					Key:          "pump3.dev1.temperature",
					AssetID:      assetID,
					DeviceID:     uuid.New(),
					SignalTypeID: typeID,
					Name:         "temperature",
					Unit:         "C",
				},
			},
			assets: map[uuid.UUID]string{assetID: "Pump 3"},
			types: map[uuid.UUID]masterdata.SignalType{
				typeID: {ID: typeID, MinThreshold: min, MaxThreshold: max},
			},
		},
		repo:     newMemoryRepo(),
		store:    NewStore(),
		notifier: &recordingNotifier{},
		writer:   &recordingWriter{},
	}
	f.service = f.newService(f.store)
	return f
}

// newService builds a service over the fixture's durable state with the given mirror.
func (f *fixture) newService(store *Store) *Service {
	sessions := SessionFunc(func(context.Context) (Session, error) {
		return memorySession{reader: f.reader, repo: f.repo, closed: &f.closed}, nil
	})
	service, err := NewService(sessions, masterapp.NewDirectory(0), store,
		WithNotifier(f.notifier),
		WithTimeseriesWriter(f.writer),
		WithClock(&fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}),
	)
	if err != nil {
		panic(err)
	}
	return service
}

func (f *fixture) reading(value float64, at time.Time) alerts.Reading {
	return alerts.Reading{SignalID: f.signalID, Value: value, Timestamp: at}
}
