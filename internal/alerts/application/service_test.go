package application

import (
	"context"
	"errors"
	"testing"
	"time"

	alerts "signal-alerts/internal/alerts/domain"
	notifications "signal-alerts/internal/notifications/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t1 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestHighAlertLifecycle(t *testing.T) {
	f := newFixture(18, 26)
	ctx := context.Background()

	out, err := f.service.HandleReading(ctx, f.reading(30, t1))
	require.NoError(t, err)
	assert.Equal(t, alerts.TransitionStart, out.Transition)
	assert.True(t, out.Notified)

	out, err = f.service.HandleReading(ctx, f.reading(32, t1.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, alerts.TransitionContinue, out.Transition)
	assert.False(t, out.Notified)

	out, err = f.service.HandleReading(ctx, f.reading(20, t1.Add(150*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, alerts.TransitionResolve, out.Transition)

	rows := f.repo.all()
	require.Len(t, rows, 1)
	row := rows[0]
	assert.False(t, row.IsActive)
	assert.Equal(t, t1, row.StartUTC)
	assert.Equal(t, t1.Add(150*time.Second), row.EndUTC)
	assert.Equal(t, 30.0, row.MinObservedValue)
	assert.Equal(t, 32.0, row.MaxObservedValue)
	assert.Equal(t, "Pump 3", row.AssetName)
	assert.Equal(t, 18.0, row.MinThreshold)
	assert.Equal(t, 26.0, row.MaxThreshold)
	require.NoError(t, row.Validate())

	require.Equal(t, []notifications.Kind{notifications.KindStart, notifications.KindResolved}, f.notifier.kinds())
	start := f.notifier.sent[0].payload.(notifications.StartPayload)
	assert.Equal(t, notifications.StartPayload{
		Asset:     "Pump 3",
		Signal:    "temperature",
		Value:     30,
		Min:       18,
		Max:       26,
		Status:    "HIGH",
		Percent:   15.4,
		Timestamp: t1,
	}, start)

	resolved := f.notifier.sent[1].payload.(notifications.ResolvedPayload)
	assert.Equal(t, notifications.ResolvedPayload{
		Asset:           "Pump 3",
		Signal:          "temperature",
		From:            t1,
		To:              t1.Add(150 * time.Second),
		DurationSeconds: 150,
		Min:             30,
		Max:             32,
	}, resolved)
	assert.Equal(t, row.ID, f.notifier.sent[1].alertID)
	assert.Zero(t, f.store.MirrorSize())
}

func TestLowAlertWithZeroBound(t *testing.T) {
	f := newFixture(0, 50)

	out, err := f.service.HandleReading(context.Background(), f.reading(-5, t1))
	require.NoError(t, err)
	assert.Equal(t, alerts.TransitionStart, out.Transition)

	require.Len(t, f.notifier.sent, 1)
	start := f.notifier.sent[0].payload.(notifications.StartPayload)
	assert.Equal(t, "LOW", start.Status)
	assert.Equal(t, 500.0, start.Percent)
	assert.Equal(t, 1, f.store.MirrorSize())
}

func TestRedeliveredStartCreatesOneAlert(t *testing.T) {
	f := newFixture(0, 50)
	ctx := context.Background()

	_, err := f.service.HandleReading(ctx, f.reading(60, t1))
	require.NoError(t, err)

	// A restarted process has an empty mirror but sees the same durable rows.
	restarted := f.newService(NewStore())
	out, err := restarted.HandleReading(ctx, f.reading(60, t1))
	require.NoError(t, err)
	assert.Equal(t, alerts.TransitionContinue, out.Transition)

	active, err := f.repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, []notifications.Kind{notifications.KindStart}, f.notifier.kinds())
}

func TestRedeliveredResolveIsNoop(t *testing.T) {
	f := newFixture(0, 50)
	ctx := context.Background()

	_, err := f.service.HandleReading(ctx, f.reading(60, t1))
	require.NoError(t, err)
	_, err = f.service.HandleReading(ctx, f.reading(40, t1.Add(time.Minute)))
	require.NoError(t, err)

	out, err := f.service.HandleReading(ctx, f.reading(40, t1.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, alerts.TransitionNoop, out.Transition)
	assert.Equal(t, []notifications.Kind{notifications.KindStart, notifications.KindResolved}, f.notifier.kinds())
}

func TestResolveRaceClosedByOtherDelivery(t *testing.T) {
	f := newFixture(0, 50)
	ctx := context.Background()

	_, err := f.service.HandleReading(ctx, f.reading(60, t1))
	require.NoError(t, err)
	active, ok, err := f.store.Active(ctx, f.repo, f.signalID)
	require.NoError(t, err)
	require.True(t, ok)

	_, closed, err := f.store.Resolve(ctx, f.repo, active, t1.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, closed)

	_, closed, err = f.store.Resolve(ctx, f.repo, active, t1.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestBoundaryValuesNeverAlert(t *testing.T) {
	f := newFixture(18, 26)
	ctx := context.Background()

	for _, value := range []float64{18, 26, 22} {
		out, err := f.service.HandleReading(ctx, f.reading(value, t1))
		require.NoError(t, err)
		assert.Equal(t, alerts.TransitionNoop, out.Transition, "value %v", value)
	}
	assert.Empty(t, f.repo.all())
	assert.Empty(t, f.notifier.sent)
}

func TestBoundaryValueResolvesActiveAlert(t *testing.T) {
	f := newFixture(18, 26)
	ctx := context.Background()

	_, err := f.service.HandleReading(ctx, f.reading(17, t1))
	require.NoError(t, err)
	out, err := f.service.HandleReading(ctx, f.reading(18, t1.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, alerts.TransitionResolve, out.Transition)
}

func TestReplayedContinueIsIdempotent(t *testing.T) {
	f := newFixture(18, 26)
	ctx := context.Background()

	_, err := f.service.HandleReading(ctx, f.reading(30, t1))
	require.NoError(t, err)
	_, err = f.service.HandleReading(ctx, f.reading(35, t1.Add(time.Second)))
	require.NoError(t, err)
	once := f.repo.all()[0]

	_, err = f.service.HandleReading(ctx, f.reading(35, t1.Add(time.Second)))
	require.NoError(t, err)
	twice := f.repo.all()[0]

	assert.Equal(t, once.MinObservedValue, twice.MinObservedValue)
	assert.Equal(t, once.MaxObservedValue, twice.MaxObservedValue)
	assert.LessOrEqual(t, twice.MinObservedValue, twice.MaxObservedValue)

	state, ok, err := f.store.Active(ctx, f.repo, f.signalID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30.0, state.MinValue)
	assert.Equal(t, 35.0, state.MaxValue)
}

func TestUnknownSignalIsDropped(t *testing.T) {
	f := newFixture(18, 26)

	out, err := f.service.HandleReading(context.Background(), alerts.Reading{SignalID: uuid.New(), Value: 99, Timestamp: t1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownSignal, out.Result)
	assert.Empty(t, f.writer.readings)
	assert.Equal(t, 1, f.closed)
}

func TestPersistenceFailureLeavesMirrorUntouched(t *testing.T) {
	f := newFixture(18, 26)
	f.repo.createErr = errDatabaseDown

	out, err := f.service.HandleReading(context.Background(), f.reading(30, t1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDatabaseDown))
	assert.Equal(t, OutcomeFailed, out.Result)
	assert.Zero(t, f.store.MirrorSize())
	assert.Empty(t, f.notifier.sent)
	assert.Len(t, f.writer.readings, 1)
}

func TestNotificationFailureIsReported(t *testing.T) {
	f := newFixture(18, 26)
	f.notifier.err = errDatabaseDown

	out, err := f.service.HandleReading(context.Background(), f.reading(30, t1))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, out.Result)
	assert.Equal(t, alerts.TransitionStart, out.Transition)
	assert.Len(t, f.repo.all(), 1)
}

func TestTimeseriesFailureDoesNotBlockAlerts(t *testing.T) {
	f := newFixture(18, 26)
	f.writer.err = errors.New("sink down")

	out, err := f.service.HandleReading(context.Background(), f.reading(30, t1))
	require.NoError(t, err)
	assert.Equal(t, alerts.TransitionStart, out.Transition)
	require.Len(t, f.writer.readings, 1)
	assert.Equal(t, "temperature", f.writer.readings[0].SignalName)
	assert.Equal(t, t1, f.writer.readings[0].TS)
}

func TestMissingTimestampUsesClock(t *testing.T) {
	f := newFixture(18, 26)

	_, err := f.service.HandleReading(context.Background(), f.reading(30, time.Time{}))
	require.NoError(t, err)
	rows := f.repo.all()
	require.Len(t, rows, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), rows[0].StartUTC)
}

func TestRehydratedMirrorReportsOriginalStart(t *testing.T) {
	f := newFixture(18, 26)
	ctx := context.Background()

	_, err := f.service.HandleReading(ctx, f.reading(30, t1))
	require.NoError(t, err)

	restartedStore := NewStore()
	restarted := f.newService(restartedStore)
	count, err := restarted.RehydrateMirror(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, restartedStore.MirrorSize())

	_, err = restarted.HandleReading(ctx, f.reading(20, t1.Add(time.Hour)))
	require.NoError(t, err)
	resolved := f.notifier.sent[len(f.notifier.sent)-1].payload.(notifications.ResolvedPayload)
	assert.Equal(t, t1, resolved.From)
	assert.Equal(t, int64(3600), resolved.DurationSeconds)
}

func TestThresholdEditAppliesToNextReading(t *testing.T) {
	f := newFixture(18, 26)
	ctx := context.Background()

	_, err := f.service.HandleReading(ctx, f.reading(30, t1))
	require.NoError(t, err)

	for id, signalType := range f.reader.types {
		signalType.MaxThreshold = 40
		f.reader.types[id] = signalType
	}
	out, err := f.service.HandleReading(ctx, f.reading(30, t1.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, alerts.TransitionResolve, out.Transition)
}

func TestGetAlert(t *testing.T) {
	f := newFixture(18, 26)
	ctx := context.Background()

	out, err := f.service.HandleReading(ctx, f.reading(30, t1))
	require.NoError(t, err)

	alert, err := f.service.GetAlert(ctx, out.AlertID)
	require.NoError(t, err)
	assert.Equal(t, f.signalID, alert.SignalID)

	_, err = f.service.GetAlert(ctx, uuid.New())
	assert.ErrorIs(t, err, alerts.ErrNotFound)

	list, err := f.service.ListAlerts(ctx, alerts.Filter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil)
	assert.Error(t, err)
}
