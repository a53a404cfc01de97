package notify

import (
	"context"
	"log/slog"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/google/uuid"
)

// Notifier handles one alert transition.
type Notifier interface {
	Notify(ctx context.Context, alertID uuid.UUID, payload notifications.Payload) error
}

// MultiNotifier dispatches to a primary notifier and best-effort secondaries.
// Only the primary's error is returned.
type MultiNotifier struct {
	primary     Notifier
	secondaries []Notifier
	logger      *slog.Logger
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(logger *slog.Logger, primary Notifier, secondaries ...Notifier) *MultiNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiNotifier{primary: primary, secondaries: secondaries, logger: logger}
}

// Notify forwards the transition to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, alertID uuid.UUID, payload notifications.Payload) error {
	if m == nil {
		return nil
	}
	var err error
	if m.primary != nil {
		err = m.primary.Notify(ctx, alertID, payload)
	}
	for _, notifier := range m.secondaries {
		if notifier == nil {
			continue
		}
		if serr := notifier.Notify(ctx, alertID, payload); serr != nil {
			m.logger.Warn("secondary notifier failed", "alert_id", alertID, "kind", payload.Kind(), "error", serr)
		}
	}
	return err
}
