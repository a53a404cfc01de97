package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the durable alert store.
type Repository interface {
	FindActiveBySignal(ctx context.Context, signalID uuid.UUID) (*Alert, error)
	CreateActive(ctx context.Context, alert *Alert) (bool, error)
	ExtendObserved(ctx context.Context, alertID uuid.UUID, value float64, at time.Time) (min, max float64, ok bool, err error)
	CloseActive(ctx context.Context, alertID uuid.UUID, at time.Time) (Snapshot, bool, error)
	ListActive(ctx context.Context) ([]Alert, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	List(ctx context.Context, filter Filter) ([]Alert, error)
}
