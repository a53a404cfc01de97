package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reading is one normalized signal value forwarded to time-series storage.
type Reading struct {
	SignalID     uuid.UUID
	AssetID      uuid.UUID
	DeviceID     uuid.UUID
	SignalTypeID uuid.UUID
	SignalName   string
	Unit         string
	Value        float64
	TS           time.Time
}

// Writer persists readings regardless of alert outcome.
type Writer interface {
	Write(ctx context.Context, reading Reading) error
}
