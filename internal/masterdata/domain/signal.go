package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrUnknownSignal indicates a reading for a signal with no mapping or threshold template.
var ErrUnknownSignal = errors.New("masterdata: unknown signal")

// Signal identifies one measurable quantity on one asset/device pair.
type Signal struct {
	ID           uuid.UUID
	Key          string
	AssetID      uuid.UUID
	DeviceID     uuid.UUID
	SignalTypeID uuid.UUID
	Name         string
	Unit         string
}

// SignalType is a threshold template shared by many signals.
type SignalType struct {
	ID              uuid.UUID
	MinThreshold    float64
	MaxThreshold    float64
	DefaultRegister string
	DisplayUnit     string
}

// Validate checks the threshold pair.
func (t SignalType) Validate() error {
	if t.MinThreshold > t.MaxThreshold {
		return fmt.Errorf("signal type %s: min threshold %v above max %v", t.ID, t.MinThreshold, t.MaxThreshold)
	}
	return nil
}

// SignalMetadata bundles what the alert pipeline needs to evaluate one reading.
type SignalMetadata struct {
	Signal    Signal
	AssetName string
	Type      SignalType
}

// SignalReader is the read path over asset/device/signal metadata.
// Lookups return nil (or an empty name) when the row does not exist.
type SignalReader interface {
	GetSignalByID(ctx context.Context, id uuid.UUID) (*Signal, error)
	GetAssetName(ctx context.Context, assetID uuid.UUID) (string, error)
	// GetSignalType returns nil when the template is missing or signalID is no
	// longer mapped to it.
	GetSignalType(ctx context.Context, signalID, typeID uuid.UUID) (*SignalType, error)
}
