package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Reading is one decoded queue message.
type Reading struct {
	SignalID  uuid.UUID
	Value     float64
	Timestamp time.Time
}
