package alerts

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Alert is the durable record of one out-of-range episode for one signal.
type Alert struct {
	ID               uuid.UUID `json:"alert_id"`
	SignalID         uuid.UUID `json:"signal_id"`
	AssetID          uuid.UUID `json:"asset_id"`
	AssetName        string    `json:"asset_name"`
	SignalName       string    `json:"signal_name"`
	MinThreshold     float64   `json:"min_threshold"`
	MaxThreshold     float64   `json:"max_threshold"`
	MinObservedValue float64   `json:"min_observed_value"`
	MaxObservedValue float64   `json:"max_observed_value"`
	StartUTC         time.Time `json:"alert_start_utc"`
	EndUTC           time.Time `json:"alert_end_utc,omitempty"`
	IsActive         bool      `json:"is_active"`
	IsAnalyzed       bool      `json:"is_analyzed"`
	CreatedUTC       time.Time `json:"created_utc"`
	UpdatedUTC       time.Time `json:"updated_utc"`
}

// Observe widens the observed extremes with value.
func (a *Alert) Observe(value float64, at time.Time) {
	if value < a.MinObservedValue {
		a.MinObservedValue = value
	}
	if value > a.MaxObservedValue {
		a.MaxObservedValue = value
	}
	a.UpdatedUTC = at.UTC()
}

// Close ends the episode at the given time.
func (a *Alert) Close(at time.Time) {
	a.IsActive = false
	a.EndUTC = at.UTC()
	a.UpdatedUTC = at.UTC()
}

// Validate checks alert invariants.
func (a Alert) Validate() error {
	if a.ID == uuid.Nil {
		return errors.New("alert: empty id")
	}
	if a.SignalID == uuid.Nil {
		return errors.New("alert: empty signal id")
	}
	if a.StartUTC.IsZero() {
		return errors.New("alert: empty start time")
	}
	if a.IsActive != a.EndUTC.IsZero() {
		return errors.New("alert: end time must be set exactly when inactive")
	}
	if a.MinObservedValue > a.MaxObservedValue {
		return errors.New("alert: observed min above observed max")
	}
	return nil
}

// ActiveState mirrors the statistics of an active alert.
type ActiveState struct {
	SignalID uuid.UUID
	AlertID  uuid.UUID
	StartUTC time.Time
	MinValue float64
	MaxValue float64
}

// StateOf builds the mirror entry of an alert row.
func StateOf(a Alert) ActiveState {
	return ActiveState{
		SignalID: a.SignalID,
		AlertID:  a.ID,
		StartUTC: a.StartUTC,
		MinValue: a.MinObservedValue,
		MaxValue: a.MaxObservedValue,
	}
}

// Widen returns the state with value folded into the extremes.
func (s ActiveState) Widen(value float64) ActiveState {
	if value < s.MinValue {
		s.MinValue = value
	}
	if value > s.MaxValue {
		s.MaxValue = value
	}
	return s
}

// Snapshot is what a resolved episode hands to notification fan-out.
type Snapshot struct {
	AlertID  uuid.UUID
	StartUTC time.Time
	EndUTC   time.Time
	MinValue float64
	MaxValue float64
}

// DurationSeconds returns the whole seconds between start and end.
func (s Snapshot) DurationSeconds() int64 {
	if s.EndUTC.Before(s.StartUTC) {
		return 0
	}
	return int64(s.EndUTC.Sub(s.StartUTC) / time.Second)
}

// Filter narrows alert listings. Zero fields are ignored.
type Filter struct {
	SignalID   uuid.UUID
	ActiveOnly bool
	From       time.Time
	To         time.Time
	Limit      int
}
