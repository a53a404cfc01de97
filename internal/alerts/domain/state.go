package alerts

import "math"

// Status names the violated bound.
type Status string

const (
	StatusHigh Status = "HIGH"
	StatusLow  Status = "LOW"
)

// Transition is the state machine decision for one reading.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionContinue Transition = "continue"
	TransitionResolve  Transition = "resolve"
	TransitionNoop     Transition = "noop"
)

// InRange reports whether value lies within [min, max]; both bounds are inclusive.
func InRange(value, min, max float64) bool {
	return value >= min && value <= max
}

// Decide picks the transition for a reading given whether the signal has an active alert.
func Decide(active bool, value, min, max float64) Transition {
	inRange := InRange(value, min, max)
	switch {
	case !active && !inRange:
		return TransitionStart
	case active && !inRange:
		return TransitionContinue
	case active && inRange:
		return TransitionResolve
	default:
		return TransitionNoop
	}
}

// Breach returns the violated side and its bound. Values above max are HIGH, anything else LOW.
func Breach(value, min, max float64) (Status, float64) {
	if value > max {
		return StatusHigh, max
	}
	return StatusLow, min
}

// DeviationPercent is |value-bound| / bound * 100 rounded to one decimal.
// A zero bound divides by 1.
func DeviationPercent(value, bound float64) float64 {
	divisor := bound
	if divisor == 0 {
		divisor = 1
	}
	percent := math.Abs(value-bound) / divisor * 100
	return math.Round(percent*10) / 10
}
