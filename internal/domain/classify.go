package domain

import "strings"

// Status is the directional description of a classified value.
type Status string

const (
	// StatusUnranked marks a value outside the safe range that clears no tier.
	StatusUnranked       Status = ""
	StatusNormal         Status = "normal"
	StatusSlightlyLow    Status = "slightly_low"
	StatusTooLow         Status = "too_low"
	StatusCriticallyLow  Status = "critically_low"
	StatusSlightlyHigh   Status = "slightly_high"
	StatusTooHigh        Status = "too_high"
	StatusCriticallyHigh Status = "critically_high"
)

// Label returns the human-readable form, e.g. "critically high".
func (s Status) Label() string {
	if s == StatusUnranked {
		return "out of range"
	}
	return strings.ReplaceAll(string(s), "_", " ")
}

// Direction tells which side of the safe range a value fell on.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionLow
	DirectionHigh
)

// Classification is the result of Classify.
type Classification struct {
	Severity  Severity
	Status    Status
	Direction Direction
	// Deviation is the distance past the nearest safe bound; zero in range.
	Deviation float64
}

// InRange reports whether the value was inside the safe range.
func (c Classification) InRange() bool { return c.Direction == DirectionNone }

// Flagged reports whether a severity tier was assigned.
func (c Classification) Flagged() bool { return c.Severity != SeverityNone }

// ladder is walked from most to least severe; the first tier met wins.
var ladder = []Severity{SeverityMajor, SeverityAverage, SeverityMinor}

var statusByTier = map[Direction]map[Severity]Status{
	DirectionLow: {
		SeverityMinor:   StatusSlightlyLow,
		SeverityAverage: StatusTooLow,
		SeverityMajor:   StatusCriticallyLow,
	},
	DirectionHigh: {
		SeverityMinor:   StatusSlightlyHigh,
		SeverityAverage: StatusTooHigh,
		SeverityMajor:   StatusCriticallyHigh,
	},
}

// Classify maps a value to a severity tier and directional status. It is pure
// and deterministic.
func Classify(spec ParameterSpec, value float64) Classification {
	if spec.SafeRange.Contains(value) {
		return Classification{Severity: SeverityNone, Status: StatusNormal}
	}

	dir := DirectionHigh
	deviation := value - spec.SafeRange.Max
	if value < spec.SafeRange.Min {
		dir = DirectionLow
		deviation = spec.SafeRange.Min - value
	}

	c := Classification{Direction: dir, Deviation: deviation, Status: StatusUnranked}
	thresholds := make([]float64, len(ladder))
	for i, tier := range ladder {
		thresholds[i] = spec.Thresholds.For(tier).High
		if dir == DirectionLow {
			thresholds[i] = spec.Thresholds.For(tier).Low
		}
		if thresholds[i] <= 0 {
			return c // a zero tier disables the whole side
		}
	}
	for i, tier := range ladder {
		if deviation >= thresholds[i] {
			c.Severity = tier
			c.Status = statusByTier[dir][tier]
			return c
		}
	}
	return c
}
