package domain

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// LocationID identifies a physical monitoring site.
type LocationID int

func (l LocationID) String() string { return strconv.Itoa(int(l)) }

// RawMessage represents an unprocessed snapshot message from the source topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Reading is one observation of one parameter. It is never mutated once recorded.
type Reading struct {
	Location  LocationID `json:"location"`
	Parameter string     `json:"parameter"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"timestamp"`
}

// Snapshot is the set of parameter values a device posted in one cycle. It is
// also the shape of the per-location "latest" document.
type Snapshot struct {
	Location  LocationID         `json:"location"`
	Values    map[string]float64 `json:"values"`
	Timestamp time.Time          `json:"timestamp"`
}

// Readings expands the snapshot into one Reading per parameter, ordered by name.
func (s Snapshot) Readings() []Reading {
	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Reading, 0, len(names))
	for _, name := range names {
		out = append(out, Reading{
			Location:  s.Location,
			Parameter: name,
			Value:     s.Values[name],
			Timestamp: s.Timestamp,
		})
	}
	return out
}

// Alert is a recorded threshold crossing.
type Alert struct {
	ID         string     `json:"id"`
	Location   LocationID `json:"location"`
	Parameter  string     `json:"parameter"`
	Value      float64    `json:"value"`
	Status     Status     `json:"status"`
	Severity   Severity   `json:"severity,omitempty"`
	SafeMin    float64    `json:"safe_min"`
	SafeMax    float64    `json:"safe_max"`
	DetectedAt time.Time  `json:"detected_at"`
}

// Message renders the alert for humans, e.g.
// "location 2: orp critically high (1150 mV, safe 200–800)".
func (a Alert) Message(unit string) string {
	value := strconv.FormatFloat(a.Value, 'f', -1, 64)
	if unit != "" {
		value += " " + unit
	}
	return fmt.Sprintf("location %d: %s %s (%s, safe %g–%g)",
		a.Location, a.Parameter, a.Status.Label(), value, a.SafeMin, a.SafeMax)
}

// AlertFilter selects alerts. Zero fields match everything; the time window is
// [Since, Until). Parameter must be in canonical form (see CanonicalParameter).
type AlertFilter struct {
	Location  *LocationID
	Parameter string
	Severity  Severity
	Since     time.Time
	Until     time.Time
	Limit     int
}
