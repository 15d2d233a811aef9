package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	fieldLocation  = "location"
	fieldTimestamp = "timestamp"
)

// ValidationError describes a client mistake in a submitted snapshot.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid snapshot: " + e.Reason
	}
	return fmt.Sprintf("invalid snapshot: %s: %s", e.Field, e.Reason)
}

// ParseSnapshot decodes a device payload. receivedAt is used when the payload
// carries no timestamp. Parameter names are lower-cased; unknown parameters are
// kept and simply never classified.
func ParseSnapshot(data []byte, receivedAt time.Time) (Snapshot, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Snapshot{}, &ValidationError{Reason: fmt.Sprintf("parse payload: %v", err)}
	}
	if fields == nil {
		return Snapshot{}, &ValidationError{Reason: "payload must be a JSON object"}
	}

	rawLoc, ok := fields[fieldLocation]
	if !ok {
		return Snapshot{}, &ValidationError{Field: fieldLocation, Reason: "is required"}
	}
	var loc int
	if err := json.Unmarshal(rawLoc, &loc); err != nil {
		return Snapshot{}, &ValidationError{Field: fieldLocation, Reason: "must be an integer"}
	}

	ts, err := parseTimestamp(fields[fieldTimestamp], receivedAt)
	if err != nil {
		return Snapshot{}, err
	}

	values := make(map[string]float64, len(fields))
	for key, raw := range fields {
		if key == fieldLocation || key == fieldTimestamp {
			continue
		}
		name := CanonicalParameter(key)
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return Snapshot{}, &ValidationError{Field: key, Reason: "must be a number"}
		}
		v, err := num.Float64()
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			return Snapshot{}, &ValidationError{Field: key, Reason: "must be a finite number"}
		}
		values[name] = v
	}
	if len(values) == 0 {
		return Snapshot{}, &ValidationError{Reason: "no parameter values"}
	}

	return Snapshot{Location: LocationID(loc), Values: values, Timestamp: ts}, nil
}

// parseTimestamp accepts an RFC 3339 UTC timestamp with a trailing "Z".
func parseTimestamp(raw json.RawMessage, receivedAt time.Time) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		if receivedAt.IsZero() {
			receivedAt = clock.Now()
		}
		return receivedAt.UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, &ValidationError{Field: fieldTimestamp, Reason: "must be a string"}
	}
	if !strings.HasSuffix(s, "Z") {
		return time.Time{}, &ValidationError{Field: fieldTimestamp, Reason: "must be UTC with a trailing Z"}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: fieldTimestamp, Reason: "must be ISO-8601, e.g. 2024-05-03T09:15:00Z"}
	}
	return ts.UTC(), nil
}
