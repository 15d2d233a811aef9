package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

// SnapshotTransformer implements Transformer by parsing device payloads and
// rejecting locations that are not monitored.
type SnapshotTransformer struct {
	locations map[domain.LocationID]struct{}
}

// NewTransformer creates a SnapshotTransformer accepting the given locations.
func NewTransformer(locations []domain.LocationID) *SnapshotTransformer {
	set := make(map[domain.LocationID]struct{}, len(locations))
	for _, loc := range locations {
		set[loc] = struct{}{}
	}
	return &SnapshotTransformer{locations: set}
}

// Transform parses the message value. The broker timestamp stands in for the
// receipt time of payloads without one.
func (t *SnapshotTransformer) Transform(_ context.Context, raw domain.RawMessage) (domain.Snapshot, error) {
	snap, err := domain.ParseSnapshot(raw.Value, raw.Timestamp)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if _, ok := t.locations[snap.Location]; !ok {
		return domain.Snapshot{}, &domain.ValidationError{
			Field:  "location",
			Reason: fmt.Sprintf("unknown location %d", snap.Location),
		}
	}
	return snap, nil
}
