package pipeline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/water-quality-service/internal/domain"
	"github.com/couchcryptid/water-quality-service/internal/pipeline"
)

// Expected severities per fixture row; parameters not listed are unflagged.
var fixtureSeverities = []map[string]domain.Severity{
	{},
	{"orp": domain.SeverityMinor},
	{"orp": domain.SeverityMajor},
	{"tds": domain.SeverityMinor}, // ph 6.1 is outside the safe range but below every tier
	{"ph": domain.SeverityAverage, "tds": domain.SeverityAverage, "turbidity": domain.SeverityMinor},
	{"ph": domain.SeverityMajor, "tds": domain.SeverityMajor, "turbidity": domain.SeverityMajor},
	{"tds": domain.SeverityMinor, "temperature": domain.SeverityMinor, "water_level": domain.SeverityMinor},
	{"ph": domain.SeverityMinor, "orp": domain.SeverityMinor, "tds": domain.SeverityAverage, "temperature": domain.SeverityAverage, "water_level": domain.SeverityAverage},
	{"ph": domain.SeverityMajor, "orp": domain.SeverityMajor, "tds": domain.SeverityMajor, "temperature": domain.SeverityMajor, "water_level": domain.SeverityMajor},
}

func TestSnapshotTransformer_WithMockJSONData(t *testing.T) {
	payloads := readMockPayloads(t)
	require.Len(t, payloads, len(fixtureSeverities))

	tfm := pipeline.NewTransformer([]domain.LocationID{1, 2, 3})
	catalog := domain.DefaultCatalog()

	for i, payload := range payloads {
		snap, err := tfm.Transform(context.Background(), domain.RawMessage{Value: payload, Topic: "water-readings"})
		require.NoError(t, err, "row %d", i)
		require.Len(t, snap.Values, len(catalog.Names()), "row %d", i)

		for _, r := range snap.Readings() {
			spec, ok := catalog.Lookup(r.Parameter)
			require.True(t, ok, "row %d: %s", i, r.Parameter)
			got := domain.Classify(spec, r.Value).Severity
			assert.Equal(t, fixtureSeverities[i][r.Parameter], got, "row %d: %s=%v", i, r.Parameter, r.Value)
		}
	}
}

func TestSnapshotTransformer_MockDataGap(t *testing.T) {
	payloads := readMockPayloads(t)
	snap, err := pipeline.NewTransformer([]domain.LocationID{2}).Transform(context.Background(), domain.RawMessage{Value: payloads[3]})
	require.NoError(t, err)

	spec, _ := domain.DefaultCatalog().Lookup("ph")
	c := domain.Classify(spec, snap.Values["ph"])
	assert.False(t, c.InRange())
	assert.False(t, c.Flagged())
	assert.Equal(t, domain.StatusUnranked, c.Status)
}

func readMockPayloads(t *testing.T) []json.RawMessage {
	t.Helper()

	path := filepath.Join("..", "..", "data", "mock", "device_snapshots.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rows []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}
