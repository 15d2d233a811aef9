package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/water-quality-service/internal/adapter/http"
	"github.com/couchcryptid/water-quality-service/internal/domain"
	"github.com/couchcryptid/water-quality-service/internal/observability"
)

// --- fakes ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type memReadings struct {
	mu      sync.Mutex
	latest  map[domain.LocationID]domain.Snapshot
	history []domain.Snapshot
	err     error
}

func newMemReadings() *memReadings {
	return &memReadings{latest: map[domain.LocationID]domain.Snapshot{}}
}

func (m *memReadings) Save(_ context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Snapshot{}, m.err
	}
	m.latest[snap.Location] = snap
	m.history = append(m.history, snap)
	return snap, nil
}

func (m *memReadings) Latest(context.Context) ([]domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Snapshot, 0, len(m.latest))
	for _, s := range m.latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}

func (m *memReadings) History(_ context.Context, loc domain.LocationID, parameter string, since time.Time) ([]domain.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []domain.Reading{}
	for _, s := range m.history {
		v, ok := s.Values[parameter]
		if s.Location != loc || !ok || s.Timestamp.Before(since) {
			continue
		}
		out = append(out, domain.Reading{Location: loc, Parameter: parameter, Value: v, Timestamp: s.Timestamp})
	}
	return out, nil
}

type recordingAlerts struct {
	filter domain.AlertFilter
	alerts []domain.Alert
}

func (r *recordingAlerts) Query(_ context.Context, f domain.AlertFilter) ([]domain.Alert, error) {
	r.filter = f
	return r.alerts, nil
}

var t0 = time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	srv      *httpadapter.Server
	readings *memReadings
	alerts   *recordingAlerts
}

func newFixture(t *testing.T, readyErr error) *fixture {
	t.Helper()
	f := &fixture{readings: newMemReadings(), alerts: &recordingAlerts{}}
	f.srv = httpadapter.NewServer(":0", httpadapter.Deps{
		Readings:  f.readings,
		Alerts:    f.alerts,
		Catalog:   domain.DefaultCatalog(),
		Locations: []domain.LocationID{1, 2, 3},
		Ready:     &mockReadiness{err: readyErr},
		AlertStream: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Metrics: observability.NewMetricsForTesting(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := newFixture(t, fmt.Errorf("not ready yet")).do(http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAlertStreamRoute(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/ws/alerts", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

// --- ingest ---

func TestIngest_StoresAndReturnsLatest(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/readings", `{"location":2,"pH":7.1,"orp":650,"timestamp":"2024-05-03T09:15:00Z"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[domain.Snapshot](t, rec)
	assert.Equal(t, domain.LocationID(2), got.Location)
	assert.Equal(t, map[string]float64{"ph": 7.1, "orp": 650}, got.Values)
	assert.Equal(t, time.Date(2024, 5, 3, 9, 15, 0, 0, time.UTC), got.Timestamp)
	assert.Contains(t, f.readings.latest, domain.LocationID(2))
}

func TestIngest_DefaultsTimestampToReceiptTime(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(t0)
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	rec := newFixture(t, nil).do(http.MethodPost, "/readings", `{"location":1,"tds":240}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, t0, decode[domain.Snapshot](t, rec).Timestamp)
}

func TestIngest_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		details string
	}{
		{"malformed json", `{"location":`, "parse payload"},
		{"missing location", `{"ph":7}`, "location: is required"},
		{"unknown location", `{"location":9,"ph":7}`, "unknown location 9"},
		{"non-numeric value", `{"location":1,"ph":"neutral"}`, "ph: must be a number"},
		{"timestamp without Z", `{"location":1,"ph":7,"timestamp":"2024-05-03T09:15:00+02:00"}`, "trailing Z"},
		{"no values", `{"location":1}`, "no parameter values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(http.MethodPost, "/readings", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[map[string]string](t, rec)
			assert.Equal(t, "invalid snapshot", body["error"])
			assert.Contains(t, body["details"], tt.details)
			assert.Empty(t, f.readings.latest)
		})
	}
}

func TestIngest_BodyReadFailures(t *testing.T) {
	t.Run("oversized body", func(t *testing.T) {
		f := newFixture(t, nil)
		body := `{"location":1,"ph":7,"note":"` + strings.Repeat("x", 1<<20) + `"}`

		rec := f.do(http.MethodPost, "/readings", body)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Empty(t, f.readings.latest)
	})

	t.Run("client disconnect", func(t *testing.T) {
		f := newFixture(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/readings",
			iotest.ErrReader(errors.New("connection reset by peer")))
		rec := httptest.NewRecorder()

		f.srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[map[string]string](t, rec)["details"], "connection reset")
		assert.Empty(t, f.readings.latest)
	})
}

func TestIngest_StoreFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.readings.err = errors.New("database not open")

	rec := f.do(http.MethodPost, "/readings", `{"location":1,"ph":7}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "store snapshot failed", body["error"])
	assert.Equal(t, "database not open", body["details"])
}

// --- queries ---

func seedReadings(t *testing.T, f *fixture) {
	t.Helper()
	for i, body := range []string{
		`{"location":1,"orp":650,"ph":7,"timestamp":"2024-05-03T09:00:00Z"}`,
		`{"location":1,"orp":920,"ph":7,"timestamp":"2024-05-03T09:05:00Z"}`,
		`{"location":1,"orp":1150,"ph":6.1,"timestamp":"2024-05-03T09:10:00Z"}`,
		`{"location":2,"orp":500,"timestamp":"2024-05-03T09:10:00Z"}`,
	} {
		rec := f.do(http.MethodPost, "/readings", body)
		require.Equal(t, http.StatusCreated, rec.Code, "seed %d: %s", i, rec.Body.String())
	}
}

func TestLatest(t *testing.T) {
	f := newFixture(t, nil)
	seedReadings(t, f)

	rec := f.do(http.MethodGet, "/readings/latest", "")

	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[[]domain.Snapshot](t, rec)
	require.Len(t, latest, 2)
	assert.Equal(t, 1150.0, latest[0].Values["orp"])
	assert.Equal(t, domain.LocationID(2), latest[1].Location)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, nil)
	seedReadings(t, f)

	rec := f.do(http.MethodGet, "/readings/history?location=1&parameter=ORP&since=2024-05-03T09:05:00Z", "")

	require.Equal(t, http.StatusOK, rec.Code)
	readings := decode[[]domain.Reading](t, rec)
	require.Len(t, readings, 2)
	assert.Equal(t, 920.0, readings[0].Value)
	assert.Equal(t, 1150.0, readings[1].Value)
}

func TestHistory_BadQuery(t *testing.T) {
	f := newFixture(t, nil)
	for _, target := range []string{
		"/readings/history?parameter=orp",
		"/readings/history?location=one&parameter=orp",
		"/readings/history?location=1",
		"/readings/history?location=1&parameter=orp&since=yesterday",
	} {
		rec := f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "invalid query", decode[map[string]string](t, rec)["error"], target)
	}
}

func TestAlerts_ParsesFilter(t *testing.T) {
	f := newFixture(t, nil)
	f.alerts.alerts = []domain.Alert{{ID: "a-1", Location: 1, Parameter: "orp", Severity: domain.SeverityMajor}}

	rec := f.do(http.MethodGet,
		"/alerts?location=1&parameter=ORP&severity=Major&since=2024-05-03T09:00:00Z&until=2024-05-03T10:00:00Z&limit=5", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a-1", decode[[]domain.Alert](t, rec)[0].ID)

	got := f.alerts.filter
	require.NotNil(t, got.Location)
	assert.Equal(t, domain.LocationID(1), *got.Location)
	assert.Equal(t, "orp", got.Parameter)
	assert.Equal(t, domain.SeverityMajor, got.Severity)
	assert.Equal(t, t0, got.Since)
	assert.Equal(t, t0.Add(time.Hour), got.Until)
	assert.Equal(t, 5, got.Limit)
}

func TestAlerts_DefaultLimit(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/alerts", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.alerts.filter.Location)
	assert.Equal(t, 100, f.alerts.filter.Limit)
}

func TestAlerts_BadQuery(t *testing.T) {
	f := newFixture(t, nil)
	for _, target := range []string{
		"/alerts?severity=catastrophic",
		"/alerts?limit=0",
		"/alerts?limit=5000",
		"/alerts?since=2024-05-03T10:00:00Z&until=2024-05-03T09:00:00Z",
		"/alerts?location=x",
	} {
		rec := f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHeatmap(t *testing.T) {
	f := newFixture(t, nil)
	seedReadings(t, f)

	rec := f.do(http.MethodGet, "/dashboard/heatmap", "")

	require.Equal(t, http.StatusOK, rec.Code)
	cells := decode[[]domain.HeatmapCell](t, rec)
	require.Len(t, cells, 3)

	assert.Equal(t, "orp", cells[0].Parameter)
	assert.Equal(t, domain.SeverityMajor, cells[0].Severity)
	assert.True(t, cells[0].Highlight)

	assert.Equal(t, "ph", cells[1].Parameter)
	assert.Equal(t, domain.SeverityNone, cells[1].Severity, "gap value has no severity")
	assert.True(t, cells[1].Highlight, "gap value is still highlighted")

	assert.Equal(t, domain.LocationID(2), cells[2].Location)
	assert.False(t, cells[2].Highlight)
}

func TestSeries(t *testing.T) {
	f := newFixture(t, nil)
	seedReadings(t, f)

	rec := f.do(http.MethodGet, "/dashboard/series?location=1&parameter=orp", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Unit    string               `json:"unit"`
		SafeMin float64              `json:"safe_min"`
		SafeMax float64              `json:"safe_max"`
		Points  []domain.SeriesPoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "mV", body.Unit)
	assert.Equal(t, 200.0, body.SafeMin)
	assert.Equal(t, 800.0, body.SafeMax)

	colors := make([]string, 0, len(body.Points))
	for _, p := range body.Points {
		colors = append(colors, p.Color)
	}
	assert.Equal(t, []string{domain.ColorNormal, domain.ColorMinor, domain.ColorMajor}, colors)
}

func TestSeries_UnknownParameter(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/dashboard/series?location=1&parameter=salinity", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown parameter", decode[map[string]string](t, rec)["error"])
}

func TestQueries_StoreFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.readings.err = errors.New("bolt closed")

	for _, target := range []string{"/readings/latest", "/dashboard/heatmap", "/readings/history?location=1&parameter=orp"} {
		rec := f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, target)
		assert.Equal(t, "bolt closed", decode[map[string]string](t, rec)["details"], target)
	}
}
