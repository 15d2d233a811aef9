package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

const (
	maxBodyBytes      = 1 << 20
	defaultAlertLimit = 100
	maxAlertLimit     = 1000
	sourceHTTP        = "http"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.deps.Metrics.SnapshotsRejected.WithLabelValues(sourceHTTP).Inc()
		status := http.StatusBadRequest
		if tooLarge := new(http.MaxBytesError); errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, "invalid snapshot", err.Error())
		return
	}

	snap, err := domain.ParseSnapshot(body, time.Time{})
	if err == nil {
		if _, ok := s.locations[snap.Location]; !ok {
			err = &domain.ValidationError{Field: "location", Reason: fmt.Sprintf("unknown location %d", snap.Location)}
		}
	}
	if err != nil {
		s.deps.Metrics.SnapshotsRejected.WithLabelValues(sourceHTTP).Inc()
		writeError(w, http.StatusBadRequest, "invalid snapshot", err.Error())
		return
	}

	stored, err := s.deps.Readings.Save(r.Context(), snap)
	if err != nil {
		s.logger.Error("store snapshot failed", "error", err, "location", snap.Location)
		writeError(w, http.StatusInternalServerError, "store snapshot failed", err.Error())
		return
	}
	s.deps.Metrics.SnapshotsIngested.WithLabelValues(sourceHTTP).Inc()
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := s.deps.Readings.Latest(r.Context())
	if err != nil {
		s.internalError(w, "load latest snapshots failed", err)
		return
	}
	if latest == nil {
		latest = []domain.Snapshot{}
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := requiredLocation(q.Get("location"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	param, err := requiredParam(q.Get("parameter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	since, err := optionalTime("since", q.Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	readings, err := s.deps.Readings.History(r.Context(), loc, param, since)
	if err != nil {
		s.internalError(w, "load history failed", err)
		return
	}
	if readings == nil {
		readings = []domain.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	f, err := parseAlertFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	alerts, err := s.deps.Alerts.Query(r.Context(), f)
	if err != nil {
		s.internalError(w, "query alerts failed", err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	latest, err := s.deps.Readings.Latest(r.Context())
	if err != nil {
		s.internalError(w, "load latest snapshots failed", err)
		return
	}
	writeJSON(w, http.StatusOK, domain.BuildHeatmap(s.deps.Catalog, latest))
}

type seriesResponse struct {
	Location  domain.LocationID    `json:"location"`
	Parameter string               `json:"parameter"`
	Unit      string               `json:"unit"`
	SafeMin   float64              `json:"safe_min"`
	SafeMax   float64              `json:"safe_max"`
	Points    []domain.SeriesPoint `json:"points"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := requiredLocation(q.Get("location"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	param, err := requiredParam(q.Get("parameter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	spec, ok := s.deps.Catalog.Lookup(param)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown parameter", param)
		return
	}
	since, err := optionalTime("since", q.Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	readings, err := s.deps.Readings.History(r.Context(), loc, spec.Name, since)
	if err != nil {
		s.internalError(w, "load history failed", err)
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		Location:  loc,
		Parameter: spec.Name,
		Unit:      spec.Unit,
		SafeMin:   spec.SafeRange.Min,
		SafeMax:   spec.SafeRange.Max,
		Points:    domain.BuildSeries(spec, readings),
	})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg, err.Error())
}

func parseAlertFilter(r *http.Request) (domain.AlertFilter, error) {
	q := r.URL.Query()
	f := domain.AlertFilter{
		Parameter: domain.CanonicalParameter(q.Get("parameter")),
		Limit:     defaultAlertLimit,
	}

	if v := q.Get("location"); v != "" {
		loc, err := requiredLocation(v)
		if err != nil {
			return f, err
		}
		f.Location = &loc
	}
	sev, err := domain.ParseSeverity(q.Get("severity"))
	if err != nil {
		return f, err
	}
	f.Severity = sev

	if f.Since, err = optionalTime("since", q.Get("since")); err != nil {
		return f, err
	}
	if f.Until, err = optionalTime("until", q.Get("until")); err != nil {
		return f, err
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Until.After(f.Since) {
		return f, errors.New("until must be after since")
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxAlertLimit {
			return f, fmt.Errorf("limit must be between 1 and %d", maxAlertLimit)
		}
		f.Limit = n
	}
	return f, nil
}

func requiredLocation(v string) (domain.LocationID, error) {
	if v == "" {
		return 0, errors.New("location is required")
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("location must be an integer: %q", v)
	}
	return domain.LocationID(n), nil
}

func requiredParam(v string) (string, error) {
	v = domain.CanonicalParameter(v)
	if v == "" {
		return "", errors.New("parameter is required")
	}
	return v, nil
}

func optionalTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC 3339, e.g. 2024-05-03T09:15:00Z", name)
	}
	return t.UTC(), nil
}
