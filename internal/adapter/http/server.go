package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/water-quality-service/internal/domain"
	"github.com/couchcryptid/water-quality-service/internal/observability"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ReadingStore is the reading persistence used by the API.
type ReadingStore interface {
	Save(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error)
	Latest(ctx context.Context) ([]domain.Snapshot, error)
	History(ctx context.Context, loc domain.LocationID, parameter string, since time.Time) ([]domain.Reading, error)
}

// AlertQuerier lists recorded alerts.
type AlertQuerier interface {
	Query(ctx context.Context, f domain.AlertFilter) ([]domain.Alert, error)
}

// Deps wires the API to the rest of the service. AlertStream is optional.
type Deps struct {
	Readings    ReadingStore
	Alerts      AlertQuerier
	Catalog     *domain.Catalog
	Locations   []domain.LocationID
	Ready       ReadinessChecker
	AlertStream http.Handler
	Metrics     *observability.Metrics
}

// Server exposes the ingest, query, and dashboard API plus health, readiness,
// and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	locations  map[domain.LocationID]struct{}
	logger     *slog.Logger
}

// NewServer creates the HTTP server and its routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:      deps,
		locations: make(map[domain.LocationID]struct{}, len(deps.Locations)),
		logger:    logger,
	}
	for _, loc := range deps.Locations {
		s.locations[loc] = struct{}{}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", handleReady(deps.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/readings", func(r chi.Router) {
		r.Post("/", s.handleIngest)
		r.Get("/latest", s.handleLatest)
		r.Get("/history", s.handleHistory)
	})
	r.Get("/alerts", s.handleAlerts)
	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/heatmap", s.handleHeatmap)
		r.Get("/series", s.handleSeries)
	})
	if deps.AlertStream != nil {
		r.Get("/ws/alerts", deps.AlertStream.ServeHTTP)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// errorBody is the payload of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
