// Package sqlite stores alerts in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id          TEXT PRIMARY KEY,
	location    INTEGER NOT NULL,
	parameter   TEXT NOT NULL,
	value       REAL NOT NULL,
	status      TEXT NOT NULL,
	severity    TEXT,
	safe_min    REAL NOT NULL,
	safe_max    REAL NOT NULL,
	detected_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_key ON alerts(location, parameter, severity, detected_at);
CREATE INDEX IF NOT EXISTS idx_alerts_detected_at ON alerts(detected_at);
`

const alertColumns = "id, location, parameter, value, status, severity, safe_min, safe_max, detected_at"

// AlertStore implements the alert history on SQLite. Times are stored as
// Unix nanoseconds.
type AlertStore struct {
	db *sql.DB
}

// Open opens (or creates) the alert database at path.
func Open(path string) (*AlertStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open alert store: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize alert store: %w", err)
	}
	return &AlertStore{db: db}, nil
}

// Close closes the database.
func (s *AlertStore) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *AlertStore) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping alert store: %w", err)
	}
	return nil
}

// InsertAlert records a new alert. An empty severity is stored as NULL.
func (s *AlertStore) InsertAlert(ctx context.Context, a domain.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		int(a.Location),
		a.Parameter,
		a.Value,
		string(a.Status),
		sql.NullString{String: string(a.Severity), Valid: a.Severity != domain.SeverityNone},
		a.SafeMin,
		a.SafeMax,
		a.DetectedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecentAlert reports whether an alert with the same key was detected strictly
// after since.
func (s *AlertStore) RecentAlert(ctx context.Context, loc domain.LocationID, parameter string, severity domain.Severity, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE location = ? AND parameter = ? AND severity = ? AND detected_at > ?
		)`,
		int(loc), parameter, string(severity), since.UnixNano(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query recent alert: %w", err)
	}
	return exists, nil
}

// Query returns the alerts matching f, newest first.
func (s *AlertStore) Query(ctx context.Context, f domain.AlertFilter) ([]domain.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.Location != nil {
		where = append(where, "location = ?")
		args = append(args, int(*f.Location))
	}
	if f.Parameter != "" {
		where = append(where, "parameter = ?")
		args = append(args, f.Parameter)
	}
	if f.Severity != domain.SeverityNone {
		where = append(where, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if !f.Since.IsZero() {
		where = append(where, "detected_at >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		where = append(where, "detected_at < ?")
		args = append(args, f.Until.UnixNano())
	}

	query := "SELECT " + alertColumns + " FROM alerts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY detected_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryAlerts(ctx, query, args...)
}

// MissingSeverity returns legacy alerts stored without a severity.
func (s *AlertStore) MissingSeverity(ctx context.Context) ([]domain.Alert, error) {
	return s.queryAlerts(ctx,
		"SELECT "+alertColumns+" FROM alerts WHERE severity IS NULL OR severity = '' ORDER BY detected_at")
}

// SetSeverity assigns a severity to an existing alert.
func (s *AlertStore) SetSeverity(ctx context.Context, id string, severity domain.Severity) error {
	res, err := s.db.ExecContext(ctx, "UPDATE alerts SET severity = ? WHERE id = ?", string(severity), id)
	if err != nil {
		return fmt.Errorf("set severity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set severity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set severity: alert %s not found", id)
	}
	return nil
}

func (s *AlertStore) queryAlerts(ctx context.Context, query string, args ...any) ([]domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []domain.Alert{}
	for rows.Next() {
		var (
			a        domain.Alert
			loc      int
			status   string
			severity sql.NullString
			detected int64
		)
		if err := rows.Scan(&a.ID, &loc, &a.Parameter, &a.Value, &status, &severity,
			&a.SafeMin, &a.SafeMax, &detected); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Location = domain.LocationID(loc)
		a.Status = domain.Status(status)
		if severity.Valid {
			a.Severity = domain.Severity(severity.String)
		}
		a.DetectedAt = time.Unix(0, detected).UTC()
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
