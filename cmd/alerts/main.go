// Command alerts lists recorded alerts from the monitor's alert store.
//
// Usage:
//
//	go run ./cmd/alerts -db alerts.db -location 2 -severity major -since 24h
//	go run ./cmd/alerts -db alerts.db -backfill
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/couchcryptid/water-quality-service/internal/adapter/sqlite"
	"github.com/couchcryptid/water-quality-service/internal/alerting"
	"github.com/couchcryptid/water-quality-service/internal/config"
	"github.com/couchcryptid/water-quality-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	dbPath := flag.String("db", "alerts.db", "alert store path")
	location := flag.Int("location", 0, "only this location (0 for all)")
	parameter := flag.String("parameter", "", "only this parameter")
	severity := flag.String("severity", "", "only this severity: minor, average or major")
	since := flag.Duration("since", 0, "only alerts detected within this long ago (0 for all)")
	limit := flag.Int("limit", 50, "maximum alerts to list")
	asJSON := flag.Bool("json", false, "print JSON instead of a table")
	backfill := flag.Bool("backfill", false, "assign severities to alerts recorded without one, then exit")
	parameters := flag.String("parameters", "", "parameter catalog file used by -backfill")
	flag.Parse()

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	if *backfill {
		catalog, err := config.LoadCatalog(*parameters)
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		n, err := alerting.Backfill(ctx, store, catalog, logger)
		if err != nil {
			return err
		}
		fmt.Printf("assigned severity to %d alerts\n", n)
		return nil
	}

	sev, err := domain.ParseSeverity(*severity)
	if err != nil {
		return err
	}
	f := domain.AlertFilter{Parameter: domain.CanonicalParameter(*parameter), Severity: sev, Limit: *limit}
	if *location > 0 {
		loc := domain.LocationID(*location)
		f.Location = &loc
	}
	if *since > 0 {
		f.Since = time.Now().Add(-*since)
	}

	alerts, err := store.Query(ctx, f)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(alerts)
	}
	return printTable(alerts)
}

func printTable(alerts []domain.Alert) error {
	if len(alerts) == 0 {
		fmt.Println("no alerts")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DETECTED\tLOCATION\tPARAMETER\tVALUE\tSTATUS\tSEVERITY\tSAFE RANGE")
	for _, a := range alerts {
		sev := string(a.Severity)
		if sev == "" {
			sev = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%g–%g\n",
			humanize.Time(a.DetectedAt), a.Location, a.Parameter,
			strconv.FormatFloat(a.Value, 'f', -1, 64), a.Status.Label(), sev, a.SafeMin, a.SafeMax)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%s alerts\n", humanize.Comma(int64(len(alerts))))
	return nil
}
