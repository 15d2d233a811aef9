// Command genmock simulates probe firmware. It generates snapshots for a set
// of locations from the parameter catalog and either POSTs them to a running
// monitor or writes them as a JSON fixture.
//
// Usage:
//
//	go run ./cmd/genmock -url http://localhost:8080/readings -interval 2s
//	go run ./cmd/genmock -out data/mock/device_snapshots.json -count 3 -seed 42
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/couchcryptid/water-quality-service/internal/config"
	"github.com/couchcryptid/water-quality-service/internal/domain"
)

// fixtureStart anchors generated fixture timestamps so output is reproducible.
var fixtureStart = time.Date(2024, time.May, 3, 9, 0, 0, 0, time.UTC)

type options struct {
	url        string
	out        string
	locations  []domain.LocationID
	interval   time.Duration
	count      int
	excursion  float64
	seed       uint64
	parameters string
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var opts options
	locs := flag.String("locations", "1,2,3", "comma-separated location ids")
	flag.StringVar(&opts.url, "url", "http://localhost:8080/readings", "ingest endpoint")
	flag.StringVar(&opts.out, "out", "", "write a fixture file instead of posting")
	flag.DurationVar(&opts.interval, "interval", 2*time.Second, "delay between rounds when posting")
	flag.IntVar(&opts.count, "count", 0, "rounds to generate (0 posts forever)")
	flag.Float64Var(&opts.excursion, "excursion", 0.15, "probability a value leaves its safe range")
	flag.Uint64Var(&opts.seed, "seed", 0, "random seed (0 uses the current time)")
	flag.StringVar(&opts.parameters, "parameters", "", "parameter catalog file (defaults to the built-in catalog)")
	flag.Parse()

	var err error
	if opts.locations, err = parseLocations(*locs); err != nil {
		return err
	}
	if opts.excursion < 0 || opts.excursion > 1 {
		return fmt.Errorf("-excursion must be within [0, 1], got %g", opts.excursion)
	}
	if opts.seed == 0 {
		opts.seed = uint64(time.Now().UnixNano())
	}

	catalog, err := config.LoadCatalog(opts.parameters)
	if err != nil {
		return err
	}
	sim := newSimulator(catalog, opts.seed, opts.excursion)

	if opts.out != "" {
		if opts.count <= 0 {
			opts.count = 3
		}
		return writeFixture(opts, sim)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return post(ctx, opts, sim)
}

func writeFixture(opts options, sim *simulator) error {
	payloads := make([]map[string]any, 0, opts.count*len(opts.locations))
	for _, loc := range opts.locations {
		for i := range opts.count {
			ts := fixtureStart.Add(time.Duration(i) * 5 * time.Minute)
			payloads = append(payloads, sim.payload(loc, ts))
		}
	}

	data, err := json.MarshalIndent(payloads, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(opts.out, append(data, '\n'), 0o644); err != nil { //nolint:gosec // fixture file
		return fmt.Errorf("write fixture: %w", err)
	}
	log.Printf("wrote %d snapshots (%s) to %s", len(payloads), humanize.Bytes(uint64(len(data))), opts.out)
	return nil
}

func post(ctx context.Context, opts options, sim *simulator) error {
	client := &http.Client{Timeout: 5 * time.Second}
	var sent, failed int
	start := time.Now()

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

rounds:
	for round := 0; opts.count == 0 || round < opts.count; round++ {
		for _, loc := range opts.locations {
			if err := send(ctx, client, opts.url, sim.payload(loc, time.Now().UTC())); err != nil {
				if ctx.Err() != nil {
					break rounds
				}
				failed++
				log.Printf("location %d: %v", loc, err)
				continue
			}
			sent++
		}

		select {
		case <-ctx.Done():
			break rounds
		case <-ticker.C:
		}
	}

	log.Printf("sent %s snapshots (%d failed), started %s",
		humanize.Comma(int64(sent)), failed, humanize.Time(start))
	if sent == 0 && failed > 0 {
		return errors.New("no snapshots accepted")
	}
	return nil
}

func send(ctx context.Context, client *http.Client, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("post snapshot: unexpected status %s", resp.Status)
	}
	return nil
}

// simulator draws values around the middle of each safe range, occasionally
// pushing one past a severity tier.
type simulator struct {
	specs     []domain.ParameterSpec
	rng       *rand.Rand
	excursion float64
}

func newSimulator(catalog *domain.Catalog, seed uint64, excursion float64) *simulator {
	return &simulator{
		specs:     catalog.Specs(),
		rng:       rand.New(rand.NewPCG(seed, seed>>1)), //nolint:gosec // simulated data
		excursion: excursion,
	}
}

func (s *simulator) payload(loc domain.LocationID, ts time.Time) map[string]any {
	p := map[string]any{
		"location":  int(loc),
		"timestamp": ts.Format(time.RFC3339),
	}
	for _, spec := range s.specs {
		p[spec.Name] = s.value(spec)
	}
	return p
}

func (s *simulator) value(spec domain.ParameterSpec) float64 {
	safe := spec.SafeRange
	mid := (safe.Min + safe.Max) / 2
	half := (safe.Max - safe.Min) / 2

	if s.rng.Float64() >= s.excursion {
		return round(mid + (s.rng.Float64()*2-1)*half*0.8)
	}

	// Pick a tier, then land just past its deviation on a random side.
	tiers := []domain.Deviation{spec.Thresholds.Minor, spec.Thresholds.Average, spec.Thresholds.Major}
	dev := tiers[s.rng.IntN(len(tiers))]
	var v float64
	if s.rng.IntN(2) == 0 && dev.Low > 0 {
		v = safe.Min - dev.Low*(1+s.rng.Float64()*0.2)
	} else {
		v = safe.Max + dev.High*(1+s.rng.Float64()*0.2)
	}
	return round(math.Max(spec.ValidRange.Min, math.Min(spec.ValidRange.Max, v)))
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseLocations(s string) ([]domain.LocationID, error) {
	var out []domain.LocationID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid location %q", part)
		}
		out = append(out, domain.LocationID(n))
	}
	if len(out) == 0 {
		return nil, errors.New("-locations must name at least one location")
	}
	return out, nil
}
