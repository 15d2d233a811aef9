// Command validate checks a parameter catalog and a snapshot fixture before
// they are deployed: catalog structure, fixture parsing, fixture coverage of
// the catalog, and the severity mix the fixture produces.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -parameters deploy/parameters.yaml \
//	  -fixture data/mock/device_snapshots.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/water-quality-service/internal/config"
	"github.com/couchcryptid/water-quality-service/internal/domain"
)

// receivedAt stands in for the arrival time of payloads without a timestamp.
var receivedAt = time.Date(2024, time.May, 3, 9, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	parameters := flag.String("parameters", "", "parameter catalog file (defaults to the built-in catalog)")
	fixture := flag.String("fixture", "data/mock/device_snapshots.json", "JSON array of device payloads")
	flag.Parse()

	os.Exit(run(*parameters, *fixture))
}

func run(parametersPath, fixturePath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(receivedAt))
	defer domain.SetClock(nil)

	fmt.Println("=== Water Quality Data Validation ===")
	fmt.Println()

	catalog, err := config.LoadCatalog(parametersPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load catalog: %v\n", err)
		return 1
	}

	payloads, err := loadPayloads(fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
		return 1
	}

	snapshots, parse := validateParsing(payloads)
	severities := map[domain.Severity]int{}
	phases := []*phase{
		validateCatalog(catalog),
		parse,
		validateCoverage(catalog, snapshots),
		classifyFixture(catalog, snapshots, severities),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	printLadder(catalog)

	fmt.Println()
	fmt.Printf("Catalog: %d parameters (%v)\n", len(catalog.Names()), catalog.Names())
	fmt.Printf("Fixture: %s payloads, %s parsed\n",
		humanize.Comma(int64(len(payloads))), humanize.Comma(int64(len(snapshots))))
	fmt.Printf("Flagged readings: %d minor, %d average, %d major, %d in range or unranked\n",
		severities[domain.SeverityMinor], severities[domain.SeverityAverage],
		severities[domain.SeverityMajor], severities[domain.SeverityNone])
	if span := fixtureSpan(snapshots); span > 0 {
		fmt.Printf("Fixture spans %s\n", span)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadPayloads(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, err
	}
	var payloads []json.RawMessage
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return payloads, nil
}

// ── Phases ──

// validateCatalog goes beyond the structural checks LoadCatalog already ran.
func validateCatalog(catalog *domain.Catalog) *phase {
	p := &phase{name: "Catalog consistency"}
	for _, s := range catalog.Specs() {
		if s.Unit == "" {
			p.errorf("%s: unit is empty", s.Name)
		}
		if !s.ValidRange.Contains(s.SafeRange.Min) || !s.ValidRange.Contains(s.SafeRange.Max) {
			p.errorf("%s: safe range %g–%g is not inside valid range %g–%g",
				s.Name, s.SafeRange.Min, s.SafeRange.Max, s.ValidRange.Min, s.ValidRange.Max)
		}
		t := s.Thresholds
		if t.Major.Low == 0 && t.Major.High == 0 {
			p.errorf("%s: no severity tier is enabled on either side", s.Name)
		}
		if s.SafeRange.Max+t.Major.High > s.ValidRange.Max {
			p.errorf("%s: major high tier starts at %g, above the valid max %g",
				s.Name, s.SafeRange.Max+t.Major.High, s.ValidRange.Max)
		}
		if t.Major.Low > 0 && s.SafeRange.Min-t.Major.Low < s.ValidRange.Min {
			p.errorf("%s: major low tier starts at %g, below the valid min %g",
				s.Name, s.SafeRange.Min-t.Major.Low, s.ValidRange.Min)
		}
	}
	return p
}

func validateParsing(payloads []json.RawMessage) ([]domain.Snapshot, *phase) {
	p := &phase{name: "Fixture payloads parse"}
	snapshots := make([]domain.Snapshot, 0, len(payloads))
	for i, raw := range payloads {
		snap, err := domain.ParseSnapshot(raw, receivedAt)
		if err != nil {
			p.errorf("payload %d: %v", i, err)
			continue
		}
		if snap.Location <= 0 {
			p.errorf("payload %d: location %d is not positive", i, snap.Location)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, p
}

func validateCoverage(catalog *domain.Catalog, snapshots []domain.Snapshot) *phase {
	p := &phase{name: "Fixture covers every catalog parameter"}
	seen := map[string]bool{}
	for _, snap := range snapshots {
		for name := range snap.Values {
			if _, ok := catalog.Lookup(name); !ok {
				p.errorf("location %d at %s: parameter %q is not in the catalog",
					snap.Location, snap.Timestamp.Format(time.RFC3339), name)
				continue
			}
			seen[name] = true
		}
	}
	for _, name := range catalog.Names() {
		if !seen[name] {
			p.errorf("catalog parameter %q never appears in the fixture", name)
		}
	}
	return p
}

func classifyFixture(catalog *domain.Catalog, snapshots []domain.Snapshot, counts map[domain.Severity]int) *phase {
	p := &phase{name: "Fixture readings classify"}
	for _, snap := range snapshots {
		for _, r := range snap.Readings() {
			spec, ok := catalog.Lookup(r.Parameter)
			if !ok {
				continue
			}
			c := domain.Classify(spec, r.Value)
			if c.Flagged() && c.InRange() {
				p.errorf("location %d %s=%g: flagged %s while in range", r.Location, r.Parameter, r.Value, c.Severity)
			}
			counts[c.Severity]++
		}
	}
	return p
}

// printLadder shows where each tier starts on both sides of the safe range.
func printLadder(catalog *domain.Catalog) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARAMETER\tUNIT\tSAFE\tMINOR\tAVERAGE\tMAJOR")
	for _, s := range catalog.Specs() {
		t := s.Thresholds
		fmt.Fprintf(w, "%s\t%s\t%g–%g\t%s\t%s\t%s\n", s.Name, s.Unit, s.SafeRange.Min, s.SafeRange.Max,
			tierBounds(s, t.Minor), tierBounds(s, t.Average), tierBounds(s, t.Major))
	}
	_ = w.Flush()
}

func tierBounds(s domain.ParameterSpec, d domain.Deviation) string {
	low, high := "-", "-"
	if d.Low > 0 {
		low = fmt.Sprintf("<=%g", s.SafeRange.Min-d.Low)
	}
	if d.High > 0 {
		high = fmt.Sprintf(">=%g", s.SafeRange.Max+d.High)
	}
	return low + " / " + high
}

func fixtureSpan(snapshots []domain.Snapshot) time.Duration {
	if len(snapshots) == 0 {
		return 0
	}
	times := make([]time.Time, len(snapshots))
	for i, s := range snapshots {
		times[i] = s.Timestamp
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times[len(times)-1].Sub(times[0])
}
