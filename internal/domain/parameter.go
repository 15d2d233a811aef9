package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Severity is the tier of a deviation from the safe range. The zero value means
// no severity was assigned.
type Severity string

const (
	SeverityNone    Severity = ""
	SeverityMinor   Severity = "minor"
	SeverityAverage Severity = "average"
	SeverityMajor   Severity = "major"
)

// Rank orders severities: none < minor < average < major.
func (s Severity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityAverage:
		return 2
	case SeverityMajor:
		return 3
	default:
		return 0
	}
}

// ParseSeverity accepts a tier name (case-insensitive). An empty string parses
// to SeverityNone.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityNone, SeverityMinor, SeverityAverage, SeverityMajor:
		return sev, nil
	default:
		return SeverityNone, fmt.Errorf("unknown severity %q", s)
	}
}

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Deviation is the minimum distance below (Low) or above (High) the safe range
// a value must reach to qualify for a tier.
type Deviation struct {
	Low  float64 `json:"low" mapstructure:"low"`
	High float64 `json:"high" mapstructure:"high"`
}

// Thresholds is the three-tier deviation ladder of a parameter.
type Thresholds struct {
	Minor   Deviation `json:"minor" mapstructure:"minor"`
	Average Deviation `json:"average" mapstructure:"average"`
	Major   Deviation `json:"major" mapstructure:"major"`
}

// For returns the deviation pair of the given tier.
func (t Thresholds) For(s Severity) Deviation {
	switch s {
	case SeverityMinor:
		return t.Minor
	case SeverityAverage:
		return t.Average
	case SeverityMajor:
		return t.Major
	default:
		return Deviation{}
	}
}

// ParameterSpec is the static definition of one monitored parameter.
type ParameterSpec struct {
	Name       string     `json:"name" mapstructure:"name"`
	Unit       string     `json:"unit" mapstructure:"unit"`
	ValidRange Range      `json:"valid_range" mapstructure:"valid_range"`
	SafeRange  Range      `json:"safe_range" mapstructure:"safe_range"`
	Thresholds Thresholds `json:"thresholds" mapstructure:"thresholds"`
}

// Validate checks the structural invariants of the parameter: ordered ranges,
// non-negative thresholds that never decrease from minor to major, and sides
// that are either fully enabled or fully disabled.
func (p ParameterSpec) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if p.SafeRange.Min > p.SafeRange.Max {
		errs = append(errs, fmt.Errorf("safe range min %g exceeds max %g", p.SafeRange.Min, p.SafeRange.Max))
	}
	if p.ValidRange.Min >= p.ValidRange.Max {
		errs = append(errs, fmt.Errorf("valid range min %g must be below max %g", p.ValidRange.Min, p.ValidRange.Max))
	}

	t := p.Thresholds
	for _, side := range []struct {
		name                  string
		minor, average, major float64
	}{
		{"low", t.Minor.Low, t.Average.Low, t.Major.Low},
		{"high", t.Minor.High, t.Average.High, t.Major.High},
	} {
		if side.minor < 0 || side.average < 0 || side.major < 0 {
			errs = append(errs, fmt.Errorf("%s thresholds must not be negative", side.name))
			continue
		}
		if side.minor > side.average || side.average > side.major {
			errs = append(errs, fmt.Errorf("%s thresholds must not decrease from minor to major (%g, %g, %g)",
				side.name, side.minor, side.average, side.major))
		}
		if side.minor == 0 && side.major > 0 {
			errs = append(errs, fmt.Errorf("%s side is partly disabled (%g, %g, %g): zero every tier or none",
				side.name, side.minor, side.average, side.major))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("parameter %q: %w", p.Name, errors.Join(errs...))
	}
	return nil
}

// Normalize scales v into [0, 1] over the valid range, clamping values outside it.
func (p ParameterSpec) Normalize(v float64) float64 {
	span := p.ValidRange.Max - p.ValidRange.Min
	if span <= 0 {
		return 0
	}
	n := (v - p.ValidRange.Min) / span
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	default:
		return n
	}
}

// Catalog indexes parameter specs by canonical name.
type Catalog struct {
	specs map[string]ParameterSpec
}

// NewCatalog validates and indexes the given specs. Names are stored in
// canonical form; duplicates after canonicalisation are rejected.
func NewCatalog(specs ...ParameterSpec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]ParameterSpec, len(specs))}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		key := CanonicalParameter(s.Name)
		if _, dup := c.specs[key]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", s.Name)
		}
		s.Name = key
		c.specs[key] = s
	}
	return c, nil
}

// Lookup returns the spec for name. A miss means the parameter is not monitored.
func (c *Catalog) Lookup(name string) (ParameterSpec, bool) {
	if c == nil {
		return ParameterSpec{}, false
	}
	s, ok := c.specs[CanonicalParameter(name)]
	return s, ok
}

// Names returns the canonical parameter names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.specs))
	for _, s := range c.specs {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Specs returns all specs ordered by name.
func (c *Catalog) Specs() []ParameterSpec {
	names := c.Names()
	out := make([]ParameterSpec, 0, len(names))
	for _, n := range names {
		out = append(out, c.specs[n])
	}
	return out
}

// CanonicalParameter is the form parameter names take in snapshots, the
// catalog and stored alerts.
func CanonicalParameter(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultCatalog returns the parameters monitored by the stock probe kit.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultSpecs()...)
	if err != nil {
		panic(err) // static data
	}
	return c
}

func defaultSpecs() []ParameterSpec {
	return []ParameterSpec{
		{
			Name: "ph", Unit: "pH",
			ValidRange: Range{Min: 0, Max: 14},
			SafeRange:  Range{Min: 6.5, Max: 8.5},
			Thresholds: Thresholds{
				Minor:   Deviation{Low: 0.5, High: 0.5},
				Average: Deviation{Low: 1, High: 1},
				Major:   Deviation{Low: 1.5, High: 1.5},
			},
		},
		{
			Name: "orp", Unit: "mV",
			ValidRange: Range{Min: -2000, Max: 2000},
			SafeRange:  Range{Min: 200, Max: 800},
			Thresholds: Thresholds{
				Minor:   Deviation{Low: 100, High: 100},
				Average: Deviation{Low: 200, High: 200},
				Major:   Deviation{Low: 300, High: 300},
			},
		},
		{
			Name: "tds", Unit: "ppm",
			ValidRange: Range{Min: 0, Max: 1000},
			SafeRange:  Range{Min: 50, Max: 500},
			Thresholds: Thresholds{
				Minor:   Deviation{Low: 20, High: 100},
				Average: Deviation{Low: 35, High: 250},
				Major:   Deviation{Low: 50, High: 400},
			},
		},
		{
			Name: "temperature", Unit: "°C",
			ValidRange: Range{Min: -10, Max: 60},
			SafeRange:  Range{Min: 20, Max: 30},
			Thresholds: Thresholds{
				Minor:   Deviation{Low: 2, High: 2},
				Average: Deviation{Low: 4, High: 4},
				Major:   Deviation{Low: 6, High: 6},
			},
		},
		{
			// No lower-bound concern: clear water is never an alert.
			Name: "turbidity", Unit: "NTU",
			ValidRange: Range{Min: 0, Max: 100},
			SafeRange:  Range{Min: 0, Max: 5},
			Thresholds: Thresholds{
				Minor:   Deviation{Low: 0, High: 5},
				Average: Deviation{Low: 0, High: 10},
				Major:   Deviation{Low: 0, High: 20},
			},
		},
		{
			Name: "water_level", Unit: "cm",
			ValidRange: Range{Min: 0, Max: 200},
			SafeRange:  Range{Min: 20, Max: 80},
			Thresholds: Thresholds{
				Minor:   Deviation{Low: 5, High: 5},
				Average: Deviation{Low: 10, High: 10},
				Major:   Deviation{Low: 20, High: 20},
			},
		},
	}
}
