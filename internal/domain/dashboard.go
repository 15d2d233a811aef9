package domain

import (
	"sort"
	"time"
)

// Chart colours for series points.
const (
	ColorNormal   = "green"
	ColorMinor    = "yellow"
	ColorAverage  = "orange"
	ColorMajor    = "red"
	ColorUnranked = "grey"
)

// HeatmapCell is one (location, parameter) tile of the dashboard heatmap.
type HeatmapCell struct {
	Location  LocationID `json:"location"`
	Parameter string     `json:"parameter"`
	Unit      string     `json:"unit"`
	Value     float64    `json:"value"`
	Intensity float64    `json:"intensity"`
	Severity  Severity   `json:"severity,omitempty"`
	Status    Status     `json:"status,omitempty"`
	// Highlight is set when the value is outside the safe range, tier or not.
	Highlight bool      `json:"highlight"`
	Timestamp time.Time `json:"timestamp"`
}

// BuildHeatmap projects the latest snapshots onto heatmap cells, ordered by
// location then parameter. Parameters missing from the catalog are omitted.
func BuildHeatmap(catalog *Catalog, snapshots []Snapshot) []HeatmapCell {
	cells := make([]HeatmapCell, 0, len(snapshots)*len(catalog.Names()))
	for _, snap := range snapshots {
		for _, r := range snap.Readings() {
			spec, ok := catalog.Lookup(r.Parameter)
			if !ok {
				continue
			}
			c := Classify(spec, r.Value)
			cells = append(cells, HeatmapCell{
				Location:  r.Location,
				Parameter: spec.Name,
				Unit:      spec.Unit,
				Value:     r.Value,
				Intensity: spec.Normalize(r.Value),
				Severity:  c.Severity,
				Status:    c.Status,
				Highlight: !c.InRange(),
				Timestamp: r.Timestamp,
			})
		}
	}
	sort.SliceStable(cells, func(i, j int) bool {
		if cells[i].Location != cells[j].Location {
			return cells[i].Location < cells[j].Location
		}
		return cells[i].Parameter < cells[j].Parameter
	})
	return cells
}

// SeriesPoint is one colour-coded point of a time-series chart.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Severity  Severity  `json:"severity,omitempty"`
	Color     string    `json:"color"`
}

// BuildSeries colour-codes readings of a single parameter.
func BuildSeries(spec ParameterSpec, readings []Reading) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(readings))
	for _, r := range readings {
		c := Classify(spec, r.Value)
		points = append(points, SeriesPoint{
			Timestamp: r.Timestamp,
			Value:     r.Value,
			Severity:  c.Severity,
			Color:     colorFor(c),
		})
	}
	return points
}

func colorFor(c Classification) string {
	switch {
	case c.InRange():
		return ColorNormal
	case c.Severity == SeverityMajor:
		return ColorMajor
	case c.Severity == SeverityAverage:
		return ColorAverage
	case c.Severity == SeverityMinor:
		return ColorMinor
	default:
		return ColorUnranked
	}
}
