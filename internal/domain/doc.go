// Package domain models water-quality telemetry: the monitored parameters, the
// readings posted by the field devices, and the alerts derived from them.
//
// # Data Source
//
// Each monitoring site runs a microcontroller that samples its probes on a fixed
// loop and posts one JSON snapshot per cycle to the ingest endpoint (or to the
// Kafka source topic when the site sits behind a gateway):
//
//	{"location": 2, "ph": 7.12, "orp": 654, "tds": 310, "temperature": 24.5,
//	 "turbidity": 1.8, "water_level": 61, "timestamp": "2024-05-03T09:15:00Z"}
//
// "location" is a small integer from a fixed set configured per deployment.
// "timestamp" is optional (RFC 3339 UTC with a trailing Z); the receipt time is
// used when it is absent. Every other key is a parameter value.
//
// # Parameters
//
// A [ParameterSpec] carries two ranges:
//
//	ValidRange  the physically plausible span of the probe, used only to scale
//	            values for display (heatmap intensity).
//	SafeRange   the inclusive band considered normal.
//
// and a three-tier deviation ladder (minor < average < major) per side of the
// safe range. A tier applies when the distance past the safe bound is at least
// its threshold. A zero threshold disables that tier on that side; turbidity
// has no lower-bound concern, so its low side is all zeros.
//
// # Severity classification
//
// [Classify] is the single rule shared by alert generation, series colouring
// and heatmap highlighting:
//
//	in safe range                      → none, normal
//	below by ≥ major.low               → major, critically low
//	below by ≥ average.low             → average, too low
//	below by ≥ minor.low               → minor, slightly low
//	below, but under every threshold   → none, no status
//
// and symmetrically above the safe range. The last row is a known gap in the
// ladder: a value just outside the safe band raises nothing. It is kept as-is
// for compatibility with existing dashboards.
package domain
