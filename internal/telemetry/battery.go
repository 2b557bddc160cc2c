package telemetry

import "math"

// BatteryRange is the voltage span mapped linearly onto 0-100 %.
type BatteryRange struct {
	MinV float64
	MaxV float64
}

// DefaultBatteryRange covers a single Li-ion cell.
var DefaultBatteryRange = BatteryRange{MinV: 3.0, MaxV: 4.2}

// Percent returns the charge estimate for v, clamped to 0-100. Invalid
// ranges and unavailable voltages yield Unavailable.
func (r BatteryRange) Percent(v float64) float64 {
	if v == Unavailable || r.MaxV <= r.MinV || math.IsNaN(v) {
		return Unavailable
	}
	pct := (v - r.MinV) / (r.MaxV - r.MinV) * 100
	return math.Max(0, math.Min(100, pct))
}
