package driver

import "math"

const (
	axisMax = 32767
	axisMin = -32768
)

// AxisToInt16 converts a normalized axis value in [-1, 1] to device units.
// Negative values scale by 32768 and non-negative ones by 32767 so both
// extremes of the int16 range are reachable. The result is clamped and NaN
// maps to zero.
func AxisToInt16(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	var scaled float64
	if v < 0 {
		scaled = math.Round(v * -axisMin)
	} else {
		scaled = math.Round(v * axisMax)
	}
	if scaled > axisMax {
		return axisMax
	}
	if scaled < axisMin {
		return axisMin
	}
	return int16(scaled)
}

// StickToInt16 converts browser stick coordinates to device units. Browser y
// grows downward, so it is negated before conversion.
func StickToInt16(x, y float64) (int16, int16) {
	return AxisToInt16(x), AxisToInt16(-y)
}
