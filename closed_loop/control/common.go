package control

import (
	"math"

	"github.com/samber/lo"
)

// Command is one Ackermann actuation request.
// Steer is a normalised ratio in [-1, 1] of the vehicle's max steer angle.
type Command struct {
	Steer        float64
	SteerSpeed   float64
	Speed        float64 // m/s
	Acceleration float64 // gate, 0 or 1
	Jerk         float64 // reserved, always 0
}

// Diagnostics carries per-tick intermediate values for logging.
type Diagnostics struct {
	HeadingErrorDeg float64
	MeasuredSpeed   float64
}

// ClampFloat clamps value between min and max. NaN collapses to 0 when 0 is in range.
func ClampFloat(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return lo.Clamp(0, min, max)
	}
	return lo.Clamp(value, min, max)
}

// KMHToMPS converts km/h to m/s.
func KMHToMPS(kmh float64) float64 {
	return kmh * 10.0 / 36.0
}

// GetControlModeStr returns a short tag describing the longitudinal state.
func GetControlModeStr(cmd Command) string {
	if cmd.Acceleration > 0 {
		return "[ACCEL]"
	}
	return "[COAST]"
}
