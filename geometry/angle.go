package geometry

import "math"

const twoPi = 2 * math.Pi

// NormalizeAngle maps a radian angle into (-π, π].
//
// Differences of two angles in [0, 2π) or [-π, π] need a single ±2π
// correction; anything further out is reduced first.
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	if a > 3*math.Pi || a <= -3*math.Pi {
		a = math.Remainder(a, twoPi)
	}
	if a > math.Pi {
		return a - twoPi
	}
	if a <= -math.Pi {
		return a + twoPi
	}
	return a
}

// Deg converts radians to degrees.
func Deg(rad float64) float64 { return rad * 180 / math.Pi }

// Rad converts degrees to radians.
func Rad(deg float64) float64 { return deg * math.Pi / 180 }

// Bearing is the yaw of the planar vector (x, y).
func Bearing(x, y float64) float64 { return math.Atan2(y, x) }
