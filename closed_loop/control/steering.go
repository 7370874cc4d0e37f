package control

import (
	"math"

	"github.com/golang/geo/r3"

	"carla-autocontrol/geometry"
)

// Steering maps the bearing to a target point onto steer and steer-rate commands.
// It carries no state between ticks.
type Steering struct {
	deadbandDeg float64
	rateStep    float64
}

// NewSteering creates a steering controller with the given deadband and rate step.
func NewSteering(deadbandDeg, rateStep float64) Steering {
	return Steering{deadbandDeg: deadbandDeg, rateStep: rateStep}
}

// HeadingError returns the signed angle (radians, in (-π, π]) from the current
// yaw to the bearing of target. The vertical axis is ignored.
func HeadingError(pose geometry.Pose, target r3.Vector) float64 {
	dir := pose.PlanarDisplacement(target)
	targetYaw := geometry.Bearing(dir.X, dir.Y)
	return geometry.NormalizeAngle(targetYaw - pose.Rotation.Yaw)
}

// SteerRatio is the heading error as a fraction of the max steer angle, clamped to [-1, 1].
func SteerRatio(headingErrDeg, maxSteerAngleDeg float64) float64 {
	return ClampFloat(headingErrDeg/maxSteerAngleDeg, -1, 1)
}

// SteerRate is the deadband bang-bang steer speed.
func (s Steering) SteerRate(headingErrDeg float64) float64 {
	switch {
	case math.Abs(headingErrDeg) < s.deadbandDeg:
		return 0
	case headingErrDeg >= s.deadbandDeg:
		return s.rateStep
	case headingErrDeg <= -s.deadbandDeg:
		return -s.rateStep
	}
	// NaN
	return 0
}

// Compute returns steer and steer speed for driving from pose towards target,
// along with the heading error in degrees they were derived from.
func (s Steering) Compute(pose geometry.Pose, target r3.Vector, limits SteerLimits) (steer, steerSpeed, errDeg float64) {
	errDeg = geometry.Deg(HeadingError(pose, target))
	return SteerRatio(errDeg, limits.MaxSteerAngleDeg), s.SteerRate(errDeg), errDeg
}
