// Package geometry holds the pose and angle helpers shared by the route
// selector, the controllers and the simulator bridge.
//
// Conventions:
//   - locations are metres in the simulator world frame, Z up.
//   - rotations are radians; yaw is measured from +X towards +Y.
package geometry

import (
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// Rotation is an intrinsic yaw-pitch-roll orientation in radians.
type Rotation struct {
	Pitch float64
	Yaw   float64
	Roll  float64
}

// Pose is a rigid transform: a world location plus an orientation.
type Pose struct {
	Location r3.Vector
	Rotation Rotation
}

// NewPose builds a pose from a location and a yaw-only rotation given in degrees.
func NewPose(x, y, z, yawDeg float64) Pose {
	return Pose{
		Location: r3.Vector{X: x, Y: y, Z: z},
		Rotation: Rotation{Yaw: Rad(yawDeg)},
	}
}

// orientation is r as spatialmath Euler angles, Rz(yaw) * Ry(pitch) * Rx(roll).
func (r Rotation) orientation() spatialmath.Orientation {
	return &spatialmath.EulerAngles{Roll: r.Roll, Pitch: r.Pitch, Yaw: r.Yaw}
}

// TransformPoint maps a point expressed in the pose's local frame into the world frame.
func (p Pose) TransformPoint(local r3.Vector) r3.Vector {
	vehicle := spatialmath.NewPose(p.Location, p.Rotation.orientation())
	return spatialmath.Compose(vehicle, spatialmath.NewPoseFromPoint(local)).Point()
}

// Offset returns the pose translated by a local-frame offset, keeping the orientation.
func (p Pose) Offset(local r3.Vector) Pose {
	return Pose{Location: p.TransformPoint(local), Rotation: p.Rotation}
}

// PlanarDisplacement is the vector from p to target with the vertical axis dropped.
func (p Pose) PlanarDisplacement(target r3.Vector) r3.Vector {
	d := target.Sub(p.Location)
	d.Z = 0
	return d
}
