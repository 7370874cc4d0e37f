// Package sim defines the simulator contract the control loop drives and a
// websocket bridge client that implements it.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"carla-autocontrol/geometry"
)

var (
	// ErrConnection marks a lost or unusable simulator connection. It is never retried.
	ErrConnection = errors.New("simulation connection failure")

	// ErrSteerLimitUnavailable is returned when the vehicle reports no usable max steer angle.
	ErrSteerLimitUnavailable = errors.New("max steering angle unavailable")
)

// RemoteError is a failure reported by the simulator for a single call.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("simulator %s: %s", e.Method, e.Message)
}

// Waypoint is a sample of a drivable lane. It is owned by the simulator's road
// network; successors are looked up by ID.
type Waypoint struct {
	ID        uint64
	Transform geometry.Pose
	RoadID    int
	SectionID int
	LaneID    int
}

// AckermannControl is one vehicle control request as the simulator takes it.
// Steer is a ratio in [-1, 1] of the max wheel steer angle.
type AckermannControl struct {
	Steer        float64
	SteerSpeed   float64
	Speed        float64
	Acceleration float64
	Jerk         float64
}

// Simulator is everything the control loop needs from the simulation host.
// All calls are blocking round-trips.
type Simulator interface {
	Pose(ctx context.Context) (geometry.Pose, error)
	Speed(ctx context.Context) (float64, error)
	NearestWaypoint(ctx context.Context, loc r3.Vector) (Waypoint, bool, error)
	Successors(ctx context.Context, wp Waypoint, distance float64) ([]Waypoint, error)
	ResetPose(ctx context.Context, pose geometry.Pose) error
	SubmitControl(ctx context.Context, ctl AckermannControl) error
	AdvanceStep(ctx context.Context) (uint64, error)
	SetLockstep(ctx context.Context, enabled bool, step time.Duration) error

	SetSpectator(ctx context.Context, pose geometry.Pose) error
	MaxSteerAngle(ctx context.Context) (float64, error)
}

// Host adds the one-off world setup calls used before the loop starts.
type Host interface {
	Simulator
	LoadWorld(ctx context.Context, name string) error
	SpawnVehicle(ctx context.Context, blueprint string, at geometry.Pose) error
	Close() error
}
