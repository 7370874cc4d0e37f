package sim

import (
	"encoding/json"

	"github.com/golang/geo/r3"

	"carla-autocontrol/geometry"
)

// Bridge method names.
const (
	methodLoadWorld       = "world.load"
	methodApplySettings   = "world.apply_settings"
	methodTick            = "world.tick"
	methodSpawnActor      = "world.spawn_actor"
	methodSetAutopilot    = "actor.set_autopilot"
	methodTransform       = "actor.transform"
	methodSetTransform    = "actor.set_transform"
	methodVelocity        = "actor.velocity"
	methodPhysicsControl  = "vehicle.physics_control"
	methodApplyAckermann  = "vehicle.apply_ackermann_control"
	methodWaypoint        = "map.waypoint"
	methodWaypointNext    = "waypoint.next"
	methodSpectatorTransf = "spectator.set_transform"
)

type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// wireVector is a location in metres.
type wireVector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// wireRotation is in degrees, as the simulator reports it.
type wireRotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

type wireTransform struct {
	Location wireVector   `json:"location"`
	Rotation wireRotation `json:"rotation"`
}

type wireWaypoint struct {
	ID        uint64        `json:"id"`
	Transform wireTransform `json:"transform"`
	RoadID    int           `json:"road_id"`
	SectionID int           `json:"section_id"`
	LaneID    int           `json:"lane_id"`
}

type wireAckermann struct {
	Steer        float64 `json:"steer"`
	SteerSpeed   float64 `json:"steer_speed"`
	Speed        float64 `json:"speed"`
	Acceleration float64 `json:"acceleration"`
	Jerk         float64 `json:"jerk"`
}

type wireWheel struct {
	MaxSteerAngle float64 `json:"max_steer_angle"`
}

type wirePhysicsControl struct {
	Wheels []wireWheel `json:"wheels"`
}

type wireSettings struct {
	SynchronousMode   bool     `json:"synchronous_mode"`
	FixedDeltaSeconds *float64 `json:"fixed_delta_seconds"`
}

type actorParams struct {
	ActorID uint64 `json:"actor_id"`
}

type setTransformParams struct {
	ActorID   uint64        `json:"actor_id,omitempty"`
	Transform wireTransform `json:"transform"`
}

type spawnParams struct {
	Blueprint string        `json:"blueprint"`
	Transform wireTransform `json:"transform"`
}

type spawnResult struct {
	ActorID uint64 `json:"actor_id"`
}

type autopilotParams struct {
	ActorID uint64 `json:"actor_id"`
	Enabled bool   `json:"enabled"`
}

type ackermannParams struct {
	ActorID uint64        `json:"actor_id"`
	Control wireAckermann `json:"control"`
}

type waypointParams struct {
	Location wireVector `json:"location"`
}

type nextParams struct {
	WaypointID uint64  `json:"waypoint_id"`
	Distance   float64 `json:"distance"`
}

type tickResult struct {
	Frame uint64 `json:"frame"`
}

type loadWorldParams struct {
	Name string `json:"name"`
}

func toVector(v wireVector) r3.Vector { return r3.Vector{X: v.X, Y: v.Y, Z: v.Z} }

func fromVector(v r3.Vector) wireVector { return wireVector{X: v.X, Y: v.Y, Z: v.Z} }

func toPose(t wireTransform) geometry.Pose {
	return geometry.Pose{
		Location: toVector(t.Location),
		Rotation: geometry.Rotation{
			Pitch: geometry.Rad(t.Rotation.Pitch),
			Yaw:   geometry.Rad(t.Rotation.Yaw),
			Roll:  geometry.Rad(t.Rotation.Roll),
		},
	}
}

func fromPose(p geometry.Pose) wireTransform {
	return wireTransform{
		Location: fromVector(p.Location),
		Rotation: wireRotation{
			Pitch: geometry.Deg(p.Rotation.Pitch),
			Yaw:   geometry.Deg(p.Rotation.Yaw),
			Roll:  geometry.Deg(p.Rotation.Roll),
		},
	}
}

func toWaypoint(w wireWaypoint) Waypoint {
	return Waypoint{
		ID:        w.ID,
		Transform: toPose(w.Transform),
		RoadID:    w.RoadID,
		SectionID: w.SectionID,
		LaneID:    w.LaneID,
	}
}

func fromControl(ctl AckermannControl) wireAckermann {
	return wireAckermann{
		Steer:        ctl.Steer,
		SteerSpeed:   ctl.SteerSpeed,
		Speed:        ctl.Speed,
		Acceleration: ctl.Acceleration,
		Jerk:         ctl.Jerk,
	}
}
