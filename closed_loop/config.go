package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/golang/geo/r3"

	"carla-autocontrol/closed_loop/control"
	"carla-autocontrol/closed_loop/route"
	"carla-autocontrol/geometry"
)

// RunConfig defines a complete controller run
type RunConfig struct {
	Meta       RunMeta         `json:"meta"`
	Bridge     BridgeConfig    `json:"bridge"`
	Timing     RunTiming       `json:"timing"`
	Vehicle    VehicleConfig   `json:"vehicle"`
	Controller control.Config  `json:"controller"`
	Route      RouteConfig     `json:"route"`
	Spectator  SpectatorConfig `json:"spectator"`
	CAN        CANTapConfig    `json:"can"`
}

// RunMeta contains run metadata
type RunMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// BridgeConfig locates the simulator bridge
type BridgeConfig struct {
	Addr  string `json:"addr"`
	Port  int    `json:"port"`
	World string `json:"world,omitempty"` // empty keeps the loaded world
}

// RunTiming defines timing parameters
type RunTiming struct {
	FixedDeltaS  float64 `json:"fixed_delta_s"`
	MaxTicks     uint64  `json:"max_ticks"`     // 0 runs until cancelled
	SummaryEvery uint64  `json:"summary_every"` // ticks between DEBUG summaries
}

// FixedDelta is the simulation step as a duration.
func (t RunTiming) FixedDelta() time.Duration {
	return time.Duration(t.FixedDeltaS * float64(time.Second))
}

// PoseConfig is a pose in simulator units: metres and degrees.
type PoseConfig struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

func (p PoseConfig) Pose() geometry.Pose {
	return geometry.Pose{
		Location: r3.Vector{X: p.X, Y: p.Y, Z: p.Z},
		Rotation: geometry.Rotation{
			Pitch: geometry.Rad(p.Pitch),
			Yaw:   geometry.Rad(p.Yaw),
			Roll:  geometry.Rad(p.Roll),
		},
	}
}

// VehicleConfig selects what to spawn and where resets return to
type VehicleConfig struct {
	Blueprint string     `json:"blueprint"`
	StartPose PoseConfig `json:"start_pose"`
}

// RouteConfig fixes the successor policy for the run
type RouteConfig struct {
	Policy route.Policy `json:"policy"`
	Seed   uint64       `json:"seed"` // 0 picks a time-based seed, which is logged
}

// SpectatorConfig places the camera relative to the vehicle
type SpectatorConfig struct {
	Enabled bool    `json:"enabled"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	OffsetZ float64 `json:"offset_z"`
}

func (s SpectatorConfig) Offset() r3.Vector {
	return r3.Vector{X: s.OffsetX, Y: s.OffsetY, Z: s.OffsetZ}
}

// CANTapConfig mirrors commands onto a CAN bus; empty Interface disables it
type CANTapConfig struct {
	Interface    string `json:"interface"`
	MapPath      string `json:"map_path"`
	CommandFrame string `json:"command_frame"`
	ResetFrame   string `json:"reset_frame,omitempty"`
}

// DefaultRunConfig returns a Model 3 on a fixed start pose of the default map,
// stepped at 20 Hz.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Meta: RunMeta{Name: "default"},
		Bridge: BridgeConfig{
			Addr: "localhost",
			Port: 2000,
		},
		Timing: RunTiming{
			FixedDeltaS:  0.05,
			SummaryEvery: 100,
		},
		Vehicle: VehicleConfig{
			Blueprint: "vehicle.tesla.model3",
			StartPose: PoseConfig{X: 83.075226, Y: 13.414804, Z: 0.6, Yaw: -179.84079},
		},
		Controller: control.DefaultConfig(),
		Route:      RouteConfig{Policy: route.PolicyFirst},
		Spectator: SpectatorConfig{
			Enabled: true,
			OffsetX: -10,
			OffsetZ: 7,
		},
		CAN: CANTapConfig{
			MapPath:      "config/can/can_map.csv",
			CommandFrame: "ACKERMANN_CMD",
			ResetFrame:   "ROUTE_RESET",
		},
	}
}

// LoadRunConfig overlays a JSON file onto the defaults. An empty path
// returns the defaults.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("read file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return RunConfig{}, fmt.Errorf("unmarshal: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks the run can start.
func (c RunConfig) Validate() error {
	if c.Bridge.Addr == "" {
		return fmt.Errorf("bridge.addr must be set")
	}
	if c.Bridge.Port <= 0 || c.Bridge.Port > 65535 {
		return fmt.Errorf("invalid bridge.port: %d", c.Bridge.Port)
	}
	if c.Timing.FixedDeltaS <= 0 {
		return fmt.Errorf("invalid fixed_delta_s: %f", c.Timing.FixedDeltaS)
	}
	if c.Vehicle.Blueprint == "" {
		return fmt.Errorf("vehicle.blueprint must be set")
	}
	if c.Route.Policy != route.PolicyFirst && c.Route.Policy != route.PolicyRandom {
		return fmt.Errorf("invalid route.policy: %v", c.Route.Policy)
	}
	if err := c.Controller.Validate(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	if c.CAN.Interface != "" && (c.CAN.MapPath == "" || c.CAN.CommandFrame == "") {
		return fmt.Errorf("can.interface %q needs can.map_path and can.command_frame", c.CAN.Interface)
	}
	return nil
}
