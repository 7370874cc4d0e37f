package control

import (
	"fmt"

	"github.com/golang/geo/r3"

	"carla-autocontrol/geometry"
)

// Controller composes the steering and speed controllers into one command per tick.
type Controller struct {
	cfg      Config
	limits   SteerLimits
	steering Steering
}

// NewController validates cfg and limits and returns a ready controller.
func NewController(cfg Config, limits SteerLimits) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("steer limits: %w", err)
	}
	return &Controller{
		cfg:      cfg,
		limits:   limits,
		steering: NewSteering(cfg.HeadingDeadbandDeg, cfg.SteerRateStep),
	}, nil
}

// Command computes the actuation for driving from pose towards target at measured speed.
func (c *Controller) Command(pose geometry.Pose, target r3.Vector, speed float64) (Command, Diagnostics) {
	steer, steerSpeed, errDeg := c.steering.Compute(pose, target, c.limits)

	cmd := Command{
		Steer:        steer,
		SteerSpeed:   steerSpeed,
		Speed:        c.cfg.TargetSpeedMPS(),
		Acceleration: ComputeAcceleration(speed, c.cfg.SpeedThresholdMPS),
	}
	diag := Diagnostics{
		HeadingErrorDeg: errDeg,
		MeasuredSpeed:   speed,
	}
	return cmd, diag
}
