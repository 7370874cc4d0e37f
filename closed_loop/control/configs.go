package control

import "fmt"

// Config holds the controller parameters for one run.
type Config struct {
	TargetSpeedKMH     float64 `json:"target_speed_kmh"`
	SpeedThresholdMPS  float64 `json:"speed_threshold_mps"`
	HeadingDeadbandDeg float64 `json:"heading_deadband_deg"`
	LookaheadDistanceM float64 `json:"lookahead_distance_m"`
	SteerRateStep      float64 `json:"steer_rate_step"`
}

// DefaultConfig returns the tuning the controller was developed against.
func DefaultConfig() Config {
	return Config{
		TargetSpeedKMH:     5.0,
		SpeedThresholdMPS:  5.0,
		HeadingDeadbandDeg: 3.0,
		LookaheadDistanceM: 1.0,
		SteerRateStep:      0.1,
	}
}

// Validate rejects parameter sets the controllers cannot run with.
func (c Config) Validate() error {
	if c.TargetSpeedKMH < 0 {
		return fmt.Errorf("invalid target_speed_kmh: %f", c.TargetSpeedKMH)
	}
	if c.SpeedThresholdMPS <= 0 {
		return fmt.Errorf("invalid speed_threshold_mps: %f", c.SpeedThresholdMPS)
	}
	if c.HeadingDeadbandDeg < 0 {
		return fmt.Errorf("invalid heading_deadband_deg: %f", c.HeadingDeadbandDeg)
	}
	if c.LookaheadDistanceM <= 0 {
		return fmt.Errorf("invalid lookahead_distance_m: %f", c.LookaheadDistanceM)
	}
	if c.SteerRateStep <= 0 {
		return fmt.Errorf("invalid steer_rate_step: %f", c.SteerRateStep)
	}
	return nil
}

// TargetSpeedMPS is the commanded cruise speed in m/s.
func (c Config) TargetSpeedMPS() float64 {
	return KMHToMPS(c.TargetSpeedKMH)
}

// SteerLimits describes the actuation bound reported by the vehicle.
type SteerLimits struct {
	MaxSteerAngleDeg float64
}

// Validate fails when the limit cannot be used as a divisor.
func (l SteerLimits) Validate() error {
	if !(l.MaxSteerAngleDeg > 0) {
		return fmt.Errorf("invalid max steer angle: %f deg", l.MaxSteerAngleDeg)
	}
	return nil
}
