package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"carla-autocontrol/closed_loop/control"
	"carla-autocontrol/closed_loop/route"
	"carla-autocontrol/geometry"
	"carla-autocontrol/sim"
	"carla-autocontrol/utils"
)

// Runner drives the vehicle one lockstep tick at a time.
type Runner struct {
	cfg      RunConfig
	log      *utils.Logger
	sim      sim.Simulator
	closer   io.Closer
	selector *route.Selector
	ctl      *control.Controller
	tap      *ActuationTap
	start    geometry.Pose

	ticks     uint64
	sent      uint64
	resets    uint64
	lastFrame uint64
}

// NewRunner connects to the bridge, sets up the world and vehicle, and reads
// the steering limit. Any failure here is fatal.
func NewRunner(ctx context.Context, cfg RunConfig, log *utils.Logger, runID string) (*Runner, error) {
	bridge, err := sim.Dial(ctx, cfg.Bridge.Addr, cfg.Bridge.Port, runID)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to simulator bridge %s:%d", cfg.Bridge.Addr, cfg.Bridge.Port)

	r, err := setupRunner(ctx, cfg, log, bridge)
	if err != nil {
		_ = bridge.Close()
		return nil, err
	}
	r.closer = bridge

	tap, err := NewActuationTap(ctx, cfg.CAN, log)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("can tap: %w", err)
	}
	r.tap = tap
	return r, nil
}

func setupRunner(ctx context.Context, cfg RunConfig, log *utils.Logger, host sim.Host) (*Runner, error) {
	if cfg.Bridge.World != "" {
		if err := host.LoadWorld(ctx, cfg.Bridge.World); err != nil {
			return nil, fmt.Errorf("load world %q: %w", cfg.Bridge.World, err)
		}
		log.Info("Loaded world %s", cfg.Bridge.World)
	}

	start := cfg.Vehicle.StartPose.Pose()
	log.Info("Spawning %s at (%.3f, %.3f, %.3f) yaw=%.2f°", cfg.Vehicle.Blueprint,
		start.Location.X, start.Location.Y, start.Location.Z, cfg.Vehicle.StartPose.Yaw)
	if err := host.SpawnVehicle(ctx, cfg.Vehicle.Blueprint, start); err != nil {
		return nil, err
	}

	return newRunner(ctx, cfg, log, host)
}

func newRunner(ctx context.Context, cfg RunConfig, log *utils.Logger, s sim.Simulator) (*Runner, error) {
	maxSteer, err := s.MaxSteerAngle(ctx)
	if err != nil {
		return nil, fmt.Errorf("query steering limit: %w", err)
	}

	ctl, err := control.NewController(cfg.Controller, control.SteerLimits{MaxSteerAngleDeg: maxSteer})
	if err != nil {
		return nil, err
	}

	var rng route.Source
	if cfg.Route.Policy == route.PolicyRandom {
		seed := cfg.Route.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		log.Info("Random successor policy seed=%d", seed)
		rng = rand.New(rand.NewPCG(seed, seed))
	}
	selector, err := route.NewSelector(s, cfg.Route.Policy, rng)
	if err != nil {
		return nil, err
	}

	log.Info("Controller initialized: target=%.2f km/h (%.2f m/s), threshold=%.2f m/s, deadband=%.1f°, lookahead=%.2f m, max_steer=%.1f°, policy=%s",
		cfg.Controller.TargetSpeedKMH, cfg.Controller.TargetSpeedMPS(), cfg.Controller.SpeedThresholdMPS,
		cfg.Controller.HeadingDeadbandDeg, cfg.Controller.LookaheadDistanceM, maxSteer, cfg.Route.Policy)

	return &Runner{
		cfg:      cfg,
		log:      log,
		sim:      s,
		selector: selector,
		ctl:      ctl,
		start:    cfg.Vehicle.StartPose.Pose(),
	}, nil
}

func (r *Runner) Close() {
	if r.tap != nil {
		_ = r.tap.Close()
	}
	if r.closer != nil {
		_ = r.closer.Close()
	}
}

// Run ticks until ctx is cancelled or the tick budget is spent, then restores
// free-running mode. Cancellation is a clean stop and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	// Calls inside a tick must complete; ctx is only checked between ticks.
	simCtx := context.WithoutCancel(ctx)

	step := r.cfg.Timing.FixedDelta()
	if err := r.sim.SetLockstep(simCtx, true, step); err != nil {
		return fmt.Errorf("enable lockstep: %w", err)
	}

	r.log.Info("Starting control loop: run=%s step=%s max_ticks=%d", r.cfg.Meta.Name, step, r.cfg.Timing.MaxTicks)

	for {
		if ctx.Err() != nil {
			r.log.Warn("Context canceled; stopping control loop")
			break
		}
		if r.cfg.Timing.MaxTicks > 0 && r.ticks >= r.cfg.Timing.MaxTicks {
			r.log.Info("Tick budget of %d reached", r.cfg.Timing.MaxTicks)
			break
		}

		if err := r.tick(simCtx); err != nil {
			r.log.Error("Tick %d failed: %v", r.ticks, err)
			if !errors.Is(err, sim.ErrConnection) {
				if rerr := r.restore(simCtx); rerr != nil {
					r.log.Error("Restore after failure: %v", rerr)
				}
			}
			return err
		}
	}

	if err := r.restore(simCtx); err != nil {
		return err
	}
	r.log.Info("Completed run. ticks=%d commands=%d resets=%d frame=%d can_frames=%d",
		r.ticks, r.sent, r.resets, r.lastFrame, r.tap.Sent())
	return nil
}

func (r *Runner) restore(ctx context.Context) error {
	if err := r.sim.SetLockstep(ctx, false, 0); err != nil {
		return fmt.Errorf("restore free-running mode: %w", err)
	}
	r.log.Info("Restored free-running mode")
	return nil
}

// tick runs one control cycle and always ends by advancing the simulation one step.
func (r *Runner) tick(ctx context.Context) error {
	pose, err := r.sim.Pose(ctx)
	if err != nil {
		return fmt.Errorf("read pose: %w", err)
	}

	if err := r.placeSpectator(ctx, pose); err != nil {
		return err
	}

	res, err := r.selector.Resolve(ctx, pose, r.cfg.Controller.LookaheadDistanceM)
	if err != nil {
		return fmt.Errorf("resolve route: %w", err)
	}

	if res.Outcome == route.ResetRequired {
		if err := r.resetVehicle(ctx, pose, res.Reason); err != nil {
			return err
		}
	} else {
		if err := r.drive(ctx, pose, res); err != nil {
			return err
		}
	}

	frame, err := r.sim.AdvanceStep(ctx)
	if err != nil {
		return fmt.Errorf("advance step: %w", err)
	}
	r.lastFrame = frame
	r.ticks++

	if every := r.cfg.Timing.SummaryEvery; every > 0 && r.ticks%every == 0 {
		r.log.Debug("tick=%d frame=%d commands=%d resets=%d", r.ticks, frame, r.sent, r.resets)
	}
	return nil
}

func (r *Runner) placeSpectator(ctx context.Context, pose geometry.Pose) error {
	if !r.cfg.Spectator.Enabled {
		return nil
	}
	err := r.sim.SetSpectator(ctx, pose.Offset(r.cfg.Spectator.Offset()))
	if err == nil {
		return nil
	}
	if errors.Is(err, sim.ErrConnection) {
		return fmt.Errorf("place spectator: %w", err)
	}
	r.log.Warn("Spectator placement failed: %v", err)
	return nil
}

func (r *Runner) resetVehicle(ctx context.Context, pose geometry.Pose, reason route.ResetReason) error {
	r.log.Debug("Route lookup failed at (%.2f, %.2f): %s; resetting to start pose",
		pose.Location.X, pose.Location.Y, reason)

	if err := r.sim.ResetPose(ctx, r.start); err != nil {
		return fmt.Errorf("reset pose: %w", err)
	}
	r.resets++

	if err := r.tap.PublishReset(ctx, reason, r.resets); err != nil {
		r.log.Error("CAN reset publish failed: %v", err)
	}
	return nil
}

func (r *Runner) drive(ctx context.Context, pose geometry.Pose, res route.Resolution) error {
	speed, err := r.sim.Speed(ctx)
	if err != nil {
		return fmt.Errorf("read speed: %w", err)
	}

	cmd, diag := r.ctl.Command(pose, res.Target.Transform.Location, speed)

	if err := r.sim.SubmitControl(ctx, toAckermann(cmd)); err != nil {
		return fmt.Errorf("submit control: %w", err)
	}
	r.sent++

	if err := r.tap.PublishCommand(ctx, cmd); err != nil {
		r.log.Error("CAN command publish failed: %v", err)
	}

	if r.log.Enabled(utils.TRACE) {
		r.log.Trace("TX wp=%d->%d/%d heading_err=%+.2f° v=%.2f steer=%+.3f steer_speed=%+.2f speed=%.2f accel=%.0f %s",
			res.Current.ID, res.Target.ID, res.Candidates, diag.HeadingErrorDeg, diag.MeasuredSpeed,
			cmd.Steer, cmd.SteerSpeed, cmd.Speed, cmd.Acceleration, control.GetControlModeStr(cmd))
	}
	return nil
}

func toAckermann(cmd control.Command) sim.AckermannControl {
	return sim.AckermannControl{
		Steer:        cmd.Steer,
		SteerSpeed:   cmd.SteerSpeed,
		Speed:        cmd.Speed,
		Acceleration: cmd.Acceleration,
		Jerk:         cmd.Jerk,
	}
}
