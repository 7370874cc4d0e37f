package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.einride.tech/can"

	"carla-autocontrol/closed_loop/control"
	"carla-autocontrol/closed_loop/route"
	"carla-autocontrol/utils"
)

// ActuationTap mirrors every submitted command, and every route reset, onto a
// CAN bus for loggers and HIL rigs. A nil tap is a no-op.
type ActuationTap struct {
	log        *utils.Logger
	cmap       *utils.CANMap
	writer     utils.CANWriter
	cmdFrame   string
	resetFrame string
	sent       uint64
}

// NewActuationTap opens the SocketCAN interface named in cfg. It returns a nil
// tap when no interface is configured.
func NewActuationTap(ctx context.Context, cfg CANTapConfig, log *utils.Logger) (*ActuationTap, error) {
	if cfg.Interface == "" {
		return nil, nil
	}

	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}

	tap, err := newActuationTap(cmap, writer, cfg, log)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	return tap, nil
}

var commandSignals = []string{"steer", "steer_speed", "speed_mps", "acceleration", "jerk"}

func newActuationTap(cmap *utils.CANMap, writer utils.CANWriter, cfg CANTapConfig, log *utils.Logger) (*ActuationTap, error) {
	fd, err := cmap.FrameByName(cfg.CommandFrame)
	if err != nil {
		return nil, fmt.Errorf("command frame: %w", err)
	}
	for _, name := range commandSignals {
		if !fd.HasSignal(name) {
			log.Warn("CAN frame %s has no %s signal; it will not be mirrored", fd.Name, name)
		}
	}
	if cfg.ResetFrame != "" {
		if _, err := cmap.FrameByName(cfg.ResetFrame); err != nil {
			return nil, fmt.Errorf("reset frame: %w", err)
		}
	}

	log.Info("CAN tap enabled: iface=%s frame=%s id=0x%X dlc=%d", cfg.Interface, fd.Name, fd.ID, fd.DLC)

	return &ActuationTap{
		log:        log,
		cmap:       cmap,
		writer:     writer,
		cmdFrame:   cfg.CommandFrame,
		resetFrame: cfg.ResetFrame,
	}, nil
}

// PublishCommand encodes and transmits one command.
func (t *ActuationTap) PublishCommand(ctx context.Context, cmd control.Command) error {
	if t == nil {
		return nil
	}
	values := map[string]float64{
		"steer":        cmd.Steer,
		"steer_speed":  cmd.SteerSpeed,
		"speed_mps":    cmd.Speed,
		"acceleration": cmd.Acceleration,
		"jerk":         cmd.Jerk,
	}
	return t.transmit(ctx, t.cmdFrame, values)
}

// PublishReset reports a route reset. resets is the running total.
func (t *ActuationTap) PublishReset(ctx context.Context, reason route.ResetReason, resets uint64) error {
	if t == nil || t.resetFrame == "" {
		return nil
	}
	values := map[string]float64{
		"reset_reason": float64(reason),
		"reset_count":  float64(resets),
	}
	return t.transmit(ctx, t.resetFrame, values)
}

func (t *ActuationTap) transmit(ctx context.Context, frameName string, values map[string]float64) error {
	frame, err := t.cmap.EncodeEinrideFrame(frameName, values)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frameName, err)
	}
	if err := t.writer.WriteFrame(ctx, frame); err != nil {
		return err
	}
	t.sent++
	if t.log.Enabled(utils.TRACE) {
		t.traceFrame(frame)
	}
	return nil
}

// traceFrame logs the payload and the values a receiver decodes from it,
// after scaling and clamping.
func (t *ActuationTap) traceFrame(frame can.Frame) {
	decoded, err := t.cmap.DecodeEinrideFrame(frame)
	if err != nil {
		t.log.Trace("CAN TX id=0x%X len=%d data=% X (decode: %v)", frame.ID, frame.Length, frame.Data[:frame.Length], err)
		return
	}
	names := lo.Keys(decoded)
	slices.Sort(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%g", name, decoded[name])
	}
	t.log.Trace("CAN TX id=0x%X len=%d data=% X%s", frame.ID, frame.Length, frame.Data[:frame.Length], b.String())
}

// Sent is the number of frames transmitted so far.
func (t *ActuationTap) Sent() uint64 {
	if t == nil {
		return 0
	}
	return t.sent
}

func (t *ActuationTap) Close() error {
	if t == nil || t.writer == nil {
		return nil
	}
	return t.writer.Close()
}
