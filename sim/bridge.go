package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/gorilla/websocket"

	"carla-autocontrol/geometry"
)

// ClientIDHeader carries the run identifier on the websocket handshake.
const ClientIDHeader = "X-Client-Id"

// Bridge talks to a simulator bridge over a websocket using one JSON
// request/response pair per call.
type Bridge struct {
	url string

	mu      sync.Mutex
	ws      *websocket.Conn
	nextID  uint64
	broken  error
	vehicle uint64
	spawned bool
}

// Dial connects to the bridge at ws://addr:port/rpc.
func Dial(ctx context.Context, addr string, port int, clientID string) (*Bridge, error) {
	return DialURL(ctx, fmt.Sprintf("ws://%s:%d/rpc", addr, port), clientID)
}

// DialURL connects to a bridge websocket URL.
func DialURL(ctx context.Context, url, clientID string) (*Bridge, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := http.Header{}
	if clientID != "" {
		header.Set(ClientIDHeader, clientID)
	}

	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, url, err)
	}
	return &Bridge{url: url, ws: ws}, nil
}

// Close sends a close frame and releases the connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ws == nil {
		return nil
	}
	_ = b.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := b.ws.Close()
	b.ws = nil
	if b.broken == nil {
		b.broken = fmt.Errorf("%w: bridge closed", ErrConnection)
	}
	return err
}

// call performs one round-trip. Any transport failure poisons the bridge.
func (b *Bridge) call(ctx context.Context, method string, params any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken != nil {
		return b.broken
	}

	b.nextID++
	id := b.nextID

	deadline, _ := ctx.Deadline()
	_ = b.ws.SetWriteDeadline(deadline)
	_ = b.ws.SetReadDeadline(deadline)

	if err := b.ws.WriteJSON(request{ID: id, Method: method, Params: params}); err != nil {
		return b.fail(method, err)
	}

	var resp response
	for {
		resp = response{}
		if err := b.ws.ReadJSON(&resp); err != nil {
			return b.fail(method, err)
		}
		if resp.ID == id {
			break
		}
		// late reply to an earlier call; drop it
	}

	if resp.Error != "" {
		return &RemoteError{Method: method, Message: resp.Error}
	}
	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		if raw, ok := out.(*json.RawMessage); ok {
			*raw = nil
			return nil
		}
		return fmt.Errorf("simulator %s: empty result", method)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (b *Bridge) fail(method string, err error) error {
	b.broken = fmt.Errorf("%w: %s: %v", ErrConnection, method, err)
	_ = b.ws.Close()
	return b.broken
}

func (b *Bridge) vehicleID() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.spawned {
		return 0, errors.New("no vehicle spawned")
	}
	return b.vehicle, nil
}

// LoadWorld switches the simulator to the named map.
func (b *Bridge) LoadWorld(ctx context.Context, name string) error {
	return b.call(ctx, methodLoadWorld, loadWorldParams{Name: name}, nil)
}

// SpawnVehicle spawns the blueprint at the given pose, disables its autopilot
// and makes it the vehicle all later calls refer to.
func (b *Bridge) SpawnVehicle(ctx context.Context, blueprint string, at geometry.Pose) error {
	var res spawnResult
	if err := b.call(ctx, methodSpawnActor, spawnParams{Blueprint: blueprint, Transform: fromPose(at)}, &res); err != nil {
		return fmt.Errorf("spawn %s: %w", blueprint, err)
	}
	if err := b.call(ctx, methodSetAutopilot, autopilotParams{ActorID: res.ActorID, Enabled: false}, nil); err != nil {
		return fmt.Errorf("disable autopilot: %w", err)
	}

	b.mu.Lock()
	b.vehicle = res.ActorID
	b.spawned = true
	b.mu.Unlock()
	return nil
}

// Pose returns the vehicle transform.
func (b *Bridge) Pose(ctx context.Context) (geometry.Pose, error) {
	id, err := b.vehicleID()
	if err != nil {
		return geometry.Pose{}, err
	}
	var t wireTransform
	if err := b.call(ctx, methodTransform, actorParams{ActorID: id}, &t); err != nil {
		return geometry.Pose{}, err
	}
	return toPose(t), nil
}

// Speed returns the magnitude of the vehicle velocity in m/s.
func (b *Bridge) Speed(ctx context.Context) (float64, error) {
	id, err := b.vehicleID()
	if err != nil {
		return 0, err
	}
	var v wireVector
	if err := b.call(ctx, methodVelocity, actorParams{ActorID: id}, &v); err != nil {
		return 0, err
	}
	return toVector(v).Norm(), nil
}

// NearestWaypoint projects loc onto the road network. ok is false when the
// location is off any drivable lane.
func (b *Bridge) NearestWaypoint(ctx context.Context, loc r3.Vector) (Waypoint, bool, error) {
	var raw json.RawMessage
	if err := b.call(ctx, methodWaypoint, waypointParams{Location: fromVector(loc)}, &raw); err != nil {
		return Waypoint{}, false, err
	}
	if isNull(raw) {
		return Waypoint{}, false, nil
	}
	var w wireWaypoint
	if err := json.Unmarshal(raw, &w); err != nil {
		return Waypoint{}, false, fmt.Errorf("decode %s result: %w", methodWaypoint, err)
	}
	return toWaypoint(w), true, nil
}

// Successors returns the waypoints distance metres ahead of wp. At forks there
// is more than one; at a dead end there are none.
func (b *Bridge) Successors(ctx context.Context, wp Waypoint, distance float64) ([]Waypoint, error) {
	var ws []wireWaypoint
	if err := b.call(ctx, methodWaypointNext, nextParams{WaypointID: wp.ID, Distance: distance}, &ws); err != nil {
		return nil, err
	}
	out := make([]Waypoint, 0, len(ws))
	for _, w := range ws {
		out = append(out, toWaypoint(w))
	}
	return out, nil
}

// ResetPose teleports the vehicle.
func (b *Bridge) ResetPose(ctx context.Context, pose geometry.Pose) error {
	id, err := b.vehicleID()
	if err != nil {
		return err
	}
	return b.call(ctx, methodSetTransform, setTransformParams{ActorID: id, Transform: fromPose(pose)}, nil)
}

// SubmitControl applies an Ackermann control to the vehicle.
func (b *Bridge) SubmitControl(ctx context.Context, ctl AckermannControl) error {
	id, err := b.vehicleID()
	if err != nil {
		return err
	}
	return b.call(ctx, methodApplyAckermann, ackermannParams{ActorID: id, Control: fromControl(ctl)}, nil)
}

// AdvanceStep ticks the world once and returns the new frame number.
func (b *Bridge) AdvanceStep(ctx context.Context) (uint64, error) {
	var res tickResult
	if err := b.call(ctx, methodTick, struct{}{}, &res); err != nil {
		return 0, err
	}
	return res.Frame, nil
}

// SetLockstep toggles synchronous mode. step is ignored when disabling.
func (b *Bridge) SetLockstep(ctx context.Context, enabled bool, step time.Duration) error {
	s := wireSettings{SynchronousMode: enabled}
	if enabled {
		dt := step.Seconds()
		s.FixedDeltaSeconds = &dt
	}
	return b.call(ctx, methodApplySettings, s, nil)
}

// SetSpectator moves the spectator camera.
func (b *Bridge) SetSpectator(ctx context.Context, pose geometry.Pose) error {
	return b.call(ctx, methodSpectatorTransf, setTransformParams{Transform: fromPose(pose)}, nil)
}

// MaxSteerAngle returns the largest wheel steer angle in degrees.
func (b *Bridge) MaxSteerAngle(ctx context.Context) (float64, error) {
	id, err := b.vehicleID()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSteerLimitUnavailable, err)
	}
	var pc wirePhysicsControl
	if err := b.call(ctx, methodPhysicsControl, actorParams{ActorID: id}, &pc); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSteerLimitUnavailable, err)
	}
	return maxSteerAngle(pc.Wheels)
}

func maxSteerAngle(wheels []wireWheel) (float64, error) {
	if len(wheels) == 0 {
		return 0, fmt.Errorf("%w: vehicle reports no wheels", ErrSteerLimitUnavailable)
	}
	limit := wheels[0].MaxSteerAngle
	for _, w := range wheels[1:] {
		if w.MaxSteerAngle > limit {
			limit = w.MaxSteerAngle
		}
	}
	if !(limit > 0) {
		return 0, fmt.Errorf("%w: max steer angle %.2f", ErrSteerLimitUnavailable, limit)
	}
	return limit, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

var _ Host = (*Bridge)(nil)
