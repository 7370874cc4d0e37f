// Package route resolves the waypoint the vehicle should steer towards next.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang/geo/r3"

	"carla-autocontrol/geometry"
	"carla-autocontrol/sim"
)

// Policy picks one successor when the road forks.
type Policy int

const (
	PolicyFirst Policy = iota + 1
	PolicyRandom
)

func (p Policy) String() string {
	switch p {
	case PolicyFirst:
		return "first"
	case PolicyRandom:
		return "random"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a policy name into a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "first", "":
		return PolicyFirst, nil
	case "random":
		return PolicyRandom, nil
	default:
		return PolicyFirst, fmt.Errorf("unknown successor policy %q", value)
	}
}

// UnmarshalJSON allows policies to be loaded from JSON strings.
func (p *Policy) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParsePolicy(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON writes the policy name.
func (p Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// Map is the part of the simulator the selector queries.
type Map interface {
	NearestWaypoint(ctx context.Context, loc r3.Vector) (sim.Waypoint, bool, error)
	Successors(ctx context.Context, wp sim.Waypoint, distance float64) ([]sim.Waypoint, error)
}

// Source is a uniform integer source in [0, n).
type Source interface {
	IntN(n int) int
}

// Outcome of a resolution.
type Outcome int

const (
	Found Outcome = iota + 1
	ResetRequired
)

// ResetReason says why no target could be resolved.
type ResetReason int

const (
	NoReset ResetReason = iota
	NoNearestWaypoint
	NoSuccessor
)

func (r ResetReason) String() string {
	switch r {
	case NoReset:
		return "none"
	case NoNearestWaypoint:
		return "no waypoint near vehicle"
	case NoSuccessor:
		return "no successor waypoint"
	default:
		return fmt.Sprintf("ResetReason(%d)", int(r))
	}
}

// Resolution is the selector's answer for one tick.
type Resolution struct {
	Outcome Outcome
	Reason  ResetReason
	Current sim.Waypoint
	Target  sim.Waypoint
	// Candidates is the number of successors the target was chosen from.
	Candidates int
}

// Selector resolves the lookahead target with a fixed successor policy.
type Selector struct {
	m      Map
	policy Policy
	rng    Source
}

// NewSelector returns a selector. PolicyRandom requires rng.
func NewSelector(m Map, policy Policy, rng Source) (*Selector, error) {
	switch policy {
	case PolicyFirst:
	case PolicyRandom:
		if rng == nil {
			return nil, fmt.Errorf("policy %s needs a random source", policy)
		}
	default:
		return nil, fmt.Errorf("invalid successor policy %v", policy)
	}
	return &Selector{m: m, policy: policy, rng: rng}, nil
}

// Resolve finds the waypoint under pose and picks one successor lookahead
// metres ahead. A missing waypoint is a ResetRequired outcome, not an error;
// errors are simulator failures.
func (s *Selector) Resolve(ctx context.Context, pose geometry.Pose, lookahead float64) (Resolution, error) {
	current, ok, err := s.m.NearestWaypoint(ctx, pose.Location)
	if err != nil {
		return Resolution{}, fmt.Errorf("nearest waypoint: %w", err)
	}
	if !ok {
		return Resolution{Outcome: ResetRequired, Reason: NoNearestWaypoint}, nil
	}

	next, err := s.m.Successors(ctx, current, lookahead)
	if err != nil {
		return Resolution{}, fmt.Errorf("successors of waypoint %d: %w", current.ID, err)
	}
	if len(next) == 0 {
		return Resolution{Outcome: ResetRequired, Reason: NoSuccessor, Current: current}, nil
	}

	return Resolution{
		Outcome:    Found,
		Current:    current,
		Target:     next[s.pick(len(next))],
		Candidates: len(next),
	}, nil
}

func (s *Selector) pick(n int) int {
	if s.policy == PolicyRandom && n > 1 {
		return s.rng.IntN(n)
	}
	return 0
}
