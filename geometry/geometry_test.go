package geometry

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAngleRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 10000; i++ {
		a := rng.Float64() * twoPi
		b := rng.Float64() * twoPi
		got := NormalizeAngle(a - b)
		require.Truef(t, got > -math.Pi && got <= math.Pi,
			"NormalizeAngle(%v - %v) = %v, outside (-π, π]", a, b, got)
	}
}

func TestNormalizeAngleEdges(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"pi stays", math.Pi, math.Pi},
		{"minus pi flips", -math.Pi, math.Pi},
		{"just over pi", math.Pi + 0.1, -math.Pi + 0.1},
		{"just under minus pi", -math.Pi - 0.1, math.Pi - 0.1},
		{"full turn", twoPi, 0},
		{"several turns", 6*math.Pi + 0.5, 0.5},
		{"far negative", -5*twoPi - 0.5, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizeAngle(tt.in), 1e-9)
		})
	}
}

func TestNormalizeAngleNonFinite(t *testing.T) {
	assert.True(t, math.IsNaN(NormalizeAngle(math.NaN())))
}

func TestDegRad(t *testing.T) {
	assert.InDelta(t, 180.0, Deg(math.Pi), 1e-12)
	assert.InDelta(t, math.Pi/2, Rad(90), 1e-12)
	assert.InDelta(t, 3.0, Deg(Rad(3)), 1e-12)
}

func TestRotationApplyYaw(t *testing.T) {
	p := Pose{Rotation: Rotation{Yaw: math.Pi / 2}}
	v := p.TransformPoint(r3.Vector{X: 1})
	assert.InDelta(t, 0.0, v.X, 1e-12)
	assert.InDelta(t, 1.0, v.Y, 1e-12)
	assert.InDelta(t, 0.0, v.Z, 1e-12)
}

func TestRotationApplyPitch(t *testing.T) {
	// Nose up by 90 degrees points forward along +Z.
	p := Pose{Rotation: Rotation{Pitch: -math.Pi / 2}}
	f := p.TransformPoint(r3.Vector{X: 1})
	assert.InDelta(t, 0.0, f.X, 1e-12)
	assert.InDelta(t, 1.0, f.Z, 1e-12)
}

func TestPoseOffsetSpectator(t *testing.T) {
	// Vehicle facing -X: "10 m behind" lands on the +X side.
	p := NewPose(83, 13, 0.6, 180)
	s := p.Offset(r3.Vector{X: -10, Z: 7})

	assert.InDelta(t, 93.0, s.Location.X, 1e-9)
	assert.InDelta(t, 13.0, s.Location.Y, 1e-9)
	assert.InDelta(t, 7.6, s.Location.Z, 1e-9)
	assert.Equal(t, p.Rotation, s.Rotation)
}

func TestTransformPointComposesRollPitchYaw(t *testing.T) {
	// Roll, then pitch, then yaw, each by 90 degrees: local +Z ends up on world +X.
	p := Pose{
		Location: r3.Vector{X: 1, Y: 2, Z: 3},
		Rotation: Rotation{Roll: math.Pi / 2, Pitch: math.Pi / 2, Yaw: math.Pi / 2},
	}
	got := p.TransformPoint(r3.Vector{Z: 1})
	assert.InDelta(t, 2.0, got.X, 1e-9)
	assert.InDelta(t, 2.0, got.Y, 1e-9)
	assert.InDelta(t, 3.0, got.Z, 1e-9)
}

func TestPlanarDisplacementDropsZ(t *testing.T) {
	p := Pose{Location: r3.Vector{X: 1, Y: 2, Z: 3}}
	d := p.PlanarDisplacement(r3.Vector{X: 4, Y: 6, Z: -10})
	assert.Equal(t, r3.Vector{X: 3, Y: 4, Z: 0}, d)
	assert.InDelta(t, 5.0, d.Norm(), 1e-12)
}

func TestBearing(t *testing.T) {
	assert.InDelta(t, 0.0, Bearing(1, 0), 1e-12)
	assert.InDelta(t, math.Pi/2, Bearing(0, 1), 1e-12)
	assert.InDelta(t, math.Pi, Bearing(-1, 0), 1e-12)
	assert.Equal(t, 0.0, Bearing(0, 0))
}
